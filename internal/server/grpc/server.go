// Package grpc exposes the standard gRPC health service. Its serving status
// follows the storage backend and the metadata database.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall ("")
// status.
const ServiceName = "gophdrive.Storage"

const defaultCheckInterval = 10 * time.Second

type GRPCServer struct {
	address  string
	checks   map[string]storage.Pinger
	interval time.Duration
	health   *health.Server
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, checks map[string]storage.Pinger, interval time.Duration) *GRPCServer {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &GRPCServer{
		address:  a,
		checks:   checks,
		interval: interval,
		health:   health.NewServer(),
		logger:   l.With("module", "grpc_server"),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.refresh(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh pings every check and publishes the combined status.
func (s *GRPCServer) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			s.logger.Warn(ctx, "health check failed", "check", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
