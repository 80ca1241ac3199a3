package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	s := NewGRPCServer("", nopLogger{}, nil, 0)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	tests := []struct {
		name    string
		resp    interface{}
		err     error
		wantErr codes.Code
	}{
		{name: "ok", resp: "ok", wantErr: codes.OK},
		{name: "error", err: status.Error(codes.Unavailable, "down"), wantErr: codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				called = true
				return tt.resp, tt.err
			}

			resp, err := s.loggingInterceptor(context.Background(), nil, info, h)
			if !called {
				t.Fatal("handler was not called")
			}
			if resp != tt.resp {
				t.Fatalf("unexpected handler resp: %v", resp)
			}
			if got := status.Code(err); got != tt.wantErr {
				t.Fatalf("code = %v, want %v", got, tt.wantErr)
			}
		})
	}
}
