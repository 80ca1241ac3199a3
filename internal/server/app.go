// Package server wires the storage backend, metadata store, encryption,
// ingest, streaming, tokens and thumbnails together and runs the HTTP API
// and the gRPC health endpoint until shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/files"
	"github.com/dmitrijs2005/gophdrive/internal/server/httpapi"
	"github.com/dmitrijs2005/gophdrive/internal/server/ingest"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/objects"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
	"github.com/dmitrijs2005/gophdrive/internal/server/tokens"

	gs "github.com/dmitrijs2005/gophdrive/internal/server/grpc"
)

// videoFrameOffset is where video thumbnails are taken.
const videoFrameOffset = time.Second

// lookPath is a seam for tests.
var lookPath = exec.LookPath

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	backend storage.Backend
	tokens  *tokens.Manager
	handler *httpapi.Handler
	checks  map[string]storage.Pinger
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	checks := map[string]storage.Pinger{}

	repos, err := newRepositoryManager(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if p, ok := repos.(storage.Pinger); ok {
		checks["database"] = p
	}

	base, err := newBackend(ctx, c)
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	backend := storage.NewInstrumented(storage.NewRetrying(base, c.StorageRetryAttempts, c.StorageRetryDelay, logger))
	checks["storage"] = backend

	keys, err := cryptox.NewKeyWrapper(cryptox.DeriveMasterKey([]byte(c.MasterKeySecret), []byte(c.MasterKeySalt)))
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("master key: %w", err)
	}

	pipeline, err := ingest.NewPipeline(backend, keys, c.ChunkSize, logger, ingest.WithMaxSize(c.MaxUploadSize))
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("ingest pipeline: %w", err)
	}

	objs := objects.NewCachedRepository(repos.Objects(), c.MetadataCacheSize, c.MetadataCacheTTL)

	tm := tokens.NewManager(repos.AccessTokens(), []byte(c.SecretKey), logger,
		tokens.WithPublicLinkTTL(c.PublicLinkTTL),
		tokens.WithStreamSessionTTL(c.StreamSessionTTL),
	)

	thumbs := thumbnail.NewOrchestrator(newCodec(ctx, c, logger), pipeline, backend, repos, objs, logger,
		thumbnail.WithMaxImageSize(c.ThumbnailMaxImageSize))

	svc := files.NewService(files.Deps{
		Pipeline:   pipeline,
		Backend:    backend,
		Keys:       keys,
		Repos:      repos,
		Objects:    objs,
		Tokens:     tm,
		Thumbnails: thumbs,
		ReadAhead:  c.ReadAheadChunks,
		Logger:     logger,
	})

	handler := httpapi.NewHandler(httpapi.Config{
		Files:         svc,
		Tokens:        tm,
		Secret:        []byte(c.SecretKey),
		MaxUploadSize: c.MaxUploadSize,
		Checks:        checks,
		Logger:        logger,
	})

	return &App{
		config:  c,
		logger:  logger,
		repos:   repos,
		backend: backend,
		tokens:  tm,
		handler: handler,
		checks:  checks,
	}, nil
}

// newRepositoryManager opens PostgreSQL and applies migrations, or keeps
// metadata in memory when no DSN is configured.
func newRepositoryManager(ctx context.Context, c *config.Config, logger logging.Logger) (repomanager.RepositoryManager, error) {
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, metadata is kept in memory")
		return repomanager.NewInMemoryRepositoryManager(), nil
	}

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.RunMigrations(ctx); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func newBackend(ctx context.Context, c *config.Config) (storage.Backend, error) {
	switch models.BackendKind(c.StorageBackend) {
	case models.BackendFilesystem:
		return storage.NewFSBackend(c.StorageRoot)
	case models.BackendObjectStore:
		return storage.NewS3Backend(ctx, storage.S3Options{
			User:     c.S3RootUser,
			Password: c.S3RootPassword,
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

// newCodec builds the thumbnail codec. Video thumbnails are disabled when
// the ffmpeg binary cannot be found.
func newCodec(ctx context.Context, c *config.Config, logger logging.Logger) thumbnail.MuxCodec {
	img := thumbnail.ImageCodec{Width: c.ThumbnailWidth, MaxPixels: c.ThumbnailMaxPixels}
	codec := thumbnail.MuxCodec{Image: img}

	path, err := lookPath(c.FFmpegPath)
	if err != nil {
		logger.Warn(ctx, "ffmpeg not found, video thumbnails disabled", "path", c.FFmpegPath, "error", err)
		return codec
	}
	codec.Video = thumbnail.FFmpegCodec{Path: path, Offset: videoFrameOffset, Image: img}
	return codec
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.HTTPAddr, httpapi.NewRouter(app.handler), app.config.ShutdownTimeout, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.checks, 0)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is canceled, a signal arrives or a server fails,
// then closes the metadata store.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.tokens.RunSweeper(ctx, app.config.TokenSweepInterval)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "close metadata store", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
