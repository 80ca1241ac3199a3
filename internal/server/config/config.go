// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Config holds runtime settings for the gophdrive server.
//
// Fields:
//   - HTTPAddr / GRPCAddr: bind addresses of the HTTP API and the gRPC health endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps metadata in memory.
//   - SecretKey: HMAC secret for caller and stream-session JWTs (HS256).
//   - MasterKeySecret / MasterKeySalt: input to the master key derivation.
//     Changing either makes every stored object unreadable.
//   - StorageBackend: "filesystem" (chunks under StorageRoot) or "objectstore" (S3).
//   - ChunkSize: plaintext bytes per chunk for new uploads, a power of two.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	DatabaseDSN     string
	SecretKey       string
	MasterKeySecret string
	MasterKeySalt   string

	StorageBackend string
	StorageRoot    string
	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	ChunkSize            int64
	ReadAheadChunks      int
	MaxUploadSize        int64
	StorageRetryAttempts int
	StorageRetryDelay    time.Duration

	PublicLinkTTL      time.Duration
	StreamSessionTTL   time.Duration
	TokenSweepInterval time.Duration

	ThumbnailMaxImageSize int64
	ThumbnailMaxPixels    int64
	ThumbnailWidth        int
	FFmpegPath            string

	MetadataCacheSize int
	MetadataCacheTTL  time.Duration

	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The secrets are insecure for production and must be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.MasterKeySecret = "masterKeySecret"
	c.MasterKeySalt = "gophdrive"

	c.StorageBackend = string(models.BackendFilesystem)
	c.StorageRoot = "./data"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "gophdrive"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"

	c.ChunkSize = 1 << 20
	c.ReadAheadChunks = 4
	c.MaxUploadSize = 10 << 30
	c.StorageRetryAttempts = 3
	c.StorageRetryDelay = 100 * time.Millisecond

	c.PublicLinkTTL = 24 * time.Hour
	c.StreamSessionTTL = time.Hour
	c.TokenSweepInterval = 10 * time.Minute

	c.ThumbnailMaxImageSize = 15 << 20
	c.ThumbnailMaxPixels = 64 << 20
	c.ThumbnailWidth = 300
	c.FFmpegPath = "ffmpeg"

	c.MetadataCacheSize = 1024
	c.MetadataCacheTTL = 5 * time.Minute

	c.ShutdownTimeout = 15 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize&(c.ChunkSize-1) != 0 {
		return fmt.Errorf("chunk size %d is not a positive power of two", c.ChunkSize)
	}
	switch models.BackendKind(c.StorageBackend) {
	case models.BackendFilesystem:
		if c.StorageRoot == "" {
			return fmt.Errorf("storage root is required for the %s backend", c.StorageBackend)
		}
	case models.BackendObjectStore:
		if c.S3Bucket == "" {
			return fmt.Errorf("bucket is required for the %s backend", c.StorageBackend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.SecretKey == "" || c.MasterKeySecret == "" {
		return fmt.Errorf("secret key and master key secret must be set")
	}
	if c.ReadAheadChunks < 1 {
		return fmt.Errorf("read-ahead must be at least one chunk, got %d", c.ReadAheadChunks)
	}
	if c.TokenSweepInterval <= 0 {
		return fmt.Errorf("token sweep interval must be positive, got %s", c.TokenSweepInterval)
	}
	if c.MaxUploadSize < 0 {
		return fmt.Errorf("negative max upload size %d", c.MaxUploadSize)
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
