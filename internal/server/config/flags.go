package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Short flags carry the settings that change most often:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC health bind address
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-m string   master key secret
//	-u, -p, -b, -e string   S3 user, password, bucket and endpoint
//
// Everything else uses a long name (e.g., -chunk-size, -public-link-ttl).
// Durations use Go syntax ("90s", "24h").
//
// Arguments are first filtered down to the flags defined here with
// flagx.FilterArgs, so flags owned by other components (-c) are ignored.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN (empty keeps metadata in memory)")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.MasterKeySecret, "m", config.MasterKeySecret, "master key secret")
	fs.StringVar(&config.MasterKeySalt, "master-key-salt", config.MasterKeySalt, "master key salt")

	fs.StringVar(&config.StorageBackend, "backend", config.StorageBackend, "storage backend (filesystem, objectstore)")
	fs.StringVar(&config.StorageRoot, "root", config.StorageRoot, "filesystem storage root")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.Int64Var(&config.ChunkSize, "chunk-size", config.ChunkSize, "chunk size in bytes for new uploads")
	fs.IntVar(&config.ReadAheadChunks, "read-ahead", config.ReadAheadChunks, "chunks fetched ahead of a reader")
	fs.Int64Var(&config.MaxUploadSize, "max-upload-size", config.MaxUploadSize, "largest accepted upload in bytes (0 = unlimited)")
	fs.IntVar(&config.StorageRetryAttempts, "retry-attempts", config.StorageRetryAttempts, "storage call attempts")
	fs.DurationVar(&config.StorageRetryDelay, "retry-delay", config.StorageRetryDelay, "first storage retry delay")

	fs.DurationVar(&config.PublicLinkTTL, "public-link-ttl", config.PublicLinkTTL, "default public link lifetime")
	fs.DurationVar(&config.StreamSessionTTL, "stream-session-ttl", config.StreamSessionTTL, "stream session lifetime")
	fs.DurationVar(&config.TokenSweepInterval, "token-sweep-interval", config.TokenSweepInterval, "expired token sweep interval")

	fs.Int64Var(&config.ThumbnailMaxImageSize, "thumbnail-max-image-size", config.ThumbnailMaxImageSize, "largest image that gets a thumbnail")
	fs.Int64Var(&config.ThumbnailMaxPixels, "thumbnail-max-pixels", config.ThumbnailMaxPixels, "largest image, in pixels, that gets decoded")
	fs.IntVar(&config.ThumbnailWidth, "thumbnail-width", config.ThumbnailWidth, "thumbnail width in pixels")
	fs.StringVar(&config.FFmpegPath, "ffmpeg", config.FFmpegPath, "ffmpeg binary for video thumbnails")

	fs.IntVar(&config.MetadataCacheSize, "cache-size", config.MetadataCacheSize, "cached object records")
	fs.DurationVar(&config.MetadataCacheTTL, "cache-ttl", config.MetadataCacheTTL, "cached object record lifetime")

	fs.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", config.ShutdownTimeout, "graceful shutdown timeout")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (text, json)")

	// Filter args to include only the flags handled here.
	var known []string
	fs.VisitAll(func(f *flag.Flag) { known = append(known, "-"+f.Name, "--"+f.Name) })

	if err := fs.Parse(flagx.FilterArgs(args, known)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
