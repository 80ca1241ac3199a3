package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"github.com/dmitrijs2005/gophdrive/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. Keys missing from the file keep the values the
// Config already had.
type JsonConfig struct {
	HTTPAddr        string `json:"http_addr"`
	GRPCAddr        string `json:"grpc_addr"`
	DatabaseDSN     string `json:"database_dsn"`
	SecretKey       string `json:"secret_key"`
	MasterKeySecret string `json:"master_key_secret"`
	MasterKeySalt   string `json:"master_key_salt"`

	StorageBackend string `json:"storage_backend"`
	StorageRoot    string `json:"storage_root"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	ChunkSize            int64          `json:"chunk_size"`
	ReadAheadChunks      int            `json:"read_ahead_chunks"`
	MaxUploadSize        int64          `json:"max_upload_size"`
	StorageRetryAttempts int            `json:"storage_retry_attempts"`
	StorageRetryDelay    timex.Duration `json:"storage_retry_delay"`

	PublicLinkTTL      timex.Duration `json:"public_link_ttl"`
	StreamSessionTTL   timex.Duration `json:"stream_session_ttl"`
	TokenSweepInterval timex.Duration `json:"token_sweep_interval"`

	ThumbnailMaxImageSize int64  `json:"thumbnail_max_image_size"`
	ThumbnailMaxPixels    int64  `json:"thumbnail_max_pixels"`
	ThumbnailWidth        int    `json:"thumbnail_width"`
	FFmpegPath            string `json:"ffmpeg_path"`

	MetadataCacheSize int            `json:"metadata_cache_size"`
	MetadataCacheTTL  timex.Duration `json:"metadata_cache_ttl"`

	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`
	LogLevel        string         `json:"log_level"`
	LogFormat       string         `json:"log_format"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		HTTPAddr:              c.HTTPAddr,
		GRPCAddr:              c.GRPCAddr,
		DatabaseDSN:           c.DatabaseDSN,
		SecretKey:             c.SecretKey,
		MasterKeySecret:       c.MasterKeySecret,
		MasterKeySalt:         c.MasterKeySalt,
		StorageBackend:        c.StorageBackend,
		StorageRoot:           c.StorageRoot,
		S3RootUser:            c.S3RootUser,
		S3RootPassword:        c.S3RootPassword,
		S3Bucket:              c.S3Bucket,
		S3Region:              c.S3Region,
		S3BaseEndpoint:        c.S3BaseEndpoint,
		ChunkSize:             c.ChunkSize,
		ReadAheadChunks:       c.ReadAheadChunks,
		MaxUploadSize:         c.MaxUploadSize,
		StorageRetryAttempts:  c.StorageRetryAttempts,
		StorageRetryDelay:     timex.Duration{Duration: c.StorageRetryDelay},
		PublicLinkTTL:         timex.Duration{Duration: c.PublicLinkTTL},
		StreamSessionTTL:      timex.Duration{Duration: c.StreamSessionTTL},
		TokenSweepInterval:    timex.Duration{Duration: c.TokenSweepInterval},
		ThumbnailMaxImageSize: c.ThumbnailMaxImageSize,
		ThumbnailMaxPixels:    c.ThumbnailMaxPixels,
		ThumbnailWidth:        c.ThumbnailWidth,
		FFmpegPath:            c.FFmpegPath,
		MetadataCacheSize:     c.MetadataCacheSize,
		MetadataCacheTTL:      timex.Duration{Duration: c.MetadataCacheTTL},
		ShutdownTimeout:       timex.Duration{Duration: c.ShutdownTimeout},
		LogLevel:              c.LogLevel,
		LogFormat:             c.LogFormat,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.HTTPAddr = j.HTTPAddr
	c.GRPCAddr = j.GRPCAddr
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.MasterKeySecret = j.MasterKeySecret
	c.MasterKeySalt = j.MasterKeySalt
	c.StorageBackend = j.StorageBackend
	c.StorageRoot = j.StorageRoot
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.ChunkSize = j.ChunkSize
	c.ReadAheadChunks = j.ReadAheadChunks
	c.MaxUploadSize = j.MaxUploadSize
	c.StorageRetryAttempts = j.StorageRetryAttempts
	c.StorageRetryDelay = j.StorageRetryDelay.Duration
	c.PublicLinkTTL = j.PublicLinkTTL.Duration
	c.StreamSessionTTL = j.StreamSessionTTL.Duration
	c.TokenSweepInterval = j.TokenSweepInterval.Duration
	c.ThumbnailMaxImageSize = j.ThumbnailMaxImageSize
	c.ThumbnailMaxPixels = j.ThumbnailMaxPixels
	c.ThumbnailWidth = j.ThumbnailWidth
	c.FFmpegPath = j.FFmpegPath
	c.MetadataCacheSize = j.MetadataCacheSize
	c.MetadataCacheTTL = j.MetadataCacheTTL.Duration
	c.ShutdownTimeout = j.ShutdownTimeout.Duration
	c.LogLevel = j.LogLevel
	c.LogFormat = j.LogFormat
}

// parseJson overlays values from a JSON file onto config.
//
// The file path comes from the -c or -config flag in args; without one
// nothing is loaded. Only keys present in the file change config.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.JsonConfigFlags(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}
	c.apply(config)
	return nil
}
