package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"http_addr":                ":9000",
		"database_dsn":             "postgres://db",
		"secret_key":               "my_secret_key",
		"storage_backend":          "objectstore",
		"s3_bucket":                "bucket",
		"chunk_size":               262144,
		"public_link_ttl":          "12h",
		"stream_session_ttl":       1800000000000,
		"thumbnail_max_image_size": 1048576,
		"metadata_cache_ttl":       "1m",
	})

	t.Run("loads from json", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, []string{"-config", pathFlag}))

		assert.Equal(t, ":9000", cfg.HTTPAddr)
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, "objectstore", cfg.StorageBackend)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, int64(262144), cfg.ChunkSize)
		assert.Equal(t, 12*time.Hour, cfg.PublicLinkTTL)
		assert.Equal(t, 30*time.Minute, cfg.StreamSessionTTL)
		assert.Equal(t, int64(1<<20), cfg.ThumbnailMaxImageSize)
		assert.Equal(t, time.Minute, cfg.MetadataCacheTTL)
	})

	t.Run("missing keys keep their values", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, []string{"-c", pathFlag}))

		assert.Equal(t, ":50051", cfg.GRPCAddr)
		assert.Equal(t, 4, cfg.ReadAheadChunks)
		assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		cfg := &Config{HTTPAddr: "defaults:1234", ChunkSize: 4096}
		require.NoError(t, parseJson(cfg, nil))

		assert.Equal(t, "defaults:1234", cfg.HTTPAddr)
		assert.Equal(t, int64(4096), cfg.ChunkSize)
	})

	t.Run("invalid JSON → error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		require.Error(t, parseJson(&Config{}, []string{"-config", bad}))
	})

	t.Run("invalid duration → error", func(t *testing.T) {
		bad := writeTempJSON(t, dir, "dur.json", map[string]any{"public_link_ttl": "forever"})
		require.Error(t, parseJson(&Config{}, []string{"-c", bad}))
	})
}
