package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	defaults := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		name    string
		args    []string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name: "short flags",
			args: []string{"-a", "127.0.0.1:9090", "-g", ":6000", "-d", "db", "-s", "secret", "-m", "master",
				"-u", "user", "-p", "password", "-b", "bucket", "-e", "http://endpoint"},
			mutate: func(c *Config) {
				c.HTTPAddr = "127.0.0.1:9090"
				c.GRPCAddr = ":6000"
				c.DatabaseDSN = "db"
				c.SecretKey = "secret"
				c.MasterKeySecret = "master"
				c.S3RootUser = "user"
				c.S3RootPassword = "password"
				c.S3Bucket = "bucket"
				c.S3BaseEndpoint = "http://endpoint"
			},
		},
		{
			name: "long flags and durations",
			args: []string{"-backend=objectstore", "--chunk-size", "4194304", "-public-link-ttl", "48h",
				"-stream-session-ttl=30m", "-read-ahead", "8", "-ffmpeg", "/usr/bin/ffmpeg", "-log-level", "debug"},
			mutate: func(c *Config) {
				c.StorageBackend = "objectstore"
				c.ChunkSize = 4 << 20
				c.PublicLinkTTL = 48 * time.Hour
				c.StreamSessionTTL = 30 * time.Minute
				c.ReadAheadChunks = 8
				c.FFmpegPath = "/usr/bin/ffmpeg"
				c.LogLevel = "debug"
			},
		},
		{
			name:   "foreign flags are ignored",
			args:   []string{"-c", "cfg.json", "-x", "1", "-a", ":1"},
			mutate: func(c *Config) { c.HTTPAddr = ":1" },
		},
		{name: "bad number", args: []string{"-chunk-size", "big"}, wantErr: true},
		{name: "bad duration", args: []string{"-cache-ttl", "soon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaults()
			err := parseFlags(got, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			want := defaults()
			tt.mutate(want)
			assert.Empty(t, cmp.Diff(want, got))
		})
	}
}
