package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.StorageRoot = t.TempDir()
	c.HTTPAddr = "127.0.0.1:0"
	c.GRPCAddr = "127.0.0.1:0"
	c.LogLevel = "error"
	return c
}

func TestNewApp_InMemory(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)

	_, ok := app.repos.(*repomanager.InMemoryRepositoryManager)
	assert.True(t, ok)
	assert.Contains(t, app.checks, "storage")
	assert.NotContains(t, app.checks, "database")
	require.NoError(t, app.checks["storage"].Ping(context.Background()))
}

func TestNewApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{name: "unknown backend", mutate: func(c *config.Config) { c.StorageBackend = "tape" }},
		{name: "bad chunk size", mutate: func(c *config.Config) { c.ChunkSize = 1000 }},
		{name: "unreachable database", mutate: func(c *config.Config) { c.DatabaseDSN = "postgres://nobody@127.0.0.1:1/none?connect_timeout=1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			tt.mutate(c)
			_, err := NewApp(context.Background(), c)
			require.Error(t, err)
		})
	}
}

func TestNewCodec(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	c := testConfig(t)
	c.ThumbnailWidth = 120

	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	codec := newCodec(context.Background(), c, logging.NewDiscard())
	assert.Nil(t, codec.Video)
	assert.Equal(t, thumbnail.ImageCodec{Width: 120}, codec.Image)

	lookPath = func(name string) (string, error) { return "/opt/bin/" + name, nil }
	codec = newCodec(context.Background(), c, logging.NewDiscard())
	require.NotNil(t, codec.Video)
	ff, ok := codec.Video.(thumbnail.FFmpegCodec)
	require.True(t, ok)
	assert.Equal(t, "/opt/bin/ffmpeg", ff.Path)
	assert.Equal(t, videoFrameOffset, ff.Offset)
}

func TestRun_StopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}
