package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg reruns the test binary as TestHelperProcess in the given mode.
func fakeFFmpeg(t *testing.T, mode string) {
	t.Helper()
	orig := execCommandContext
	execCommandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { execCommandContext = orig })
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	var seek, input string
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "-ss":
			seek = args[i+1]
		case "-i":
			input = args[i+1]
		}
	}
	if _, err := os.Stat(input); err != nil {
		fmt.Fprintf(os.Stderr, "%s: no such file", input)
		os.Exit(1)
	}

	switch os.Getenv("FFMPEG_MODE") {
	case "frame":
		_ = png.Encode(os.Stdout, gradient(640, 360))
	case "short":
		if seek == "0.000" {
			_ = png.Encode(os.Stdout, gradient(320, 240))
		}
	case "empty":
	case "fail":
		fmt.Fprint(os.Stderr, "moov atom not found")
		os.Exit(1)
	}
	os.Exit(0)
}

func TestFFmpegCodec_ExtractsFrame(t *testing.T) {
	fakeFFmpeg(t, "frame")

	out, err := FFmpegCodec{Offset: 1e9}.Generate(context.Background(), strings.NewReader("video bytes"), "video/mp4")
	require.NoError(t, err)
	w, h := decodedSize(t, out)
	assert.Equal(t, 300, w)
	assert.Equal(t, 168, h)
}

func TestFFmpegCodec_ShortVideoFallsBackToFirstFrame(t *testing.T) {
	fakeFFmpeg(t, "short")

	out, err := FFmpegCodec{Offset: 5e9}.Generate(context.Background(), bytes.NewReader([]byte("v")), "video/webm")
	require.NoError(t, err)
	w, h := decodedSize(t, out)
	assert.Equal(t, 300, w)
	assert.Equal(t, 225, h)
}

func TestFFmpegCodec_Failures(t *testing.T) {
	t.Run("not a video", func(t *testing.T) {
		_, err := FFmpegCodec{}.Generate(context.Background(), strings.NewReader("x"), "image/png")
		assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	})

	t.Run("no frame", func(t *testing.T) {
		fakeFFmpeg(t, "empty")
		_, err := FFmpegCodec{}.Generate(context.Background(), strings.NewReader("x"), "video/mp4")
		assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	})

	t.Run("ffmpeg error", func(t *testing.T) {
		fakeFFmpeg(t, "fail")
		_, err := FFmpegCodec{}.Generate(context.Background(), strings.NewReader("x"), "video/mp4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "moov atom not found")
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := FFmpegCodec{Path: "/nonexistent/ffmpeg"}.Generate(context.Background(), strings.NewReader("x"), "video/mp4")
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrUnsupportedFormat)
	})
}
