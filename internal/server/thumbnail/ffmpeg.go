package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// execCommandContext is a seam for tests.
var execCommandContext = exec.CommandContext

// FFmpegCodec grabs one frame of a video with the ffmpeg binary and scales
// it with Image. The source is spooled to a temporary file because most
// containers cannot be probed from a pipe.
type FFmpegCodec struct {
	// Path to the ffmpeg binary, "ffmpeg" when empty.
	Path string
	// Offset is where the frame is taken; videos shorter than that fall
	// back to the first frame.
	Offset time.Duration
	Image  ImageCodec
}

func (c FFmpegCodec) Generate(ctx context.Context, r io.Reader, contentType string) ([]byte, error) {
	if !isVideo(contentType) {
		return nil, fmt.Errorf("%q: %w", contentType, common.ErrUnsupportedFormat)
	}

	tmp, err := os.CreateTemp("", "gophdrive-video-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("spool video: %w", err)
	}

	frame, err := c.frame(ctx, tmp.Name(), c.Offset)
	if err == nil && len(frame) == 0 && c.Offset > 0 {
		frame, err = c.frame(ctx, tmp.Name(), 0)
	}
	if err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("no video frame: %w", common.ErrUnsupportedFormat)
	}

	img, err := c.Image.decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return c.Image.Encode(img)
}

func (c FFmpegCodec) frame(ctx context.Context, input string, offset time.Duration) ([]byte, error) {
	path := c.Path
	if path == "" {
		path = "ffmpeg"
	}

	var stdout, stderr bytes.Buffer
	cmd := execCommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "png",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
