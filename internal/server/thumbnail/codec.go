package thumbnail

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// Codec turns source bytes into a thumbnail image. Implementations return
// an error wrapping common.ErrUnsupportedFormat for inputs they cannot
// handle.
type Codec interface {
	Generate(ctx context.Context, r io.Reader, contentType string) ([]byte, error)
}

// ThumbnailContentType is the content type of every generated thumbnail.
const ThumbnailContentType = "image/jpeg"

func isImage(contentType string) bool { return strings.HasPrefix(contentType, "image/") }
func isVideo(contentType string) bool { return strings.HasPrefix(contentType, "video/") }

// MuxCodec dispatches on the content type family.
type MuxCodec struct {
	Image Codec
	Video Codec
}

func (m MuxCodec) Generate(ctx context.Context, r io.Reader, contentType string) ([]byte, error) {
	var c Codec
	switch {
	case isImage(contentType):
		c = m.Image
	case isVideo(contentType):
		c = m.Video
	}
	if c == nil {
		return nil, fmt.Errorf("%q: %w", contentType, common.ErrUnsupportedFormat)
	}
	return c.Generate(ctx, r, contentType)
}
