package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultWidth   = 300
	DefaultQuality = 80
	// DefaultMaxPixels bounds the decoded size of a source image (64 MP).
	DefaultMaxPixels int64 = 64 << 20
)

// ImageCodec decodes JPEG, PNG, GIF and WebP sources and scales them down to
// Width pixels wide, keeping the aspect ratio. Smaller images keep their size.
type ImageCodec struct {
	Width   int
	Quality int
	// MaxPixels rejects sources whose header declares more pixels than
	// this before anything is decoded. DefaultMaxPixels when zero.
	MaxPixels int64
}

func (c ImageCodec) Generate(ctx context.Context, r io.Reader, contentType string) ([]byte, error) {
	if !isImage(contentType) {
		return nil, fmt.Errorf("%q: %w", contentType, common.ErrUnsupportedFormat)
	}
	img, err := c.decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Encode(img)
}

// decode reads the image header first and refuses sources larger than
// MaxPixels. The header bytes are replayed to the full decoder.
func (c ImageCodec) decode(r io.Reader) (image.Image, error) {
	limit := c.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}

	var header bytes.Buffer
	cfg, format, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedFormat, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > limit {
		return nil, fmt.Errorf("%s of %dx%d exceeds %d pixels: %w",
			format, cfg.Width, cfg.Height, limit, common.ErrUnsupportedFormat)
	}

	img, _, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedFormat, err)
	}
	return img, nil
}

// Encode scales img and encodes it as JPEG.
func (c ImageCodec) Encode(img image.Image) ([]byte, error) {
	width := c.Width
	if width <= 0 {
		width = DefaultWidth
	}
	quality := c.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image: %w", common.ErrUnsupportedFormat)
	}
	if w > width {
		h = max(1, h*width/w)
		w = width
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
