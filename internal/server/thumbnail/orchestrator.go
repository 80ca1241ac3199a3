// Package thumbnail decides when an uploaded object gets a thumbnail,
// derives it through a Codec and stores the result as an encrypted object
// of its own, linked from the original.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/ingest"
	"github.com/dmitrijs2005/gophdrive/internal/server/metrics"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/objects"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
)

// DefaultMaxImageSize is the largest image, in bytes, that gets a thumbnail.
const DefaultMaxImageSize int64 = 15 << 20

type Orchestrator struct {
	codec        Codec
	pipeline     *ingest.Pipeline
	backend      storage.Backend
	repos        repomanager.RepositoryManager
	objects      objects.Repository
	maxImageSize int64
	logger       logging.Logger
}

type Option func(*Orchestrator)

func WithMaxImageSize(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxImageSize = n
		}
	}
}

// NewOrchestrator stores thumbnails through pipeline. Records are saved via
// repos and linked through objs, which may be a caching decorator.
func NewOrchestrator(codec Codec, pipeline *ingest.Pipeline, backend storage.Backend,
	repos repomanager.RepositoryManager, objs objects.Repository, logger logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		codec:        codec,
		pipeline:     pipeline,
		backend:      backend,
		repos:        repos,
		objects:      objs,
		maxImageSize: DefaultMaxImageSize,
		logger:       logger.With("module", "thumbnail"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ShouldGenerate reports whether obj qualifies: images below the size
// limit and every video. Thumbnails never get thumbnails.
func (o *Orchestrator) ShouldGenerate(obj *models.StoredObject) bool {
	if obj.IsThumbnail {
		return false
	}
	switch {
	case isImage(obj.ContentType):
		return obj.Length < o.maxImageSize
	case isVideo(obj.ContentType):
		return true
	}
	return false
}

// Generate derives a thumbnail of parent from its plaintext src, stores it
// and links it to parent. On failure nothing derived is left behind and
// parent is unchanged.
func (o *Orchestrator) Generate(ctx context.Context, parent *models.StoredObject, src io.Reader) (*models.StoredObject, error) {
	data, err := o.codec.Generate(ctx, src, parent.ContentType)
	if err != nil {
		o.observe(err)
		return nil, fmt.Errorf("thumbnail of %s: %w", parent.ID, err)
	}

	thumb, err := o.pipeline.Ingest(ctx, ingest.BeginRequest{
		OwnerID:      parent.OwnerID,
		ParentID:     parent.ParentID,
		Filename:     thumbnailName(parent.Filename),
		ContentType:  ThumbnailContentType,
		PersonalFile: parent.PersonalFile,
		IsThumbnail:  true,
	}, bytes.NewReader(data))
	if err != nil {
		o.observe(err)
		return nil, fmt.Errorf("store thumbnail of %s: %w", parent.ID, err)
	}

	if err := repomanager.SaveObject(ctx, o.repos, thumb); err != nil {
		o.discard(ctx, thumb, false)
		o.observe(err)
		return nil, err
	}
	if err := o.objects.SetThumbnail(ctx, parent.ID, thumb.ID); err != nil {
		o.discard(ctx, thumb, true)
		o.observe(err)
		return nil, fmt.Errorf("link thumbnail of %s: %w", parent.ID, err)
	}

	parent.HasThumbnail = true
	parent.ThumbnailID = thumb.ID
	o.observe(nil)
	o.logger.Info(ctx, "thumbnail stored", "object_id", parent.ID, "thumbnail_id", thumb.ID, "size", len(data))
	return thumb, nil
}

func (o *Orchestrator) discard(ctx context.Context, thumb *models.StoredObject, saved bool) {
	ctx = context.WithoutCancel(ctx)
	if saved {
		if err := o.objects.Delete(ctx, thumb.ID); err != nil {
			o.logger.Error(ctx, "failed to delete thumbnail record", "thumbnail_id", thumb.ID, "error", err)
		}
	}
	if err := o.backend.Delete(ctx, thumb.ID); err != nil {
		o.logger.Error(ctx, "failed to delete thumbnail chunks", "thumbnail_id", thumb.ID, "error", err)
	}
}

func (o *Orchestrator) observe(err error) {
	result := "ok"
	switch {
	case errors.Is(err, common.ErrUnsupportedFormat):
		result = "unsupported"
	case err != nil:
		result = "error"
	}
	metrics.ThumbnailsTotal.WithLabelValues(result).Inc()
}

func thumbnailName(filename string) string {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	if base == "" {
		base = "thumbnail"
	}
	return base + ".thumb.jpg"
}
