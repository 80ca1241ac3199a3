// Package objects is the metadata store of stored objects.
//
// Records are created in the pending state after the chunks are durable and
// only become visible to Get once MarkComplete succeeds, so readers observe
// either nothing or a finished object.
package objects

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Repository persists object descriptors. Get, Delete, MarkComplete and
// SetThumbnail return common.ErrorNotFound for unknown ids.
type Repository interface {
	Create(ctx context.Context, obj *models.StoredObject) error
	MarkComplete(ctx context.Context, id string, length int64) error
	Get(ctx context.Context, id string) (*models.StoredObject, error)
	Delete(ctx context.Context, id string) error
	SetThumbnail(ctx context.Context, id, thumbnailID string) error
}
