package objects

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

var _ Repository = (*InMemoryRepository)(nil)

// InMemoryRepository keeps records in a map. Used when no database DSN is
// configured and in tests.
type InMemoryRepository struct {
	mu   sync.RWMutex
	data map[string]models.StoredObject
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{data: make(map[string]models.StoredObject)}
}

func (r *InMemoryRepository) Create(ctx context.Context, o *models.StoredObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[o.ID]; exists {
		return fmt.Errorf("object %s already exists", o.ID)
	}
	rec := *o
	rec.Status = models.StatusPending
	r.data[o.ID] = rec
	return nil
}

func (r *InMemoryRepository) MarkComplete(ctx context.Context, id string, length int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.data[id]
	if !ok || rec.Status != models.StatusPending {
		return common.ErrorNotFound
	}
	rec.Status = models.StatusComplete
	rec.Length = length
	r.data[id] = rec
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*models.StoredObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.data[id]
	if !ok || rec.Status != models.StatusComplete {
		return nil, common.ErrorNotFound
	}
	return &rec, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.data, id)
	return nil
}

func (r *InMemoryRepository) SetThumbnail(ctx context.Context, id, thumbnailID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.data[id]
	if !ok || rec.Status != models.StatusComplete {
		return common.ErrorNotFound
	}
	rec.HasThumbnail = true
	rec.ThumbnailID = thumbnailID
	r.data[id] = rec
	return nil
}
