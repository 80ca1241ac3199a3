package accesstokens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

var _ Repository = (*InMemoryRepository)(nil)

// InMemoryRepository guards a map with a mutex; Consume holds the lock for
// the whole check-and-set.
type InMemoryRepository struct {
	mu   sync.Mutex
	data map[string]models.AccessToken
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{data: make(map[string]models.AccessToken)}
}

func (r *InMemoryRepository) Create(ctx context.Context, t *models.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[t.Value]; exists {
		return fmt.Errorf("token already exists")
	}
	r.data[t.Value] = *t
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, value string) (*models.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.data[value]
	if !ok {
		return nil, common.ErrTokenNotFound
	}
	return &t, nil
}

func (r *InMemoryRepository) Consume(ctx context.Context, value, objectID string, now time.Time) (*models.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.data[value]
	switch {
	case !ok:
		return nil, common.ErrTokenNotFound
	case t.ObjectID != objectID:
		return nil, common.ErrTokenObjectMismatch
	case t.Expired(now):
		return nil, common.ErrTokenExpired
	case t.Consumed:
		return nil, common.ErrTokenConsumed
	}

	t.Consumed = true
	r.data[value] = t
	return &t, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[value]; !ok {
		return common.ErrTokenNotFound
	}
	delete(r.data, value)
	return nil
}

func (r *InMemoryRepository) deleteWhere(match func(models.AccessToken) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, t := range r.data {
		if match(t) {
			delete(r.data, k)
			n++
		}
	}
	return n
}

func (r *InMemoryRepository) DeleteForDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	return r.deleteWhere(func(t models.AccessToken) bool {
		return t.Kind == models.TokenStreamSession && t.UserID == userID && t.DeviceID == deviceID
	}), nil
}

func (r *InMemoryRepository) DeleteForObject(ctx context.Context, objectID string) (int64, error) {
	return r.deleteWhere(func(t models.AccessToken) bool {
		return t.Kind != models.TokenStreamSession && t.ObjectID == objectID
	}), nil
}

func (r *InMemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(t models.AccessToken) bool { return t.Expired(now) }), nil
}
