package objects

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/server/metrics"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var _ Repository = (*CachedRepository)(nil)

// CachedRepository fronts another Repository with an expiring LRU of
// complete records. Mutations go to the underlying store first and then
// evict the cached entry.
type CachedRepository struct {
	next  Repository
	cache *expirable.LRU[string, models.StoredObject]
}

// NewCachedRepository caches up to size records for ttl each.
func NewCachedRepository(next Repository, size int, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		next:  next,
		cache: expirable.NewLRU[string, models.StoredObject](size, nil, ttl),
	}
}

func (c *CachedRepository) Create(ctx context.Context, o *models.StoredObject) error {
	return c.next.Create(ctx, o)
}

func (c *CachedRepository) MarkComplete(ctx context.Context, id string, length int64) error {
	defer c.cache.Remove(id)
	return c.next.MarkComplete(ctx, id, length)
}

func (c *CachedRepository) Get(ctx context.Context, id string) (*models.StoredObject, error) {
	if rec, ok := c.cache.Get(id); ok {
		metrics.MetadataCacheRequests.WithLabelValues("hit").Inc()
		return &rec, nil
	}
	metrics.MetadataCacheRequests.WithLabelValues("miss").Inc()

	o, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *o)
	return o, nil
}

func (c *CachedRepository) Delete(ctx context.Context, id string) error {
	defer c.cache.Remove(id)
	return c.next.Delete(ctx, id)
}

func (c *CachedRepository) SetThumbnail(ctx context.Context, id, thumbnailID string) error {
	defer c.cache.Remove(id)
	return c.next.SetThumbnail(ctx, id, thumbnailID)
}
