package objects

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	Repository
	gets atomic.Int32
}

func (c *countingRepo) Get(ctx context.Context, id string) (*models.StoredObject, error) {
	c.gets.Add(1)
	return c.Repository.Get(ctx, id)
}

func TestCachedRepository_Contract(t *testing.T) {
	exercise(t, NewCachedRepository(NewInMemoryRepository(), 16, time.Minute))
}

func TestCachedRepository_HitsAndInvalidation(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{Repository: NewInMemoryRepository()}
	repo := NewCachedRepository(inner, 16, time.Minute)

	o := sampleObject()
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.MarkComplete(ctx, o.ID, 5))

	for i := 0; i < 3; i++ {
		_, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), inner.gets.Load())

	require.NoError(t, repo.SetThumbnail(ctx, o.ID, "thumb"))
	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.HasThumbnail, "mutation evicts the stale entry")
	assert.Equal(t, int32(2), inner.gets.Load())
}

func TestCachedRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{Repository: NewInMemoryRepository()}
	repo := NewCachedRepository(inner, 16, 20*time.Millisecond)

	o := sampleObject()
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.MarkComplete(ctx, o.ID, 5))

	_, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.gets.Load())
}
