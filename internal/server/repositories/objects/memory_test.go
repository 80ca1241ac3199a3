package objects

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs the Repository contract shared by every implementation.
func exercise(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	o := sampleObject()

	require.NoError(t, repo.Create(ctx, o))
	require.Error(t, repo.Create(ctx, o), "duplicate id")

	_, err := repo.Get(ctx, o.ID)
	require.ErrorIs(t, err, common.ErrorNotFound, "pending objects are invisible")
	require.ErrorIs(t, repo.SetThumbnail(ctx, o.ID, "t"), common.ErrorNotFound)

	require.NoError(t, repo.MarkComplete(ctx, o.ID, 1234))
	require.ErrorIs(t, repo.MarkComplete(ctx, o.ID, 1), common.ErrorNotFound, "complete is terminal")

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), got.Length)
	assert.Equal(t, models.StatusComplete, got.Status)
	assert.Equal(t, o.EncryptedKey, got.EncryptedKey)

	require.NoError(t, repo.SetThumbnail(ctx, o.ID, "thumb-9"))
	got, err = repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.HasThumbnail)
	assert.Equal(t, "thumb-9", got.ThumbnailID)

	require.NoError(t, repo.Delete(ctx, o.ID))
	_, err = repo.Get(ctx, o.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, o.ID), common.ErrorNotFound)
}

func TestInMemoryRepository(t *testing.T) {
	exercise(t, NewInMemoryRepository())
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	o := sampleObject()
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.MarkComplete(ctx, o.ID, 10))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	got.Filename = "changed"

	again, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "movie.mp4", again.Filename)
}
