package thumbnail

import (
	"bytes"
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/ingest"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root    string
	backend *storage.FSBackend
	repos   *repomanager.InMemoryRepositoryManager
	orch    *Orchestrator
}

func newFixture(t *testing.T, codec Codec) *fixture {
	t.Helper()
	root := t.TempDir()
	backend, err := storage.NewFSBackend(root)
	require.NoError(t, err)
	keys, err := cryptox.NewKeyWrapper(cryptox.NewObjectKey())
	require.NoError(t, err)
	p, err := ingest.NewPipeline(backend, keys, 1024, logging.NewDiscard())
	require.NoError(t, err)
	repos := repomanager.NewInMemoryRepositoryManager()
	orch := NewOrchestrator(codec, p, backend, repos, repos.Objects(), logging.NewDiscard())
	return &fixture{root: root, backend: backend, repos: repos, orch: orch}
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return err
	})
	require.NoError(t, err)
	return n
}

func (f *fixture) saveParent(t *testing.T, obj *models.StoredObject) {
	t.Helper()
	require.NoError(t, repomanager.SaveObject(context.Background(), f.repos, obj))
}

func TestShouldGenerate(t *testing.T) {
	o := NewOrchestrator(&stubCodec{}, nil, nil, nil, nil, logging.NewDiscard())

	tests := []struct {
		name string
		obj  models.StoredObject
		want bool
	}{
		{name: "small jpeg", obj: models.StoredObject{ContentType: "image/jpeg", Length: 2 << 20}, want: true},
		{name: "image just under limit", obj: models.StoredObject{ContentType: "image/png", Length: 15728639}, want: true},
		{name: "image at limit", obj: models.StoredObject{ContentType: "image/png", Length: 15728640}},
		{name: "huge video", obj: models.StoredObject{ContentType: "video/mp4", Length: 4 << 30}, want: true},
		{name: "document", obj: models.StoredObject{ContentType: "application/pdf", Length: 10}},
		{name: "thumbnail itself", obj: models.StoredObject{ContentType: "image/jpeg", Length: 10, IsThumbnail: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.ShouldGenerate(&tt.obj))
		})
	}

	limited := NewOrchestrator(&stubCodec{}, nil, nil, nil, nil, logging.NewDiscard(), WithMaxImageSize(100))
	assert.False(t, limited.ShouldGenerate(&models.StoredObject{ContentType: "image/png", Length: 100}))
}

func TestGenerate_StoresAndLinks(t *testing.T) {
	ctx := context.Background()
	codec := &stubCodec{out: bytes.Repeat([]byte{0xAB}, 3000)}
	f := newFixture(t, codec)

	parent := &models.StoredObject{ID: "parent-1", Filename: "holiday.png", ContentType: "image/png", Length: 9, OwnerID: "u1", ChunkSize: 1024}
	f.saveParent(t, parent)

	thumb, err := f.orch.Generate(ctx, parent, bytes.NewReader([]byte("png bytes")))
	require.NoError(t, err)

	assert.Equal(t, "png bytes", string(codec.seen))
	assert.True(t, thumb.IsThumbnail)
	assert.Equal(t, models.StatusComplete, thumb.Status)
	assert.Equal(t, "holiday.thumb.jpg", thumb.Filename)
	assert.Equal(t, ThumbnailContentType, thumb.ContentType)
	assert.Equal(t, "u1", thumb.OwnerID)
	assert.Equal(t, int64(3000), thumb.Length)
	assert.True(t, parent.HasThumbnail)

	stored, err := f.repos.Objects().Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, thumb.ID, stored.ThumbnailID)

	_, err = f.repos.Objects().Get(ctx, thumb.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, countFiles(t, f.root))
}

func TestGenerate_CodecFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, &stubCodec{err: common.ErrUnsupportedFormat})
	parent := &models.StoredObject{ID: "parent-1", ContentType: "image/png", Length: 9, ChunkSize: 1024}
	f.saveParent(t, parent)

	_, err := f.orch.Generate(context.Background(), parent, bytes.NewReader(nil))
	require.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.False(t, parent.HasThumbnail)
	assert.Equal(t, 0, countFiles(t, f.root))
}

func TestGenerate_LinkFailureRemovesThumbnail(t *testing.T) {
	f := newFixture(t, &stubCodec{out: []byte("jpeg")})
	parent := &models.StoredObject{ID: "never-saved", ContentType: "image/png", Length: 9}

	_, err := f.orch.Generate(context.Background(), parent, bytes.NewReader(nil))
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.False(t, parent.HasThumbnail)
	assert.Equal(t, 0, countFiles(t, f.root))
}

func TestGenerate_CanceledUpload(t *testing.T) {
	f := newFixture(t, &stubCodec{out: []byte("jpeg")})
	parent := &models.StoredObject{ID: "parent-1", ContentType: "video/mp4", Length: 9, ChunkSize: 1024}
	f.saveParent(t, parent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Generate(ctx, parent, bytes.NewReader(nil))
	require.ErrorIs(t, err, common.ErrUploadAborted)
	assert.Equal(t, 0, countFiles(t, f.root))
}

func TestThumbnailName(t *testing.T) {
	assert.Equal(t, "clip.thumb.jpg", thumbnailName("clip.mp4"))
	assert.Equal(t, "archive.tar.thumb.jpg", thumbnailName("archive.tar.gz"))
	assert.Equal(t, "thumbnail.thumb.jpg", thumbnailName(""))
}
