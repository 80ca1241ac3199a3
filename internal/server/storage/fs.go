package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/filex"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

var _ Backend = (*FSBackend)(nil)

// FSBackend stores each object as a directory of chunk files:
//
//	<root>/<first 2 chars of id>/<id>/<index>.chunk
//
// Chunk files are written through a temp file and renamed into place, so a
// crash never leaves a truncated chunk behind.
type FSBackend struct {
	root string
}

// NewFSBackend opens (creating if needed) a filesystem backend rooted at root.
func NewFSBackend(root string) (*FSBackend, error) {
	abs, err := filex.EnsureDir(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("fs backend: %w", err)
	}
	return &FSBackend{root: abs}, nil
}

func (b *FSBackend) Kind() models.BackendKind { return models.BackendFilesystem }

func (b *FSBackend) Location(objectID string) string {
	return b.objectDir(objectID)
}

func (b *FSBackend) objectDir(objectID string) string {
	shard := objectID
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(b.root, shard, objectID)
}

func (b *FSBackend) WriteChunk(ctx context.Context, objectID string, index int64, data []byte) error {
	if err := validateObjectID(objectID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := b.objectDir(objectID)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return filex.WriteFileAtomic(filepath.Join(dir, chunkName(index)), data, 0o600)
}

func (b *FSBackend) ReadChunk(ctx context.Context, objectID string, index int64) ([]byte, error) {
	if err := validateObjectID(objectID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(b.objectDir(objectID), chunkName(index)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s/%d: %w", objectID, index, common.ErrChunkNotFound)
		}
		return nil, fmt.Errorf("read chunk %s/%d: %w", objectID, index, err)
	}
	return data, nil
}

func (b *FSBackend) Delete(ctx context.Context, objectID string) error {
	if err := validateObjectID(objectID); err != nil {
		return err
	}
	if err := os.RemoveAll(b.objectDir(objectID)); err != nil {
		return fmt.Errorf("delete %s: %w", objectID, err)
	}
	return nil
}

func (b *FSBackend) Size(ctx context.Context, objectID string) (int64, error) {
	if err := validateObjectID(objectID); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(b.objectDir(objectID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("size %s: %w", objectID, err)
	}

	var total int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".chunk" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, fmt.Errorf("size %s: %w", objectID, err)
		}
		total += info.Size()
	}
	return total, nil
}

// Ping checks that the root directory is still reachable.
func (b *FSBackend) Ping(ctx context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", b.root)
	}
	return nil
}
