// Package storage defines the chunk storage contract and its filesystem and
// S3-compatible implementations, plus decorators for bounded retries and
// metrics.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Backend persists opaque ciphertext chunks addressed by (objectID, index).
//
// Implementations must be safe for concurrent use across distinct objects.
// ReadChunk returns an error wrapping common.ErrChunkNotFound when the chunk
// does not exist; Delete and Size treat a missing object as empty.
type Backend interface {
	Kind() models.BackendKind
	// Location reports where the chunks of objectID live, for metadata.
	Location(objectID string) string
	WriteChunk(ctx context.Context, objectID string, index int64, data []byte) error
	ReadChunk(ctx context.Context, objectID string, index int64) ([]byte, error)
	Delete(ctx context.Context, objectID string) error
	// Size is the total stored (ciphertext) size of objectID.
	Size(ctx context.Context, objectID string) (int64, error)
}

// Pinger is implemented by backends able to report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// chunkName is the zero-padded name of a chunk inside its object.
func chunkName(index int64) string {
	return fmt.Sprintf("%08d.chunk", index)
}

// validateObjectID rejects ids that could escape the backend namespace.
func validateObjectID(objectID string) error {
	if objectID == "" {
		return fmt.Errorf("empty object id")
	}
	for _, r := range objectID {
		ok := r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			return fmt.Errorf("invalid object id %q", objectID)
		}
	}
	if strings.Trim(objectID, "-_") == "" {
		return fmt.Errorf("invalid object id %q", objectID)
	}
	return nil
}
