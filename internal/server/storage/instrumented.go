package storage

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/server/metrics"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

var _ Backend = (*Instrumented)(nil)

// Instrumented records every backend call in metrics.StorageOperations.
type Instrumented struct {
	next Backend
}

func NewInstrumented(next Backend) *Instrumented {
	return &Instrumented{next: next}
}

func (i *Instrumented) observe(op string, err error) {
	metrics.StorageOperations.WithLabelValues(string(i.next.Kind()), op, metrics.Result(err)).Inc()
}

func (i *Instrumented) Kind() models.BackendKind         { return i.next.Kind() }
func (i *Instrumented) Location(objectID string) string { return i.next.Location(objectID) }

func (i *Instrumented) WriteChunk(ctx context.Context, objectID string, index int64, data []byte) error {
	err := i.next.WriteChunk(ctx, objectID, index, data)
	i.observe("write", err)
	return err
}

func (i *Instrumented) ReadChunk(ctx context.Context, objectID string, index int64) ([]byte, error) {
	data, err := i.next.ReadChunk(ctx, objectID, index)
	i.observe("read", err)
	return data, err
}

func (i *Instrumented) Delete(ctx context.Context, objectID string) error {
	err := i.next.Delete(ctx, objectID)
	i.observe("delete", err)
	return err
}

func (i *Instrumented) Size(ctx context.Context, objectID string) (int64, error) {
	n, err := i.next.Size(ctx, objectID)
	i.observe("size", err)
	return n, err
}

func (i *Instrumented) Ping(ctx context.Context) error {
	if p, ok := i.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
