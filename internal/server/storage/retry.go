package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/metrics"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/sethvargo/go-retry"
)

var _ Backend = (*Retrying)(nil)

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 2 * time.Second

// Retrying retries transient backend failures with exponential backoff.
// Missing chunks, invalid ids and context cancellation are returned as-is;
// any other failure that survives every attempt is wrapped with
// common.ErrStorageUnavailable.
type Retrying struct {
	next     Backend
	attempts uint64
	base     time.Duration
	logger   logging.Logger
}

// NewRetrying wraps next. attempts is the total number of tries (minimum 1).
func NewRetrying(next Backend, attempts int, base time.Duration, logger logging.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	return &Retrying{
		next:     next,
		attempts: uint64(attempts),
		base:     base,
		logger:   logger.With("module", "storage_retry"),
	}
}

func (r *Retrying) backoff() retry.Backoff {
	b := retry.NewExponential(r.base)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	return retry.WithMaxRetries(r.attempts-1, b)
}

func (r *Retrying) do(ctx context.Context, op, objectID string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !transient(err) {
			return err
		}
		r.logger.Warn(ctx, "storage call failed", "op", op, "object_id", objectID, "attempt", attempt, "error", err)
		if uint64(attempt) < r.attempts {
			metrics.StorageRetries.WithLabelValues(op).Inc()
		}
		return retry.RetryableError(err)
	})
	if err != nil && transient(err) {
		return fmt.Errorf("%s %s after %d attempts: %w: %w", op, objectID, attempt, common.ErrStorageUnavailable, err)
	}
	return err
}

// transient reports whether err is worth another attempt.
func transient(err error) bool {
	switch {
	case errors.Is(err, common.ErrChunkNotFound),
		errors.Is(err, common.ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (r *Retrying) Kind() models.BackendKind         { return r.next.Kind() }
func (r *Retrying) Location(objectID string) string { return r.next.Location(objectID) }

func (r *Retrying) WriteChunk(ctx context.Context, objectID string, index int64, data []byte) error {
	if err := validateObjectID(objectID); err != nil {
		return err
	}
	return r.do(ctx, "write", objectID, func(ctx context.Context) error {
		return r.next.WriteChunk(ctx, objectID, index, data)
	})
}

func (r *Retrying) ReadChunk(ctx context.Context, objectID string, index int64) ([]byte, error) {
	if err := validateObjectID(objectID); err != nil {
		return nil, err
	}
	var data []byte
	err := r.do(ctx, "read", objectID, func(ctx context.Context) error {
		var err error
		data, err = r.next.ReadChunk(ctx, objectID, index)
		return err
	})
	return data, err
}

func (r *Retrying) Delete(ctx context.Context, objectID string) error {
	if err := validateObjectID(objectID); err != nil {
		return err
	}
	return r.do(ctx, "delete", objectID, func(ctx context.Context) error {
		return r.next.Delete(ctx, objectID)
	})
}

func (r *Retrying) Size(ctx context.Context, objectID string) (int64, error) {
	if err := validateObjectID(objectID); err != nil {
		return 0, err
	}
	var n int64
	err := r.do(ctx, "size", objectID, func(ctx context.Context) error {
		var err error
		n, err = r.next.Size(ctx, objectID)
		return err
	})
	return n, err
}

func (r *Retrying) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
