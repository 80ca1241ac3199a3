// Package rangereader serves a plaintext byte range of a stored object by
// fetching and decrypting only the chunks that overlap it.
package rangereader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/server/metrics"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultWindow is the number of decrypted chunks buffered ahead of the
// consumer when Options.Window is not set.
const DefaultWindow = 4

// EOF is the sentinel for Open's end argument meaning "through the last byte".
const EOF int64 = -1

// Source bundles what a reader needs to reach and decrypt an object.
type Source struct {
	Backend storage.Backend
	Cipher  *cryptox.ChunkCipher
	Object  *models.StoredObject
}

// Options tunes read-ahead.
type Options struct {
	// Window is how many chunks may be fetched ahead of the consumer.
	Window int
}

// Reader is an io.ReadCloser over the plaintext bytes [start, end] of an
// object. A background producer fetches chunks in order, at most Window
// ahead of the consumer.
//
// Read returns io.EOF only after exactly Len bytes were delivered. A failed
// stream returns an error wrapping common.ErrCorruptObject,
// common.ErrStorageUnavailable or the context error instead.
//
// Read and Close must not be called concurrently; cancel the context passed
// to Open to stop a reader from another goroutine.
type Reader struct {
	chunks    <-chan []byte
	cancel    context.CancelFunc
	group     *errgroup.Group
	length    int64
	remaining int64
	cur       []byte
	err       error

	closeOnce sync.Once
}

// Open validates the range and starts the producer. end may be EOF.
// Valid ranges satisfy 0 <= start <= end < object length; an empty object
// accepts only (0, EOF) and yields no bytes.
func Open(ctx context.Context, src Source, start, end int64, opts Options) (*Reader, error) {
	obj := src.Object
	if obj.ChunkSize <= 0 {
		return nil, fmt.Errorf("object %s: chunk size %d: %w", obj.ID, obj.ChunkSize, common.ErrCorruptObject)
	}

	if end == EOF {
		end = obj.Length - 1
	}
	if obj.Length == 0 && start == 0 && end == -1 {
		ch := make(chan []byte)
		close(ch)
		metrics.ActiveReaders.Inc()
		return &Reader{chunks: ch, cancel: func() {}, group: &errgroup.Group{}}, nil
	}
	if start < 0 || start > end || end >= obj.Length {
		return nil, fmt.Errorf("range %d-%d of %d bytes: %w", start, end, obj.Length, common.ErrInvalidRange)
	}

	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan []byte, window)

	g.Go(func() error {
		defer close(ch)
		return produce(gctx, src, start, end, ch)
	})

	metrics.ActiveReaders.Inc()
	span := end - start + 1
	return &Reader{
		chunks:    ch,
		cancel:    cancel,
		group:     g,
		length:    span,
		remaining: span,
	}, nil
}

func produce(ctx context.Context, src Source, start, end int64, out chan<- []byte) error {
	obj := src.Object
	first := start / obj.ChunkSize
	last := end / obj.ChunkSize

	for idx := first; idx <= last; idx++ {
		sealed, err := src.Backend.ReadChunk(ctx, obj.ID, idx)
		if err != nil {
			return classify(obj.ID, idx, err)
		}

		plain, err := src.Cipher.Open(idx, sealed)
		if err != nil {
			return fmt.Errorf("object %s: %w: %w", obj.ID, common.ErrCorruptObject, err)
		}

		want := min(obj.ChunkSize, obj.Length-idx*obj.ChunkSize)
		if int64(len(plain)) != want {
			return fmt.Errorf("object %s chunk %d: %d plaintext bytes, want %d: %w",
				obj.ID, idx, len(plain), want, common.ErrCorruptObject)
		}

		lo, hi := int64(0), int64(len(plain))
		if idx == first {
			lo = start % obj.ChunkSize
		}
		if idx == last {
			hi = end%obj.ChunkSize + 1
		}

		select {
		case out <- plain[lo:hi]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func classify(objectID string, idx int64, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, common.ErrChunkNotFound):
		return fmt.Errorf("object %s: missing chunk %d: %w: %w", objectID, idx, common.ErrCorruptObject, err)
	case errors.Is(err, common.ErrStorageUnavailable):
		return err
	default:
		return fmt.Errorf("object %s chunk %d: %w: %w", objectID, idx, common.ErrStorageUnavailable, err)
	}
}

// Len is the number of bytes the reader delivers on success.
func (r *Reader) Len() int64 { return r.length }

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for len(r.cur) == 0 {
		if r.remaining == 0 {
			return 0, io.EOF
		}
		chunk, ok := <-r.chunks
		if !ok {
			err := r.group.Wait()
			if err == nil {
				err = fmt.Errorf("stream ended %d bytes early: %w", r.remaining, common.ErrCorruptObject)
			}
			r.err = err
			return 0, err
		}
		r.cur = chunk
	}

	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	r.remaining -= int64(n)
	metrics.BytesServed.Add(float64(n))
	return n, nil
}

// Close stops the producer and releases buffered chunks. It is safe to call
// more than once; subsequent Reads fail.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		_ = r.group.Wait()
		for range r.chunks {
		}
		r.cur = nil
		if r.err == nil {
			r.err = errors.New("rangereader: read on closed reader")
		}
		metrics.ActiveReaders.Dec()
	})
	return nil
}
