// Package ingest turns an upload byte stream into encrypted chunks on a
// storage backend.
//
// An UploadSession buffers at most one chunk of plaintext. Each full chunk
// is sealed and written synchronously, so a slow backend slows the writer
// down instead of growing memory. The context given to Begin is the upload's
// cancellation token: once it is done, the session refuses further data and
// Ingest removes whatever was already written.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/metrics"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/google/uuid"
)

// copyBufferSize bounds the read buffer used by Ingest.
const copyBufferSize = 256 << 10

// Pipeline creates upload sessions against one backend.
type Pipeline struct {
	backend   storage.Backend
	keys      *cryptox.KeyWrapper
	chunkSize int64
	maxSize   int64
	logger    logging.Logger
	now       func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMaxSize limits the plaintext size of a single upload (0 = unlimited).
func WithMaxSize(n int64) Option {
	return func(p *Pipeline) { p.maxSize = n }
}

// NewPipeline builds a pipeline writing chunkSize-byte chunks to backend.
func NewPipeline(backend storage.Backend, keys *cryptox.KeyWrapper, chunkSize int64, logger logging.Logger, opts ...Option) (*Pipeline, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	p := &Pipeline{
		backend:   backend,
		keys:      keys,
		chunkSize: chunkSize,
		logger:    logger.With("module", "ingest"),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// BeginRequest carries the pass-through metadata of a new object.
type BeginRequest struct {
	OwnerID      string
	ParentID     string
	Filename     string
	ContentType  string
	PersonalFile bool
	IsThumbnail  bool
	// ChunkSize overrides the pipeline default when positive.
	ChunkSize int64
}

type sessionState int

const (
	stateOpen sessionState = iota
	stateFinished
	stateAborted
	stateFailed
)

// UploadSession is a single in-progress upload. It is not safe for
// concurrent Write calls; Abort may be called from any goroutine.
type UploadSession struct {
	ctx      context.Context
	pipeline *Pipeline
	cipher   *cryptox.ChunkCipher
	key      []byte
	object   *models.StoredObject
	logger   logging.Logger

	mu      sync.Mutex
	state   sessionState
	err     error
	buf     []byte
	next    int64
	written int64
}

// Begin allocates an object id and key material. Nothing touches the
// backend until the first chunk fills up.
func (p *Pipeline) Begin(ctx context.Context, req BeginRequest) (*UploadSession, error) {
	chunkSize := p.chunkSize
	if req.ChunkSize > 0 {
		chunkSize = req.ChunkSize
	}

	id := uuid.NewString()
	key := cryptox.NewObjectKey()
	baseIV := cryptox.NewBaseIV()

	cipher, err := cryptox.NewChunkCipher(key, baseIV)
	if err != nil {
		return nil, err
	}
	wrapped, nonce, err := p.keys.Wrap(id, key)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}

	obj := &models.StoredObject{
		ID:            id,
		Filename:      req.Filename,
		ContentType:   req.ContentType,
		ChunkSize:     chunkSize,
		FormatVersion: cryptox.FormatVersion,
		EncryptedKey:  wrapped,
		KeyNonce:      nonce,
		BaseIV:        baseIV,
		Backend:       p.backend.Kind(),
		Location:      p.backend.Location(id),
		CreatedAt:     p.now().UTC(),
		Status:        models.StatusPending,
		OwnerID:       req.OwnerID,
		ParentID:      req.ParentID,
		PersonalFile:  req.PersonalFile,
		IsThumbnail:   req.IsThumbnail,
	}

	return &UploadSession{
		ctx:      ctx,
		pipeline: p,
		cipher:   cipher,
		key:      key,
		object:   obj,
		logger:   p.logger.With("object_id", id),
		buf:      make([]byte, 0, chunkSize),
	}, nil
}

// ObjectID returns the id allocated for this upload.
func (s *UploadSession) ObjectID() string { return s.object.ID }

// Written returns the plaintext bytes accepted so far.
func (s *UploadSession) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *UploadSession) checkOpen() error {
	switch s.state {
	case stateOpen:
	case stateAborted:
		return common.ErrUploadAborted
	case stateFailed:
		return fmt.Errorf("%w: %w", common.ErrUploadAborted, s.err)
	default:
		return errors.New("upload session already finished")
	}
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrUploadAborted, err)
	}
	return nil
}

// Write implements io.Writer. Each completed chunk is sealed and stored
// before Write returns. After any failure the session stays failed and the
// caller is expected to Abort.
func (s *UploadSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	if limit := s.pipeline.maxSize; limit > 0 && s.written+int64(len(p)) > limit {
		s.fail(fmt.Errorf("limit %d bytes: %w", limit, common.ErrTooLarge))
		return 0, s.err
	}

	n := 0
	chunkSize := int(s.object.ChunkSize)
	for len(p) > 0 {
		room := chunkSize - len(s.buf)
		take := min(room, len(p))
		s.buf = append(s.buf, p[:take]...)
		p = p[take:]
		n += take
		s.written += int64(take)

		if len(s.buf) == chunkSize {
			if err := s.flushLocked(); err != nil {
				return n, err
			}
		}
	}
	metrics.BytesIngested.Add(float64(n))
	return n, nil
}

func (s *UploadSession) flushLocked() error {
	if len(s.buf) == 0 {
		return nil
	}
	if err := s.ctx.Err(); err != nil {
		s.fail(err)
		return fmt.Errorf("%w: %w", common.ErrUploadAborted, err)
	}

	sealed := s.cipher.Seal(s.next, s.buf)
	if err := s.pipeline.backend.WriteChunk(s.ctx, s.object.ID, s.next, sealed); err != nil {
		s.fail(err)
		return fmt.Errorf("write chunk %d: %w", s.next, err)
	}
	s.logger.Debug(s.ctx, "chunk stored", "index", s.next, "size", len(s.buf))

	s.next++
	s.buf = s.buf[:0]
	return nil
}

func (s *UploadSession) fail(err error) {
	s.state = stateFailed
	s.err = err
}

// Finish flushes the trailing partial chunk and returns the descriptor of
// the stored object. The descriptor is still StatusPending: the caller
// persists it and marks it complete.
func (s *UploadSession) Finish() (*models.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.flushLocked(); err != nil {
		return nil, err
	}

	s.state = stateFinished
	s.object.Length = s.written
	common.WipeByteArray(s.key)
	metrics.UploadsTotal.WithLabelValues("complete").Inc()

	obj := *s.object
	return &obj, nil
}

// Abort deletes every chunk written so far. It is idempotent and must not
// be called after a successful Finish.
func (s *UploadSession) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateAborted:
		return nil
	case stateFinished:
		return errors.New("upload session already finished")
	}
	s.state = stateAborted
	s.buf = nil
	common.WipeByteArray(s.key)
	metrics.UploadsTotal.WithLabelValues("aborted").Inc()

	// cleanup must run even when the upload context is already canceled
	ctx := context.WithoutCancel(s.ctx)
	if err := s.pipeline.backend.Delete(ctx, s.object.ID); err != nil {
		s.logger.Error(ctx, "failed to remove chunks of aborted upload", "error", err)
		return fmt.Errorf("abort %s: %w", s.object.ID, err)
	}
	s.logger.Info(ctx, "upload aborted", "chunks_removed", s.next)
	return nil
}

// Ingest streams r through a new session. On any read, write or
// cancellation error the session is aborted and the returned error wraps
// common.ErrUploadAborted together with the cause.
func (p *Pipeline) Ingest(ctx context.Context, req BeginRequest, r io.Reader) (*models.StoredObject, error) {
	s, err := p.Begin(ctx, req)
	if err != nil {
		return nil, err
	}

	abort := func(cause error) error {
		if aerr := s.Abort(); aerr != nil {
			p.logger.Error(ctx, "abort failed", "object_id", s.ObjectID(), "error", aerr)
		}
		if errors.Is(cause, common.ErrUploadAborted) {
			return cause
		}
		return fmt.Errorf("%w: %w", common.ErrUploadAborted, cause)
	}

	buf := make([]byte, min(s.object.ChunkSize, copyBufferSize))
	if _, err := io.CopyBuffer(s, ctxReader{ctx: ctx, r: r}, buf); err != nil {
		return nil, abort(err)
	}

	obj, err := s.Finish()
	if err != nil {
		return nil, abort(err)
	}
	return obj, nil
}

// ctxReader stops a copy loop as soon as ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
