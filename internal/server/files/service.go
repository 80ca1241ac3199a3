// Package files is the facade the transport layer talks to. It ties the
// ingest pipeline, the metadata store, the range reader, access tokens and
// thumbnails together into user-level operations.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/ingest"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/rangereader"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/objects"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
	"github.com/dmitrijs2005/gophdrive/internal/server/tokens"
)

const defaultContentType = "application/octet-stream"

// Deps are the collaborators of a Service. Objects defaults to
// Repos.Objects() and Thumbnails may be nil to disable thumbnails.
type Deps struct {
	Pipeline   *ingest.Pipeline
	Backend    storage.Backend
	Keys       *cryptox.KeyWrapper
	Repos      repomanager.RepositoryManager
	Objects    objects.Repository
	Tokens     *tokens.Manager
	Thumbnails *thumbnail.Orchestrator
	// ReadAhead is the range reader window in chunks.
	ReadAhead int
	Logger    logging.Logger
}

type Service struct {
	pipeline *ingest.Pipeline
	backend  storage.Backend
	keys     *cryptox.KeyWrapper
	repos    repomanager.RepositoryManager
	objects  objects.Repository
	tokens   *tokens.Manager
	thumbs   *thumbnail.Orchestrator
	window   int
	logger   logging.Logger
}

func NewService(d Deps) *Service {
	objs := d.Objects
	if objs == nil {
		objs = d.Repos.Objects()
	}
	return &Service{
		pipeline: d.Pipeline,
		backend:  d.Backend,
		keys:     d.Keys,
		repos:    d.Repos,
		objects:  objs,
		tokens:   d.Tokens,
		thumbs:   d.Thumbnails,
		window:   d.ReadAhead,
		logger:   d.Logger.With("module", "files"),
	}
}

// UploadRequest describes an incoming file. An empty or generic
// ContentType is replaced by one guessed from the file extension.
type UploadRequest struct {
	OwnerID      string
	ParentID     string
	Filename     string
	ContentType  string
	PersonalFile bool
}

// DetectContentType resolves the content type stored for an upload.
func DetectContentType(filename, declared string) string {
	if declared != "" && declared != defaultContentType {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	return defaultContentType
}

// cleanFilename drops any directory part a client sent along.
func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "/" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// Upload stores r as a new object owned by req.OwnerID. The record becomes
// visible only after every chunk is durable; if saving it fails the chunks
// are removed again. Thumbnail failures are logged and do not fail the upload.
func (s *Service) Upload(ctx context.Context, req UploadRequest, r io.Reader) (*models.StoredObject, error) {
	if req.OwnerID == "" {
		return nil, common.ErrorUnauthorized
	}
	contentType := DetectContentType(req.Filename, req.ContentType)

	obj, err := s.pipeline.Ingest(ctx, ingest.BeginRequest{
		OwnerID:      req.OwnerID,
		ParentID:     req.ParentID,
		Filename:     cleanFilename(req.Filename),
		ContentType:  contentType,
		PersonalFile: req.PersonalFile,
	}, r)
	if err != nil {
		return nil, err
	}
	obj.IsVideo = strings.HasPrefix(contentType, "video/")

	if err := repomanager.SaveObject(ctx, s.repos, obj); err != nil {
		s.removeChunks(ctx, obj.ID)
		return nil, err
	}
	s.logger.Info(ctx, "object stored", "object_id", obj.ID, "length", obj.Length, "content_type", contentType)

	if s.thumbs != nil && s.thumbs.ShouldGenerate(obj) {
		s.makeThumbnail(ctx, obj)
	}
	return obj, nil
}

func (s *Service) makeThumbnail(ctx context.Context, obj *models.StoredObject) {
	rd, err := s.open(ctx, obj, 0, rangereader.EOF)
	if err != nil {
		s.logger.Warn(ctx, "thumbnail skipped", "object_id", obj.ID, "error", err)
		return
	}
	defer rd.Close()

	if _, err := s.thumbs.Generate(ctx, obj, rd); err != nil {
		s.logger.Warn(ctx, "thumbnail failed", "object_id", obj.ID, "error", err)
	}
}

// Stat returns the object if userID owns it. Objects of other users are
// reported as common.ErrorNotFound.
func (s *Service) Stat(ctx context.Context, userID, id string) (*models.StoredObject, error) {
	obj, err := s.objects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID == "" || obj.OwnerID != userID {
		return nil, common.ErrorNotFound
	}
	return obj, nil
}

// Open returns a reader over bytes [start, end] of obj; end may be
// rangereader.EOF.
func (s *Service) Open(ctx context.Context, obj *models.StoredObject, start, end int64) (*rangereader.Reader, error) {
	return s.open(ctx, obj, start, end)
}

func (s *Service) open(ctx context.Context, obj *models.StoredObject, start, end int64) (*rangereader.Reader, error) {
	c, err := s.cipher(obj)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, obj, c, start, end)
}

// cipher checks that obj is readable by this service and unwraps its key.
func (s *Service) cipher(obj *models.StoredObject) (*cryptox.ChunkCipher, error) {
	if obj.FormatVersion != cryptox.FormatVersion {
		return nil, fmt.Errorf("object %s: format version %d: %w", obj.ID, obj.FormatVersion, common.ErrCorruptObject)
	}
	if obj.Backend != s.backend.Kind() {
		return nil, fmt.Errorf("object %s is on the %s backend: %w", obj.ID, obj.Backend, common.ErrStorageUnavailable)
	}

	key, err := s.keys.Unwrap(obj.ID, obj.EncryptedKey, obj.KeyNonce)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w: %w", obj.ID, common.ErrCorruptObject, err)
	}
	c, err := cryptox.NewChunkCipher(key, obj.BaseIV)
	common.WipeByteArray(key)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w: %w", obj.ID, common.ErrCorruptObject, err)
	}
	return c, nil
}

func (s *Service) read(ctx context.Context, obj *models.StoredObject, c *cryptox.ChunkCipher, start, end int64) (*rangereader.Reader, error) {
	return rangereader.Open(ctx, rangereader.Source{Backend: s.backend, Cipher: c, Object: obj}, start, end,
		rangereader.Options{Window: s.window})
}

// Download opens the whole object.
func (s *Service) Download(ctx context.Context, userID, id string) (*models.StoredObject, *rangereader.Reader, error) {
	return s.Stream(ctx, userID, id, 0, rangereader.EOF)
}

// Stream opens bytes [start, end] of the object.
func (s *Service) Stream(ctx context.Context, userID, id string, start, end int64) (*models.StoredObject, *rangereader.Reader, error) {
	obj, err := s.Stat(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	rd, err := s.open(ctx, obj, start, end)
	if err != nil {
		return nil, nil, err
	}
	return obj, rd, nil
}

// Thumbnail returns the decrypted thumbnail bytes of an object.
func (s *Service) Thumbnail(ctx context.Context, userID, id string) ([]byte, error) {
	obj, err := s.Stat(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !obj.HasThumbnail || obj.ThumbnailID == "" {
		return nil, common.ErrorNotFound
	}

	thumb, err := s.objects.Get(ctx, obj.ThumbnailID)
	if err != nil {
		return nil, err
	}
	rd, err := s.open(ctx, thumb, 0, rangereader.EOF)
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	buf := bytes.NewBuffer(make([]byte, 0, thumb.Length))
	if _, err := io.Copy(buf, rd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PublicDownload opens an object through a public link. One-time links are
// consumed here, after the record is found and its key unwraps, so a link
// to a deleted or unreadable object is not burnt. Failures while the body
// streams still use the link up.
func (s *Service) PublicDownload(ctx context.Context, id, token string) (*models.StoredObject, *rangereader.Reader, error) {
	obj, err := s.objects.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.cipher(obj)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.tokens.Validate(ctx, token, id); err != nil {
		return nil, nil, err
	}
	rd, err := s.read(ctx, obj, c, 0, rangereader.EOF)
	if err != nil {
		return nil, nil, err
	}
	return obj, rd, nil
}

// PublicInfo describes the object behind a public link without using it up.
func (s *Service) PublicInfo(ctx context.Context, id, token string) (*models.StoredObject, error) {
	if _, err := s.tokens.Inspect(ctx, token, id); err != nil {
		return nil, err
	}
	return s.objects.Get(ctx, id)
}

// MakePublic issues a repeatable link valid for ttl (the configured default
// when zero).
func (s *Service) MakePublic(ctx context.Context, userID, id string, ttl time.Duration) (*models.AccessToken, error) {
	if _, err := s.Stat(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.tokens.IssuePublic(ctx, id, userID, false, ttl)
}

// MakeOneTimePublic issues a link that works for exactly one download.
func (s *Service) MakeOneTimePublic(ctx context.Context, userID, id string) (*models.AccessToken, error) {
	if _, err := s.Stat(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.tokens.IssuePublic(ctx, id, userID, true, 0)
}

// RemoveLink revokes every public link of the object.
func (s *Service) RemoveLink(ctx context.Context, userID, id string) error {
	if _, err := s.Stat(ctx, userID, id); err != nil {
		return err
	}
	n, err := s.tokens.RevokePublicLinks(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "public links removed", "object_id", id, "count", n)
	return nil
}

// Delete removes the object, its thumbnail and its public links. Records go
// first so no reader can reach chunks that are being removed.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	obj, err := s.Stat(ctx, userID, id)
	if err != nil {
		return err
	}

	if _, err := s.tokens.RevokePublicLinks(ctx, id); err != nil {
		return err
	}

	var errs []error
	if obj.HasThumbnail && obj.ThumbnailID != "" {
		if err := s.objects.Delete(ctx, obj.ThumbnailID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			errs = append(errs, err)
		}
		errs = append(errs, s.backend.Delete(ctx, obj.ThumbnailID))
	}
	if err := s.objects.Delete(ctx, id); err != nil {
		return errors.Join(append(errs, err)...)
	}
	errs = append(errs, s.backend.Delete(ctx, id))

	if err := errors.Join(errs...); err != nil {
		s.logger.Error(ctx, "object deleted with leftovers", "object_id", id, "error", err)
		return err
	}
	s.logger.Info(ctx, "object deleted", "object_id", id)
	return nil
}

func (s *Service) removeChunks(ctx context.Context, id string) {
	if err := s.backend.Delete(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Error(ctx, "failed to remove chunks of unsaved object", "object_id", id, "error", err)
	}
}
