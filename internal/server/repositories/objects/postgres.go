package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a pending record.
func (r *PostgresRepository) Create(ctx context.Context, o *models.StoredObject) error {
	query := `
		INSERT INTO objects (id, filename, content_type, length, chunk_size, format_version,
			encrypted_key, key_nonce, base_iv, backend, location, status,
			owner_id, parent_id, trashed, personal_file, is_video, is_thumbnail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.ExecContext(ctx, query,
		o.ID, o.Filename, o.ContentType, o.Length, o.ChunkSize, o.FormatVersion,
		o.EncryptedKey, o.KeyNonce, o.BaseIV, string(o.Backend), o.Location, string(models.StatusPending),
		o.OwnerID, o.ParentID, o.Trashed, o.PersonalFile, o.IsVideo, o.IsThumbnail, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// exactlyOne converts an Exec result into ErrorNotFound unless one row changed.
func exactlyOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// MarkComplete finalizes the length of a pending record.
func (r *PostgresRepository) MarkComplete(ctx context.Context, id string, length int64) error {
	query := `UPDATE objects SET status = 'complete', length = $2 WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, length)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return exactlyOne(res)
}

// Get returns a complete record.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.StoredObject, error) {
	query := `
		SELECT id, filename, content_type, length, chunk_size, format_version,
			encrypted_key, key_nonce, base_iv, backend, location, status,
			owner_id, parent_id, trashed, personal_file, is_video, is_thumbnail,
			has_thumbnail, thumbnail_id, created_at
		FROM objects WHERE id = $1 AND status = 'complete'
	`
	var (
		o       models.StoredObject
		backend string
		status  string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.Filename, &o.ContentType, &o.Length, &o.ChunkSize, &o.FormatVersion,
		&o.EncryptedKey, &o.KeyNonce, &o.BaseIV, &backend, &o.Location, &status,
		&o.OwnerID, &o.ParentID, &o.Trashed, &o.PersonalFile, &o.IsVideo, &o.IsThumbnail,
		&o.HasThumbnail, &o.ThumbnailID, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select object: %w", err)
	}
	o.Backend = models.BackendKind(backend)
	o.Status = models.ObjectStatus(status)
	return &o, nil
}

// Delete removes the record in any state.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM objects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return exactlyOne(res)
}

// SetThumbnail links a derived thumbnail object to a complete record.
func (r *PostgresRepository) SetThumbnail(ctx context.Context, id, thumbnailID string) error {
	query := `UPDATE objects SET has_thumbnail = TRUE, thumbnail_id = $2 WHERE id = $1 AND status = 'complete'`
	res, err := r.db.ExecContext(ctx, query, id, thumbnailID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return exactlyOne(res)
}
