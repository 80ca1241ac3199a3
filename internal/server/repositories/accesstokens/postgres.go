package accesstokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository implements Repository over a dbx.DBTX. Consume relies
// on the row lock taken by a conditional UPDATE, so it stays linearizable
// across server instances.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `value, kind, object_id, user_id, device_id, expires_at, consumed, created_at`

func scanToken(row interface{ Scan(...any) error }) (*models.AccessToken, error) {
	var (
		t       models.AccessToken
		kind    string
		expires sql.NullTime
	)
	if err := row.Scan(&t.Value, &kind, &t.ObjectID, &t.UserID, &t.DeviceID, &expires, &t.Consumed, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Kind = models.TokenKind(kind)
	if expires.Valid {
		e := expires.Time
		t.ExpiresAt = &e
	}
	return &t, nil
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.AccessToken) error {
	var expires sql.NullTime
	if t.ExpiresAt != nil {
		expires = sql.NullTime{Time: *t.ExpiresAt, Valid: true}
	}
	query := `
		INSERT INTO access_tokens (value, kind, object_id, user_id, device_id, expires_at, consumed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.Value, string(t.Kind), t.ObjectID, t.UserID, t.DeviceID, expires, t.Consumed, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, value string) (*models.AccessToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM access_tokens WHERE value = $1`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to select token: %w", err)
	}
	return t, nil
}

// Consume marks the token consumed when every condition holds. When the
// UPDATE matches nothing the current row is read back to report why.
func (r *PostgresRepository) Consume(ctx context.Context, value, objectID string, now time.Time) (*models.AccessToken, error) {
	query := `
		UPDATE access_tokens SET consumed = TRUE
		WHERE value = $1 AND object_id = $2 AND consumed = FALSE
			AND (expires_at IS NULL OR expires_at > $3)
		RETURNING ` + tokenColumns

	t, err := scanToken(r.db.QueryRowContext(ctx, query, value, objectID, now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}

	cur, err := r.Get(ctx, value)
	if err != nil {
		return nil, err
	}
	switch {
	case cur.ObjectID != objectID:
		return nil, common.ErrTokenObjectMismatch
	case cur.Expired(now):
		return nil, common.ErrTokenExpired
	default:
		return nil, common.ErrTokenConsumed
	}
}

func (r *PostgresRepository) Delete(ctx context.Context, value string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE value = $1`, value)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrTokenNotFound
	}
	return nil
}

func (r *PostgresRepository) deleteWhere(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteForDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	return r.deleteWhere(ctx,
		`DELETE FROM access_tokens WHERE kind = 'stream-session' AND user_id = $1 AND device_id = $2`,
		userID, deviceID)
}

func (r *PostgresRepository) DeleteForObject(ctx context.Context, objectID string) (int64, error) {
	return r.deleteWhere(ctx,
		`DELETE FROM access_tokens WHERE kind <> 'stream-session' AND object_id = $1`,
		objectID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(ctx,
		`DELETE FROM access_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now)
}
