package objects

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var createdAt = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func sampleObject() *models.StoredObject {
	return &models.StoredObject{
		ID:            "obj-1",
		Filename:      "movie.mp4",
		ContentType:   "video/mp4",
		ChunkSize:     1 << 20,
		FormatVersion: 1,
		EncryptedKey:  []byte("wrapped"),
		KeyNonce:      []byte("nonce"),
		BaseIV:        []byte("iv"),
		Backend:       models.BackendFilesystem,
		Location:      "/data/ob/obj-1",
		CreatedAt:     createdAt,
		OwnerID:       "u1",
		ParentID:      "/",
		IsVideo:       true,
	}
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	o := sampleObject()

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+objects\b`).
		WithArgs(o.ID, o.Filename, o.ContentType, int64(0), o.ChunkSize, 1,
			o.EncryptedKey, o.KeyNonce, o.BaseIV, "filesystem", o.Location, "pending",
			"u1", "/", false, false, true, false, createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+objects`).WillReturnError(errors.New("duplicate key"))

	err := repo.Create(context.Background(), sampleObject())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: duplicate key")
}

func TestMarkComplete(t *testing.T) {
	tests := []struct {
		name    string
		result  sql.Result
		execErr error
		wantErr error
		errText string
	}{
		{name: "ok", result: sqlmock.NewResult(0, 1)},
		{name: "not pending", result: sqlmock.NewResult(0, 0), wantErr: common.ErrorNotFound},
		{name: "db error", execErr: errors.New("conn refused"), errText: "db error: conn refused"},
		{name: "rows affected error", result: sqlmock.NewErrorResult(errors.New("rows-err")), errText: "rows affected error: rows-err"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			exp := mock.ExpectExec(`UPDATE\s+objects\s+SET\s+status\s*=\s*'complete',\s*length\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+status\s*=\s*'pending'`).
				WithArgs("obj-1", int64(42))
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(tt.result)
			}

			err := repo.MarkComplete(context.Background(), "obj-1", 42)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				assert.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

var selectColumns = []string{
	"id", "filename", "content_type", "length", "chunk_size", "format_version",
	"encrypted_key", "key_nonce", "base_iv", "backend", "location", "status",
	"owner_id", "parent_id", "trashed", "personal_file", "is_video", "is_thumbnail",
	"has_thumbnail", "thumbnail_id", "created_at",
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	want := sampleObject()
	want.Length = 52428800
	want.Status = models.StatusComplete
	want.HasThumbnail = true
	want.ThumbnailID = "thumb-1"

	rows := sqlmock.NewRows(selectColumns).AddRow(
		want.ID, want.Filename, want.ContentType, want.Length, want.ChunkSize, want.FormatVersion,
		want.EncryptedKey, want.KeyNonce, want.BaseIV, "filesystem", want.Location, "complete",
		want.OwnerID, want.ParentID, false, false, true, false,
		true, "thumb-1", createdAt)
	mock.ExpectQuery(`(?s)SELECT\s+id,.*FROM\s+objects\s+WHERE\s+id\s*=\s*\$1\s+AND\s+status\s*=\s*'complete'`).
		WithArgs("obj-1").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "obj-1")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM\s+objects`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGet_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM\s+objects`).WithArgs("x").WillReturnError(errors.New("timeout"))

	_, err := repo.Get(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`DELETE\s+FROM\s+objects\s+WHERE\s+id\s*=\s*\$1`).WithArgs("obj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+objects`).WithArgs("obj-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "obj-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "obj-1"), common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetThumbnail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE\s+objects\s+SET\s+has_thumbnail\s*=\s*TRUE,\s*thumbnail_id\s*=\s*\$2`).
		WithArgs("obj-1", "thumb-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetThumbnail(context.Background(), "obj-1", "thumb-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
