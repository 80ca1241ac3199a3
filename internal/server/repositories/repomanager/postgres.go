// Package repomanager wires the repository implementations together and
// runs schema migrations (via goose) for the PostgreSQL flavour.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/migrations"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/accesstokens"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/objects"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories sharing
// one connection pool.
type PostgresRepositoryManager struct {
	db *sql.DB
}

// OpenPostgres opens a pgx-backed pool for dsn and checks it is reachable.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (*PostgresRepositoryManager, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	return &PostgresRepositoryManager{db: db}, nil
}

func (m *PostgresRepositoryManager) Objects() objects.Repository {
	return objects.NewPostgresRepository(m.db)
}

func (m *PostgresRepositoryManager) AccessTokens() accesstokens.Repository {
	return accesstokens.NewPostgresRepository(m.db)
}

func (m *PostgresRepositoryManager) WithinTx(ctx context.Context, fn TxFunc) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, objects.NewPostgresRepository(tx), accesstokens.NewPostgresRepository(tx))
	})
}

// Ping reports whether the database answers.
func (m *PostgresRepositoryManager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}
