package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/accesstokens"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/objects"
)

// InMemoryRepositoryManager keeps everything in process memory. WithinTx
// offers no rollback: each repository call is atomic on its own.
type InMemoryRepositoryManager struct {
	objects *objects.InMemoryRepository
	tokens  *accesstokens.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		objects: objects.NewInMemoryRepository(),
		tokens:  accesstokens.NewInMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Objects() objects.Repository { return m.objects }

func (m *InMemoryRepositoryManager) AccessTokens() accesstokens.Repository { return m.tokens }

func (m *InMemoryRepositoryManager) WithinTx(ctx context.Context, fn TxFunc) error {
	return fn(ctx, m.objects, m.tokens)
}

func (m *InMemoryRepositoryManager) Close() error { return nil }
