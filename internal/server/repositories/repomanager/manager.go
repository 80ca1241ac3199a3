package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/accesstokens"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/objects"
)

// TxFunc receives repositories bound to one unit of work.
type TxFunc func(ctx context.Context, objs objects.Repository, tokens accesstokens.Repository) error

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Objects() objects.Repository
	AccessTokens() accesstokens.Repository
	// WithinTx runs fn so that its writes commit or roll back together.
	WithinTx(ctx context.Context, fn TxFunc) error
	Close() error
}

// SaveObject persists a finished upload. The record is created pending and
// marked complete in one unit of work, so readers never see the pending row.
func SaveObject(ctx context.Context, m RepositoryManager, obj *models.StoredObject) error {
	err := m.WithinTx(ctx, func(ctx context.Context, objs objects.Repository, _ accesstokens.Repository) error {
		if err := objs.Create(ctx, obj); err != nil {
			return err
		}
		return objs.MarkComplete(ctx, obj.ID, obj.Length)
	})
	if err != nil {
		return fmt.Errorf("save object %s: %w", obj.ID, err)
	}
	obj.Status = models.StatusComplete
	return nil
}
