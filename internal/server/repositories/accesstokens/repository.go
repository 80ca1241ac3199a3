// Package accesstokens stores access token records for public links and
// stream sessions.
package accesstokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Repository persists tokens keyed by their value.
//
// Consume is the one-time-use primitive: it checks and marks a token in a
// single linearizable step, so concurrent callers presenting the same token
// see exactly one success. Failures are reported, in this order of
// precedence, as common.ErrTokenNotFound, common.ErrTokenObjectMismatch,
// common.ErrTokenExpired and common.ErrTokenConsumed.
type Repository interface {
	Create(ctx context.Context, t *models.AccessToken) error
	Get(ctx context.Context, value string) (*models.AccessToken, error)
	Consume(ctx context.Context, value, objectID string, now time.Time) (*models.AccessToken, error)
	Delete(ctx context.Context, value string) error
	// DeleteForDevice removes every stream-session token of a user's device.
	DeleteForDevice(ctx context.Context, userID, deviceID string) (int64, error)
	// DeleteForObject removes every public link of an object.
	DeleteForObject(ctx context.Context, objectID string) (int64, error)
	// DeleteExpired removes tokens whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
