// Package tokens issues, validates and revokes access tokens: public links
// (repeatable with an expiry, or one-time) and stream sessions bound to a
// user's device.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/auth"
	"github.com/dmitrijs2005/gophdrive/internal/server/metrics"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/accesstokens"
	"github.com/google/uuid"
)

const (
	DefaultPublicLinkTTL    = 24 * time.Hour
	DefaultStreamSessionTTL = time.Hour

	// publicTokenBytes is the entropy of a public link token before hex encoding.
	publicTokenBytes = 32
)

type Manager struct {
	repo       accesstokens.Repository
	secret     []byte
	publicTTL  time.Duration
	sessionTTL time.Duration
	now        func() time.Time
	logger     logging.Logger
}

type Option func(*Manager)

// WithPublicLinkTTL sets the expiry used for repeatable links issued with
// a zero ttl.
func WithPublicLinkTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.publicTTL = d
		}
	}
}

// WithStreamSessionTTL sets the fixed lifetime of stream sessions.
func WithStreamSessionTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sessionTTL = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager signs stream sessions with secret.
func NewManager(repo accesstokens.Repository, secret []byte, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:       repo,
		secret:     secret,
		publicTTL:  DefaultPublicLinkTTL,
		sessionTTL: DefaultStreamSessionTTL,
		now:        time.Now,
		logger:     logger.With("module", "tokens"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// IssuePublic creates a public link for objectID. One-time links ignore ttl
// and stay valid until consumed or revoked.
func (m *Manager) IssuePublic(ctx context.Context, objectID, userID string, oneTime bool, ttl time.Duration) (*models.AccessToken, error) {
	value, err := common.MakeRandHexString(publicTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := m.now()
	t := &models.AccessToken{
		Value:     value,
		ObjectID:  objectID,
		UserID:    userID,
		Kind:      models.TokenPublicRepeatable,
		CreatedAt: now,
	}
	if oneTime {
		t.Kind = models.TokenPublicOneTime
	} else {
		if ttl <= 0 {
			ttl = m.publicTTL
		}
		exp := now.Add(ttl)
		t.ExpiresAt = &exp
	}

	if err := m.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	m.logger.Info(ctx, "public link issued", "object_id", objectID, "kind", string(t.Kind))
	return t, nil
}

// Validate authorizes one read of objectID. One-time tokens are consumed by
// the same atomic step that authorizes them.
func (m *Manager) Validate(ctx context.Context, value, objectID string) (*models.AccessToken, error) {
	t, err := m.check(ctx, value, objectID, true)
	m.observe(t, err)
	return t, err
}

// Inspect runs the checks of Validate without consuming one-time tokens.
func (m *Manager) Inspect(ctx context.Context, value, objectID string) (*models.AccessToken, error) {
	t, err := m.check(ctx, value, objectID, false)
	if err == nil && t.Consumed {
		err = common.ErrTokenConsumed
	}
	return t, err
}

func (m *Manager) check(ctx context.Context, value, objectID string, consume bool) (*models.AccessToken, error) {
	t, err := m.repo.Get(ctx, value)
	if err != nil {
		return nil, err
	}
	if t.Kind == models.TokenStreamSession {
		return nil, common.ErrTokenNotFound
	}

	now := m.now()
	if t.Kind == models.TokenPublicOneTime && consume {
		return m.repo.Consume(ctx, value, objectID, now)
	}

	switch {
	case t.ObjectID != objectID:
		return nil, common.ErrTokenObjectMismatch
	case t.Expired(now):
		return nil, common.ErrTokenExpired
	}
	return t, nil
}

// IssueStreamSession returns a signed session token for the device. The
// session is recorded under its jti so it can be revoked before expiry.
func (m *Manager) IssueStreamSession(ctx context.Context, userID, deviceID string) (string, *models.AccessToken, error) {
	if userID == "" {
		return "", nil, common.ErrorUnauthorized
	}

	now := m.now()
	exp := now.Add(m.sessionTTL)
	t := &models.AccessToken{
		Value:     uuid.NewString(),
		UserID:    userID,
		DeviceID:  deviceID,
		Kind:      models.TokenStreamSession,
		ExpiresAt: &exp,
		CreatedAt: now,
	}

	signed, err := auth.GenerateStreamToken(t.Value, userID, deviceID, m.secret, now, exp)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	if err := m.repo.Create(ctx, t); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}
	return signed, t, nil
}

// ValidateStreamSession verifies the signature and that the session has
// not been revoked.
func (m *Manager) ValidateStreamSession(ctx context.Context, signed string) (*models.AccessToken, error) {
	t, err := m.streamSession(ctx, signed)
	m.observe(&models.AccessToken{Kind: models.TokenStreamSession}, err)
	return t, err
}

func (m *Manager) streamSession(ctx context.Context, signed string) (*models.AccessToken, error) {
	claims, err := auth.ParseStreamToken(signed, m.secret, m.now())
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, err
		}
		return nil, common.ErrTokenNotFound
	}

	t, err := m.repo.Get(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if t.Kind != models.TokenStreamSession || t.UserID != claims.UserID {
		return nil, common.ErrTokenNotFound
	}
	if t.Expired(m.now()) {
		return nil, common.ErrTokenExpired
	}
	return t, nil
}

// RevokeStreamSession ends a session. Already expired or unknown sessions
// are not an error.
func (m *Manager) RevokeStreamSession(ctx context.Context, signed string) error {
	claims, err := auth.ParseStreamToken(signed, m.secret, m.now())
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil
		}
		return common.ErrTokenNotFound
	}

	if err := m.repo.Delete(ctx, claims.ID); err != nil && !errors.Is(err, common.ErrTokenNotFound) {
		return err
	}
	return nil
}

// RevokeAllForDevice ends every session of userID on deviceID.
func (m *Manager) RevokeAllForDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	n, err := m.repo.DeleteForDevice(ctx, userID, deviceID)
	if err != nil {
		return 0, err
	}
	m.logger.Info(ctx, "device sessions revoked", "user_id", userID, "device_id", deviceID, "count", n)
	return n, nil
}

// RevokePublicLinks removes every public link to objectID.
func (m *Manager) RevokePublicLinks(ctx context.Context, objectID string) (int64, error) {
	return m.repo.DeleteForObject(ctx, objectID)
}

// Sweep deletes expired tokens.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.now())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Warn(ctx, "token sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Debug(ctx, "expired tokens removed", "count", n)
			}
		}
	}
}

func (m *Manager) observe(t *models.AccessToken, err error) {
	kind := "unknown"
	if t != nil {
		kind = string(t.Kind)
	}
	metrics.TokenValidations.WithLabelValues(kind, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrTokenObjectMismatch):
		return "mismatch"
	case errors.Is(err, common.ErrTokenConsumed):
		return "consumed"
	default:
		return "error"
	}
}
