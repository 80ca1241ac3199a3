package models

import "time"

// TokenKind distinguishes the access token families.
type TokenKind string

const (
	// TokenPublicRepeatable grants unlimited downloads of one object until it expires.
	TokenPublicRepeatable TokenKind = "public-repeatable"
	// TokenPublicOneTime grants exactly one download of one object.
	TokenPublicOneTime TokenKind = "public-one-time"
	// TokenStreamSession authorizes range playback for a user's device.
	TokenStreamSession TokenKind = "stream-session"
)

// AccessToken is a bearer capability. ObjectID is empty for stream sessions,
// UserID is empty for anonymous links, ExpiresAt is nil when the token does
// not expire.
type AccessToken struct {
	Value     string
	ObjectID  string
	UserID    string
	DeviceID  string
	Kind      TokenKind
	ExpiresAt *time.Time
	Consumed  bool
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t *AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
