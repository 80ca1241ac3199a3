// Package common defines shared constants, helpers and sentinel errors used
// across gophdrive components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Access token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTokenObjectMismatch = errors.New("token issued for another object")
	ErrTokenConsumed       = errors.New("token already consumed")

	// Chunk codec errors.
	ErrIntegrity  = errors.New("chunk integrity check failed")
	ErrShortChunk = errors.New("chunk shorter than cipher overhead")

	// Storage errors.
	ErrChunkNotFound      = errors.New("chunk not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCorruptObject      = errors.New("corrupt object")

	// Upload / read flow errors.
	ErrUploadAborted = errors.New("upload aborted")
	ErrTooLarge      = errors.New("object too large")
	ErrInvalidRange  = errors.New("invalid byte range")

	// Thumbnail codec errors.
	ErrUnsupportedFormat = errors.New("unsupported format")
)
