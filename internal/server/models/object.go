// Package models defines the object and access token records shared by the
// storage, metadata and transport layers.
package models

import "time"

// ObjectStatus tracks where an object is in its upload lifecycle.
type ObjectStatus string

const (
	// StatusPending marks a record whose chunks are stored but whose length
	// has not yet been confirmed. Pending objects are invisible to readers.
	StatusPending ObjectStatus = "pending"
	// StatusComplete marks a fully uploaded, readable object.
	StatusComplete ObjectStatus = "complete"
)

// BackendKind names the storage backend holding an object's chunks.
type BackendKind string

const (
	BackendFilesystem  BackendKind = "filesystem"
	BackendObjectStore BackendKind = "objectstore"
)

// StoredObject describes one encrypted, chunked object.
//
// ChunkSize, EncryptedKey, KeyNonce and BaseIV never change after the first
// chunk is written. Length is meaningful only once Status is StatusComplete.
type StoredObject struct {
	ID          string
	Filename    string
	ContentType string
	// Length is the plaintext size in bytes.
	Length    int64
	ChunkSize int64
	// FormatVersion is the chunk format the object was written with.
	FormatVersion int
	// EncryptedKey is the per-object key wrapped by the master key.
	EncryptedKey []byte
	KeyNonce     []byte
	BaseIV       []byte
	Backend      BackendKind
	// Location is the backend-specific address of the chunk set
	// (a directory for the filesystem, a key prefix for object storage).
	Location  string
	CreatedAt time.Time
	Status    ObjectStatus

	// Pass-through metadata; the engine never interprets these.
	OwnerID      string
	ParentID     string
	Trashed      bool
	PersonalFile bool

	IsVideo      bool
	IsThumbnail  bool
	HasThumbnail bool
	ThumbnailID  string
}

// ChunkCount returns how many chunks the object occupies.
func (o *StoredObject) ChunkCount() int64 {
	if o.Length <= 0 || o.ChunkSize <= 0 {
		return 0
	}
	return (o.Length + o.ChunkSize - 1) / o.ChunkSize
}
