// Package cryptox holds the cryptographic primitives of the storage engine:
// master key derivation, wrapping of per-object keys and the chunk codec.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the size of master and per-object keys (AES-256).
	KeySize = 32
	// NonceSize is the GCM nonce size used for key wrapping and chunk IVs.
	NonceSize = 12
)

var errKeySize = errors.New("cryptox: key must be 32 bytes")

// DeriveMasterKey stretches an operator secret into the 32-byte master key
// with argon2id.
func DeriveMasterKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// NewObjectKey returns a fresh random per-object key.
func NewObjectKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// NewBaseIV returns a fresh random base IV for an object.
func NewBaseIV() []byte {
	return common.GenerateRandByteArray(NonceSize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// KeyWrapper seals per-object keys under the master key so only the wrapped
// form is ever persisted in object metadata.
type KeyWrapper struct {
	aead cipher.AEAD
}

// NewKeyWrapper builds a wrapper around masterKey.
func NewKeyWrapper(masterKey []byte) (*KeyWrapper, error) {
	aead, err := newGCM(masterKey)
	if err != nil {
		return nil, fmt.Errorf("key wrapper: %w", err)
	}
	return &KeyWrapper{aead: aead}, nil
}

// Wrap encrypts key with a random nonce. objectID is bound as additional
// data so a wrapped key cannot be moved to another object record.
func (w *KeyWrapper) Wrap(objectID string, key []byte) (wrapped, nonce []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, errKeySize
	}
	nonce = common.GenerateRandByteArray(w.aead.NonceSize())
	wrapped = w.aead.Seal(nil, nonce, key, []byte(objectID))
	return wrapped, nonce, nil
}

// Unwrap reverses Wrap. A wrong master key, nonce or object id yields
// common.ErrIntegrity.
func (w *KeyWrapper) Unwrap(objectID string, wrapped, nonce []byte) ([]byte, error) {
	if len(nonce) != w.aead.NonceSize() {
		return nil, fmt.Errorf("unwrap key: bad nonce size %d: %w", len(nonce), common.ErrIntegrity)
	}
	key, err := w.aead.Open(nil, nonce, wrapped, []byte(objectID))
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", common.ErrIntegrity)
	}
	return key, nil
}
