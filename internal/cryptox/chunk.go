package cryptox

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// FormatVersion identifies the on-disk chunk format written by ChunkCipher.
//
// Version 1: AES-256-GCM; the nonce of chunk i is the 12-byte base IV with
// its trailing 8 bytes XORed with uint64(i) in big-endian order; the
// additional data is the single byte FormatVersion. Any change to these
// rules must bump the version.
const FormatVersion = 1

// Overhead is the number of bytes a sealed chunk adds to its plaintext.
const Overhead = 16

// ChunkCipher seals and opens the chunks of one object. Every chunk is
// independently decryptable given the key, the base IV and its index.
//
// A ChunkCipher is safe for concurrent use.
type ChunkCipher struct {
	aead   cipher.AEAD
	baseIV [NonceSize]byte
}

// NewChunkCipher validates key (32 bytes) and baseIV (12 bytes).
func NewChunkCipher(key, baseIV []byte) (*ChunkCipher, error) {
	if len(baseIV) != NonceSize {
		return nil, fmt.Errorf("chunk cipher: base iv must be %d bytes, got %d", NonceSize, len(baseIV))
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("chunk cipher: %w", err)
	}
	c := &ChunkCipher{aead: aead}
	copy(c.baseIV[:], baseIV)
	return c, nil
}

// ChunkNonce derives the nonce of chunk index from baseIV.
func ChunkNonce(baseIV [NonceSize]byte, index uint64) [NonceSize]byte {
	nonce := baseIV
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], index)
	for i := range ctr {
		nonce[NonceSize-8+i] ^= ctr[i]
	}
	return nonce
}

var additionalData = []byte{FormatVersion}

// Seal encrypts plaintext as chunk index. The result is len(plaintext)+Overhead bytes.
func (c *ChunkCipher) Seal(index int64, plaintext []byte) []byte {
	nonce := ChunkNonce(c.baseIV, uint64(index))
	return c.aead.Seal(make([]byte, 0, len(plaintext)+Overhead), nonce[:], plaintext, additionalData)
}

// Open decrypts chunk index. It returns common.ErrShortChunk for inputs
// shorter than Overhead and common.ErrIntegrity when authentication fails.
func (c *ChunkCipher) Open(index int64, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < Overhead {
		return nil, fmt.Errorf("chunk %d: %d bytes: %w", index, len(ciphertext), common.ErrShortChunk)
	}
	nonce := ChunkNonce(c.baseIV, uint64(index))
	plain, err := c.aead.Open(make([]byte, 0, len(ciphertext)-Overhead), nonce[:], ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", index, common.ErrIntegrity)
	}
	return plain, nil
}

// ChunkCount is the number of chunks an object of length bytes occupies.
func ChunkCount(length, chunkSize int64) int64 {
	if length <= 0 {
		return 0
	}
	return (length + chunkSize - 1) / chunkSize
}

// CiphertextSize is the stored size of a chunk holding plainLen bytes.
func CiphertextSize(plainLen int) int {
	return plainLen + Overhead
}
