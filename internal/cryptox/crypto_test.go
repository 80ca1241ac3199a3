package cryptox

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey(t *testing.T) {
	secret := []byte("operator-secret")

	k1 := DeriveMasterKey(secret, []byte("salt-1"))
	k2 := DeriveMasterKey(secret, []byte("salt-1"))
	k3 := DeriveMasterKey(secret, []byte("salt-2"))

	assert.Len(t, k1, KeySize)
	assert.True(t, bytes.Equal(k1, k2), "same inputs must give the same key")
	assert.False(t, bytes.Equal(k1, k3), "different salts must give different keys")
}

func TestKeyWrapper_RoundTrip(t *testing.T) {
	w, err := NewKeyWrapper(DeriveMasterKey([]byte("s"), []byte("salt")))
	require.NoError(t, err)

	key := NewObjectKey()
	wrapped, nonce, err := w.Wrap("obj-1", key)
	require.NoError(t, err)
	assert.NotEqual(t, key, wrapped)

	got, err := w.Unwrap("obj-1", wrapped, nonce)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestKeyWrapper_Failures(t *testing.T) {
	w, err := NewKeyWrapper(NewObjectKey())
	require.NoError(t, err)
	other, err := NewKeyWrapper(NewObjectKey())
	require.NoError(t, err)

	wrapped, nonce, err := w.Wrap("obj-1", NewObjectKey())
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{"other object id", func() error { _, err := w.Unwrap("obj-2", wrapped, nonce); return err }},
		{"other master key", func() error { _, err := other.Unwrap("obj-1", wrapped, nonce); return err }},
		{"short nonce", func() error { _, err := w.Unwrap("obj-1", wrapped, nonce[:4]); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), common.ErrIntegrity)
		})
	}

	_, _, err = w.Wrap("obj-1", []byte("short"))
	assert.Error(t, err)

	_, err = NewKeyWrapper([]byte("tiny"))
	assert.Error(t, err)
}
