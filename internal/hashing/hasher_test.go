package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasher_RejectsEmptySecret(t *testing.T) {
	_, err := NewHasher(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestPlaceholderStamp(t *testing.T) {
	a, err := NewHasher([]byte("secret-a"))
	require.NoError(t, err)
	a2, err := NewHasher([]byte("secret-a"))
	require.NoError(t, err)
	b, err := NewHasher([]byte("secret-b"))
	require.NoError(t, err)

	stamp := a.PlaceholderStamp("+11111111111")
	assert.Equal(t, stamp, a2.PlaceholderStamp("+11111111111"), "same secret must reproduce the stamp")
	assert.NotEqual(t, stamp, a.PlaceholderStamp("+12222222222"))
	assert.NotEqual(t, stamp, b.PlaceholderStamp("+11111111111"))
}

func TestSubkeysAreIndependent(t *testing.T) {
	h, err := NewHasher([]byte("secret"))
	require.NoError(t, err)

	assert.NotEqual(t, h.CodeKey("stamp"), h.CodeKey("other"))
	assert.NotEqual(t, h.StampFingerprint("stamp"), h.PlaceholderStamp("stamp"))
	assert.Len(t, h.DataKey(), 32)
}

func TestNewRandomStamp(t *testing.T) {
	s1, err := NewRandomStamp()
	require.NoError(t, err)
	s2, err := NewRandomStamp()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, s1, 43)
}
