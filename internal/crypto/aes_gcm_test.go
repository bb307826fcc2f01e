package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("segredo"), []byte("ana@example.com"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "segredo")

	plain, err := s.Open(sealed, []byte("ana@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "segredo", string(plain))

	_, err = s.Open(sealed, []byte("bob@example.com"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed, []byte("ana@example.com"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = s.Open([]byte{1, 2}, nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestSealUsesFreshNonce(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewSealer(key)
	require.NoError(t, err)

	a, err := s.Seal([]byte("x"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("x"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey(hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = ParseKey("abcd")
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = ParseKey("zz")
	assert.Error(t, err)

	_, err = NewSealer([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}
