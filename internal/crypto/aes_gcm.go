// Package crypto seals data at rest with AES-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKeySize       = errors.New("invalid AES key size (must be 16, 24, or 32 bytes)")
	ErrInvalidCiphertext    = errors.New("ciphertext too short to contain nonce")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

// Sealer encrypts and authenticates blobs with one key. The random nonce is
// stored in front of each sealed blob.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer returns a Sealer for a 16, 24 or 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeySize, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// ParseKey decodes a hex encoded key, as found in configuration.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, ErrInvalidKeySize
}

// GenerateKey returns a random 32 byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext. additional is authenticated but not encrypted and
// must be passed again to Open.
func (s *Sealer) Seal(plaintext, additional []byte) ([]byte, error) {
	// Random nonces are fine below 2^32 seals per key.
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, additional), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(sealed, additional []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], additional)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}
