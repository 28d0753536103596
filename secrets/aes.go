package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// AES key errors.
var (
	// ErrInvalidKeySize is returned when the key is not 32 bytes (AES-256).
	ErrInvalidKeySize = errors.New("secrets: key must be 32 bytes")

	// ErrMalformedCiphertext is returned when a ciphertext cannot be decoded
	// or is shorter than the GCM nonce.
	ErrMalformedCiphertext = errors.New("secrets: malformed ciphertext")
)

// AES is an AES-256-GCM Cipher for signing secrets at rest. Ciphertexts are
// base64-encoded "nonce || sealed" strings with a random nonce per encryption.
type AES struct {
	aead cipher.AEAD
}

// NewAES creates an AES-256-GCM cipher from a 32-byte key.
func NewAES(key []byte) (*AES, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: create GCM: %w", err)
	}

	return &AES{aead: aead}, nil
}

// Encrypt seals the plaintext and returns a base64 ciphertext.
func (a *AES) Encrypt(_ context.Context, plaintext string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}

	sealed := a.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 ciphertext produced by Encrypt.
func (a *AES) Decrypt(_ context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}

	nonceSize := a.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := a.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}

	return string(plaintext), nil
}

// GenerateKey returns a cryptographically random 32-byte AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("secrets: generate key: %w", err)
	}
	return key, nil
}
