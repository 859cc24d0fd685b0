// Package secretbox encrypts small secrets such as user provider keys at rest.
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes, base64 encoded")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Box seals and opens values with XChaCha20-Poly1305.
type Box struct {
	key []byte
}

// New creates a Box from a base64 encoded 32 byte key.
func New(encodedKey string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return &Box{key: key}, nil
}

// GenerateKey returns a fresh base64 encoded key.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext and returns base64 ciphertext and nonce.
// additional binds the ciphertext to a context such as "user:provider".
func (b *Box) Seal(plaintext, additional string) (ciphertext, nonce string, err error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", "", fmt.Errorf("init cipher: %w", err)
	}

	n := make([]byte, aead.NonceSize())
	if _, err := rand.Read(n); err != nil {
		return "", "", fmt.Errorf("read nonce: %w", err)
	}

	out := aead.Seal(nil, n, []byte(plaintext), []byte(additional))
	return base64.StdEncoding.EncodeToString(out), base64.StdEncoding.EncodeToString(n), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(ciphertext, nonce, additional string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	n, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil || len(n) != aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	pt, err := aead.Open(nil, n, ct, []byte(additional))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(pt), nil
}

// Mask returns a display form of a secret that keeps only the last four characters.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
