// Package cryptoutil seals OAuth tokens before they are written to the database.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Encryptor seals token values. The binding string (for example "u1/refresh_token") is
// authenticated but not stored, so a sealed value only opens for the row and column it
// was written to.
type Encryptor interface {
	Seal(plaintext []byte, binding string) (string, error)
	Open(sealed, binding string) ([]byte, error)
}

const (
	gcmPrefix   = "lw1:"
	plainPrefix = "plain:"
	keySize     = 32
)

// ErrUnknownFormat is returned when a stored value carries no recognized prefix.
var ErrUnknownFormat = errors.New("unknown sealed token format")

// DeriveKey turns a configured secret into an AES-256 key. A 64-character hex string is
// used as the raw key; anything else is hashed with SHA-256.
func DeriveKey(secret string) []byte {
	if raw, err := hex.DecodeString(secret); err == nil && len(raw) == keySize {
		return raw
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// AESGCMEncryptor seals with AES-256-GCM and a random nonce.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

// NewAESGCMEncryptor builds an encryptor from a 32-byte key.
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("aes-gcm key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

// Seal returns "lw1:" followed by base64(nonce || ciphertext).
func (e *AESGCMEncryptor) Seal(plaintext []byte, binding string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := e.aead.Seal(nonce, nonce, plaintext, []byte(binding))
	return gcmPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values written by NoopEncryptor during development are accepted so a
// dev database survives turning encryption on.
func (e *AESGCMEncryptor) Open(sealed, binding string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(sealed, plainPrefix); ok {
		return decodePlain(rest)
	}
	rest, ok := strings.CutPrefix(sealed, gcmPrefix)
	if !ok {
		return nil, ErrUnknownFormat
	}
	raw, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("decode sealed token: %w", err)
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns+e.aead.Overhead() {
		return nil, errors.New("sealed token too short")
	}
	pt, err := e.aead.Open(nil, raw[:ns], raw[ns:], []byte(binding))
	if err != nil {
		return nil, fmt.Errorf("open sealed token: %w", err)
	}
	return pt, nil
}

// NoopEncryptor stores tokens base64-encoded without encryption. Development only.
type NoopEncryptor struct{}

// Seal encodes plaintext; binding is ignored.
func (NoopEncryptor) Seal(plaintext []byte, _ string) (string, error) {
	return plainPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

// Open decodes values written by Seal.
func (NoopEncryptor) Open(sealed, _ string) ([]byte, error) {
	rest, ok := strings.CutPrefix(sealed, plainPrefix)
	if !ok {
		return nil, ErrUnknownFormat
	}
	return decodePlain(rest)
}

func decodePlain(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode plain token: %w", err)
	}
	return b, nil
}
