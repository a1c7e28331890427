// Package crypto seals OAuth tokens at rest with AES-256-GCM. Every stored
// value carries an encryption version so plaintext rows written before a key
// was configured keep working and can be migrated later.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// Encryption versions recorded next to each sealed column.
const (
	VersionPlaintext = 0
	VersionAESGCM    = 1
)

// ErrUnsupportedVersion is returned when a value was sealed with a version
// this cipher cannot open.
var ErrUnsupportedVersion = errors.New("unsupported encryption version")

// TokenCipher seals and opens token strings.
type TokenCipher interface {
	// Seal returns the stored form of plaintext and its version.
	Seal(plaintext string) (sealed string, version int, err error)
	// Open reverses Seal for a value stored with version.
	Open(sealed string, version int) (string, error)
	// KeyID identifies the key in use, or "" when there is none.
	KeyID() string
}

// Plaintext stores tokens as-is. It can open only plaintext values.
type Plaintext struct{}

func (Plaintext) Seal(plaintext string) (string, int, error) { return plaintext, VersionPlaintext, nil }

func (Plaintext) Open(sealed string, version int) (string, error) {
	if version != VersionPlaintext {
		return "", fmt.Errorf("%w: %d (no ENCRYPTION_KEY configured)", ErrUnsupportedVersion, version)
	}
	return sealed, nil
}

func (Plaintext) KeyID() string { return "" }

// AESGCM seals with a single 256-bit key. Sealed values are
// base64(nonce || ciphertext || tag).
type AESGCM struct {
	aead  cipher.AEAD
	keyID string
}

// NewAESGCM builds a cipher from a base64-encoded 32-byte key, as produced by
// `openssl rand -base64 32`.
func NewAESGCM(base64Key string) (*AESGCM, error) {
	if base64Key == "" {
		return nil, errors.New("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	sum := sha256.Sum256(key)
	return &AESGCM{aead: aead, keyID: hex.EncodeToString(sum[:4])}, nil
}

// Seal encrypts plaintext. Empty input stays empty.
func (c *AESGCM) Seal(plaintext string) (string, int, error) {
	if plaintext == "" {
		return "", VersionAESGCM, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", 0, fmt.Errorf("generate nonce: %w", err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), VersionAESGCM, nil
}

// Open decrypts a sealed value. Plaintext-version values pass through so
// rows written before encryption was enabled stay readable.
func (c *AESGCM) Open(sealed string, version int) (string, error) {
	switch version {
	case VersionPlaintext:
		return sealed, nil
	case VersionAESGCM:
	default:
		return "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	n := c.aead.NonceSize()
	if len(raw) < n+c.aead.Overhead() {
		return "", fmt.Errorf("ciphertext too short: %d bytes", len(raw))
	}
	plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		// Don't expose internal error details that might leak information
		return "", errors.New("decryption failed: authentication or integrity check failed")
	}
	return string(plain), nil
}

// KeyID returns a short fingerprint of the key, stored for rotation audits.
func (c *AESGCM) KeyID() string { return c.keyID }

// FromKey returns an AESGCM cipher when key is set and Plaintext otherwise.
func FromKey(key string) (TokenCipher, error) {
	if key == "" {
		return Plaintext{}, nil
	}
	return NewAESGCM(key)
}
