package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts broker authorization handles before they touch the
// database and decrypts them for the poller.
type Sealer struct {
	key []byte
}

// NewSealer expects a 32-byte key encoded as hex.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("seal key is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: key}, nil
}

// NewSealerFromEnv builds a sealer from SEAL_KEY.
func NewSealerFromEnv() (*Sealer, error) {
	config := GetConfig()
	if config.SealKey == "" {
		return nil, errors.New("SEAL_KEY not set")
	}
	return NewSealer(config.SealKey)
}

// Seal returns hex(nonce || ciphertext).
func (s *Sealer) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := hex.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("sealed handle is not valid hex: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("sealed handle too short")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed handle: %w", err)
	}
	return string(plaintext), nil
}

// NewWebhookSecret generates the write-once HMAC secret returned to the
// caller exactly once at registration.
func NewWebhookSecret() string {
	raw := uuid.NewString() + uuid.NewString()
	return "whsec_" + strings.ReplaceAll(raw, "-", "")
}
