// Package security seals credentials at rest with an application key.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

const SealedPrefix = "slackdispatch.sealed.v1:"

// Sealer encrypts secret payloads with AES-GCM. The sealed form is
// SealedPrefix followed by base64(nonce || ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an AES key from keyMaterial. Keys of 16, 24 or 32 bytes
// are used as is; anything else is hashed with SHA-256.
func NewSealer(keyMaterial []byte) (*Sealer, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, securityError("security: app key is required", nil)
	}
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return nil, securityError("security: create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, securityError("security: create gcm", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if s == nil || s.aead == nil {
		return nil, securityError("security: sealer is not configured", nil)
	}
	if len(plaintext) == 0 {
		return nil, securityError("security: plaintext is required", nil)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, securityError("security: nonce generation failed", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	out := make([]byte, 0, len(SealedPrefix)+base64.StdEncoding.EncodedLen(len(sealed)))
	out = append(out, SealedPrefix...)
	out = base64.StdEncoding.AppendEncode(out, sealed)
	return out, nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if s == nil || s.aead == nil {
		return nil, securityError("security: sealer is not configured", nil)
	}
	payload := strings.TrimSpace(string(sealed))
	if !strings.HasPrefix(payload, SealedPrefix) {
		return nil, securityError("security: payload is not sealed", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, SealedPrefix))
	if err != nil {
		return nil, securityError("security: decode sealed payload", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) <= nonceSize {
		return nil, securityError("security: sealed payload is truncated", nil)
	}
	plaintext, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, securityError("security: open sealed payload", err)
	}
	return plaintext, nil
}

// IsSealed reports whether payload carries the sealed prefix.
func IsSealed(payload []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(payload), []byte(SealedPrefix))
}

func normalizeKey(value []byte) []byte {
	switch len(value) {
	case 16, 24, 32:
		return bytes.Clone(value)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

func securityError(message string, source error) error {
	return core.WrapError(source, goerrors.CategoryInternal, message, core.ErrorSecretUnavailable, nil)
}
