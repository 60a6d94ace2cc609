// Package crypto implements field-level authenticated encryption and the
// salted hashing used for passwords and one-time codes.
package crypto

import (
	"context"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/abalakin/clinicguard/internal/alert"
	"github.com/abalakin/clinicguard/internal/errs"
)

// Unavailable is the sentinel returned when a stored ciphertext cannot be
// decrypted. It is distinct from any legal plaintext, and the encode path
// rejects it so a degraded read can never be written back over recoverable
// ciphertext.
const Unavailable = "[DATA_UNAVAILABLE]"

// tokenPrefix versions the ciphertext token format.
const tokenPrefix = "cg1:"

var errBadToken = errors.New("malformed ciphertext token")

// NewAEAD builds the field cipher for a 32-byte key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext into a versioned token: prefix + base64(nonce||ct).
// Nonces are random, so equal plaintexts produce different tokens.
func Seal(aead cipher.AEAD, plaintext string) (string, error) {
	nonce, err := RandBytes(aead.NonceSize())
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(plaintext), nil)...)
	return tokenPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open authenticates and decrypts a token produced by Seal.
func Open(aead cipher.AEAD, token string) (string, error) {
	raw, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return "", errBadToken
	}
	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", errBadToken
	}
	if len(blob) < aead.NonceSize() {
		return "", errBadToken
	}
	pt, err := aead.Open(nil, blob[:aead.NonceSize()], blob[aead.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// FieldCodec provides transparent encryption for persisted field values.
// It is constructed explicitly and injected; there is no process-global
// cipher handle.
type FieldCodec struct {
	aead   cipher.AEAD
	log    *zap.Logger
	notify alert.Notifier
}

// NewFieldCodec builds a codec from resolved key material.
func NewFieldCodec(key []byte, log *zap.Logger, notify alert.Notifier) (*FieldCodec, error) {
	aead, err := NewAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrConfig, err)
	}
	return &FieldCodec{aead: aead, log: log, notify: notify}, nil
}

// Encode encrypts a plaintext field value. Empty input maps to itself so
// blank optional fields carry no encryption overhead. Encoding the
// Unavailable sentinel is refused: persisting it would destroy the original
// ciphertext.
func (c *FieldCodec) Encode(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if plaintext == Unavailable {
		return "", fmt.Errorf("%w: refusing to persist decryption placeholder", errs.ErrEncryptionFailed)
	}
	token, err := Seal(c.aead, plaintext)
	if err != nil {
		c.log.Error("field encryption failed", zap.Error(err))
		return "", fmt.Errorf("%w: %s", errs.ErrEncryptionFailed, err)
	}
	return token, nil
}

// Decode decrypts a stored token. It never fails the read path: on any
// integrity or format error it logs at the highest severity, notifies
// operators best-effort, and returns the Unavailable sentinel so the
// surrounding request can degrade gracefully.
func (c *FieldCodec) Decode(token string) string {
	if token == "" {
		return ""
	}
	pt, err := Open(c.aead, token)
	if err == nil {
		return pt
	}
	c.log.Error("CRITICAL: field decryption failed; key may have been rotated or data corrupted",
		zap.Error(err),
	)
	if c.notify != nil {
		if nerr := c.notify.Notify(context.Background(), "Decryption failure detected",
			"A stored field failed authenticated decryption. Verify the field encryption key configuration.",
		); nerr != nil {
			c.log.Warn("operator notification failed", zap.Error(nerr))
		}
	}
	return Unavailable
}
