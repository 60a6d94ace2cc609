// Package config resolves process configuration from the environment.
package config

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/abalakin/clinicguard/internal/errs"
)

// Environment variable names.
const (
	EnvEncryptionKey = "FIELD_ENCRYPTION_KEY"
	EnvDatabaseDSN   = "DATABASE_DSN"
	EnvRedisAddr     = "REDIS_ADDR"
)

// KeySize is the required field-encryption key size in bytes.
const KeySize = 32

// Config holds startup configuration. Key material is resolved exactly once,
// at process start; a missing key is a fatal condition, never a deferred
// runtime surprise.
type Config struct {
	EncryptionKey []byte
	DatabaseDSN   string
	RedisAddr     string
}

// Load reads configuration from the environment. The encryption key is
// mandatory; DSN and Redis address have local-development defaults.
func Load() (*Config, error) {
	key, err := EncryptionKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		EncryptionKey: key,
		DatabaseDSN:   getenv(EnvDatabaseDSN, "postgres://localhost:5432/clinicguard?sslmode=disable"),
		RedisAddr:     getenv(EnvRedisAddr, "localhost:6379"),
	}
	return cfg, nil
}

// EncryptionKey resolves and validates the field-encryption key from the
// environment: base64-encoded, exactly KeySize bytes after decoding.
func EncryptionKey() ([]byte, error) {
	raw := os.Getenv(EnvEncryptionKey)
	if raw == "" {
		return nil, fmt.Errorf("%s must be set: %w", EnvEncryptionKey, errs.ErrConfig)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", EnvEncryptionKey, errs.ErrConfig)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%s must decode to %d bytes, got %d: %w", EnvEncryptionKey, KeySize, len(key), errs.ErrConfig)
	}
	return key, nil
}

func getenv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
