package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abalakin/clinicguard/internal/errs"
)

func TestEncryptionKey_Missing(t *testing.T) {
	t.Setenv(EnvEncryptionKey, "")
	_, err := EncryptionKey()
	require.ErrorIs(t, err, errs.ErrConfig)
}

func TestEncryptionKey_BadBase64(t *testing.T) {
	t.Setenv(EnvEncryptionKey, "%%%not base64%%%")
	_, err := EncryptionKey()
	require.ErrorIs(t, err, errs.ErrConfig)
}

func TestEncryptionKey_WrongSize(t *testing.T) {
	t.Setenv(EnvEncryptionKey, base64.StdEncoding.EncodeToString([]byte("short")))
	_, err := EncryptionKey()
	require.ErrorIs(t, err, errs.ErrConfig)
}

func TestLoad_OK(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv(EnvEncryptionKey, base64.StdEncoding.EncodeToString(key))
	t.Setenv(EnvDatabaseDSN, "postgres://db:5432/x")
	t.Setenv(EnvRedisAddr, "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, key, cfg.EncryptionKey)
	require.Equal(t, "postgres://db:5432/x", cfg.DatabaseDSN)
	require.Equal(t, "redis:6379", cfg.RedisAddr)
}
