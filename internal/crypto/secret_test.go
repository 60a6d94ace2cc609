package crypto

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSecret_VerifyRoundTrip(t *testing.T) {
	salt, err := RandBytes(SaltSize)
	require.NoError(t, err)

	h := HashSecret([]byte("482913"), salt)
	require.NotEmpty(t, h)
	require.True(t, VerifySecret([]byte("482913"), salt, h))
	require.False(t, VerifySecret([]byte("482914"), salt, h))

	otherSalt, err := RandBytes(SaltSize)
	require.NoError(t, err)
	require.False(t, VerifySecret([]byte("482913"), otherSalt, h))
}

func TestHashSecret_SaltMatters(t *testing.T) {
	s1, err := RandBytes(SaltSize)
	require.NoError(t, err)
	s2, err := RandBytes(SaltSize)
	require.NoError(t, err)
	require.NotEqual(t, HashSecret([]byte("pw"), s1), HashSecret([]byte("pw"), s2))
}

func TestGenerateCode_FixedWidthNumeric(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, 1_000_000)
	}
}
