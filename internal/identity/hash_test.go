package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, "a@b.com", Normalize(" a@b.com "))
	require.Equal(t, "a@b.com", Normalize("A@B.com"))
	require.Equal(t, "", Normalize("   "))
}

func TestHash_EquivalentInputs(t *testing.T) {
	// Differently-written forms of the same address hash identically.
	require.Equal(t, Hash("A@B.com"), Hash(" a@b.com "))
	require.Equal(t, Hash("Pat@Example.com"), Hash("pat@example.com"))
	require.NotEqual(t, Hash("pat@example.com"), Hash("pat@example.org"))
}

func TestHash_StableDigest(t *testing.T) {
	// sha256("pat@example.com"); independent of any encryption key.
	require.Equal(t,
		"fe9733fcc96501276776fc927df08a395835461a2c5b12c65ebab3454877e227",
		Hash("Pat@Example.com"),
	)
	require.Len(t, Hash("x"), 64)
}
