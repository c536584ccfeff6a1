// Package sha256 includes tests for the SHA-256 hasher adapter.
package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestFingerprintNormalizesWhitespaceAndCase(t *testing.T) {
	t.Parallel()

	h := New()
	a := h.Fingerprint("Demo  gegen Krieg ", "Berlin")
	b := h.Fingerprint("demo gegen krieg", "BERLIN")
	require.Equal(t, a, b)
	require.Len(t, a, 12)
	require.NotEqual(t, a, h.Fingerprint("demo gegen krieg", "Hamburg"))
	// Part boundaries matter.
	require.NotEqual(t, h.Fingerprint("ab", "c"), h.Fingerprint("a", "bc"))
}
