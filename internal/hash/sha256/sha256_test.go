package sha256

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherMatchesKnownDigest(t *testing.T) {
	t.Parallel()

	h := New()
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, want, got)

	streamed, err := h.HashReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, want, streamed)
}

func TestHasherDistinguishesURLs(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("https://a.example"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("https://b.example"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 64)
}
