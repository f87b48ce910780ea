package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeyShape(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)
	assert.Len(t, key, SessionKeyLen)
	for _, c := range key {
		assert.True(t, strings.ContainsRune(alphabet, c), "unexpected char %q", c)
	}
}

func TestPlayerTokenShape(t *testing.T) {
	tok, err := NewPlayerToken()
	require.NoError(t, err)
	assert.Len(t, tok, PlayerTokenLen)
	for _, c := range tok {
		assert.True(t, strings.ContainsRune(alphabet, c), "unexpected char %q", c)
	}
}

func TestTokensAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		tok, err := NewPlayerToken()
		require.NoError(t, err)
		require.False(t, seen[tok], "duplicate token")
		seen[tok] = true
	}
}
