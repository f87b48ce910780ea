// Package token mints the opaque identifiers the draft core hands out:
// session keys and per-side player tokens.
package token

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	// SessionKeyLen is the length of a session identifier.
	SessionKeyLen = 22
	// PlayerTokenLen is the length of a side-authentication secret.
	PlayerTokenLen = 20
)

// NewSessionKey returns a fresh 22-char opaque session identifier.
func NewSessionKey() (string, error) { return random(SessionKeyLen) }

// NewPlayerToken returns a fresh 20-char side-authentication secret.
// Tokens are minted at session creation and never rotated.
func NewPlayerToken() (string, error) { return random(PlayerTokenLen) }

func random(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
