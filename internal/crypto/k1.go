package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// K1Size is the challenge length in bytes. The hex form is 2*K1Size chars.
const K1Size = 32

// RandomK1 returns a fresh single-use challenge: 32 cryptographically random
// bytes as a 64-char lowercase hex string. Collisions are treated as
// impossible.
func RandomK1() (string, error) {
	buf := make([]byte, K1Size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidK1 reports whether s has the exact shape of a challenge: 64 lowercase
// hex characters.
func ValidK1(s string) bool {
	if len(s) != 2*K1Size {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
