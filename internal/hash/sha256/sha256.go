// Package sha256 provides SHA-256 hashing utilities for cache keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher implements bibliography.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashFields digests multiple fields with a separator so that field
// boundaries cannot collide ("ab"+"c" vs "a"+"bc").
func (h *Hasher) HashFields(fields ...string) (string, error) {
	return h.Hash([]byte(strings.Join(fields, "\x1f")))
}
