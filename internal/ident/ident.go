// Package ident generates the opaque identifiers images are published under.
package ident

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// entropyBytes is the amount of randomness behind every id. 128 bits keeps
// the collision probability negligible even though the manager still
// re-checks uniqueness before insert.
const entropyBytes = 16

// New returns a fresh URL-safe identifier. A failure of the system random
// source is returned as-is; there is no weaker fallback.
func New() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
