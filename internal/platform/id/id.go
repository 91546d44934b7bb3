// Package id generates opaque record identifiers.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// encoding is unpadded lowercase base32; 16 random bytes encode to 26
// characters drawn from [a-z2-7].
var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a 26-character random identifier.
func NewID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(buf[:])), nil
}
