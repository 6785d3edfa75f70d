package shared

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewAccessToken returns a 64-character hex bearer token backed by 32 bytes
// of crypto/rand entropy. Tokens are opaque: they carry no structure and are
// only ever compared for equality against the stored value.
func NewAccessToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("shared: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
