// Package utils provides small helpers shared across the authorization server.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// GenerateToken returns a fresh authorization code or access token value:
// 128 bits from crypto/rand, hex-encoded to 32 lowercase characters.
func GenerateToken() (string, error) {
	buf := make([]byte, constants.TokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
