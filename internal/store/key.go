package store

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateKey returns a fresh license key secret.
func GenerateKey() string {
	b := make([]byte, 24)
	rand.Read(b)
	return hex.EncodeToString(b)
}
