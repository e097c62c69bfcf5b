package auth

import (
	"bytes"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashKey bcrypt hash of a license key secret.
func HashKey(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckKey true if secret matches hash.
func CheckKey(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ConstantTimeEqual compares two secrets (constant-time).
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SplitLicenseKey parses the wire form "login:secret".
func SplitLicenseKey(key []byte) (login, secret string, err error) {
	i := bytes.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", "", fmt.Errorf("malformed license key")
	}
	return string(key[:i]), string(key[i+1:]), nil
}
