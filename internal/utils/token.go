package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// TokenBytes is the entropy of session ids, CSRF tokens and reset tokens.
const TokenBytes = 32

// NewToken returns a hex-encoded string of TokenBytes random bytes.
func NewToken() (string, error) {
	return randomHex(TokenBytes)
}

// TokensEqual compares two tokens in constant time.
func TokensEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
