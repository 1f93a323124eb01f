// internal/app/certify/code.go
package certify

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// codeBytes is the entropy of a verification code (32 hex characters).
const codeBytes = 16

// NewVerificationCode returns a random, hex-encoded verification code.
func NewVerificationCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// normalizeCode lower-cases a code typed or scanned by a third party.
func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// looksLikeCode reports whether s has the shape of a verification code.
func looksLikeCode(s string) bool {
	if len(s) != codeBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
