package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// APIKeyVerifier accepts exactly one shared key. Keys are compared as
// SHA-256 digests so the comparison time does not depend on key length.
type APIKeyVerifier struct {
	Expected string
}

func (v APIKeyVerifier) Verify(apiKey string) error {
	if apiKey == "" || v.Expected == "" {
		return ErrInvalidCredentials
	}
	got, want := sha256.Sum256([]byte(apiKey)), sha256.Sum256([]byte(v.Expected))
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
