package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// maxAPIKeyLength bounds the work done on attacker-supplied keys.
const maxAPIKeyLength = 512

// APIKeyVerifier admits a single shared key.
type APIKeyVerifier struct {
	Expected string
}

// Verify compares SHA-256 digests so the comparison time does not depend on
// where, or whether, the lengths differ.
func (v APIKeyVerifier) Verify(apiKey string) error {
	switch {
	case v.Expected == "", apiKey == "":
		return ErrInvalidCredentials
	case len(apiKey) > maxAPIKeyLength:
		return fmt.Errorf("%w: api key too long", ErrInvalidCredentials)
	}
	got := sha256.Sum256([]byte(apiKey))
	want := sha256.Sum256([]byte(v.Expected))
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
