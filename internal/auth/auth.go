package auth

import (
	"crypto/hmac"
	"errors"
	"strings"
)

var (
	// ErrNotConfigured means the server-side secret is missing. Callers
	// should surface this as a 500, never a 401.
	ErrNotConfigured = errors.New("ingest secret not configured")

	ErrUnauthorized = errors.New("unauthorized")
)

// Authenticate compares a caller-supplied token against the server
// secret. hmac.Equal performs a constant-time byte comparison, so a
// same-length mismatch takes the same time regardless of where the
// first differing byte sits.
func Authenticate(presented, expected string) error {
	if expected == "" {
		return ErrNotConfigured
	}
	if presented == "" {
		return ErrUnauthorized
	}
	if !hmac.Equal([]byte(presented), []byte(expected)) {
		return ErrUnauthorized
	}
	return nil
}

// TokenFromHeader extracts the bearer token from an Authorization
// header value. Both "Bearer <token>" and "Convex <token>" schemes are
// accepted; anything else returns the raw value unchanged.
func TokenFromHeader(header string) string {
	for _, scheme := range []string{"Bearer ", "Convex "} {
		if strings.HasPrefix(header, scheme) {
			return strings.TrimPrefix(header, scheme)
		}
	}
	return header
}
