package driven

import "errors"

// ErrInvalidSeed is returned when a TOTP seed is not valid base32.
var ErrInvalidSeed = errors.New("invalid TOTP seed")

// TOTPVerifier checks one-time codes against a base32 seed.
type TOTPVerifier interface {
	// Verify reports whether code matches the current or the preceding time
	// step. Returns ErrInvalidSeed for a malformed seed.
	Verify(code, seed string) (bool, error)
}
