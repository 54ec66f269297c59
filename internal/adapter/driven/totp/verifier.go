// Package totp implements the TOTPVerifier port (RFC 6238, SHA-1, 30 second
// steps) on top of the HOTP primitive from github.com/pquerna/otp.
package totp

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// Period is the TOTP time step.
const Period = 30 * time.Second

// Compile-time interface satisfaction check.
var _ driven.TOTPVerifier = (*Verifier)(nil)

// Verifier checks codes against the current and the immediately preceding
// time step.
type Verifier struct {
	clock clock.Clock
}

// NewVerifier creates a Verifier reading time from clk. A nil clk uses the
// wall clock.
func NewVerifier(clk clock.Clock) *Verifier {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Verifier{clock: clk}
}

// Verify reports whether code is valid for seed now or one step ago. Codes
// must be 6 to 8 ASCII digits; anything else verifies false. A seed that is
// blank or not base32 fails with driven.ErrInvalidSeed even when the code is
// malformed, so bad seeds are never reported as a plain mismatch.
func (v *Verifier) Verify(code, seed string) (bool, error) {
	seed = model.NormalizeTOTPSeed(seed)
	if seed == "" {
		return false, fmt.Errorf("%w: empty", driven.ErrInvalidSeed)
	}

	wellFormed := isCode(code)
	digits := otp.DigitsSix
	if wellFormed {
		digits = otp.Digits(len(code))
	}
	opts := hotp.ValidateOpts{Digits: digits, Algorithm: otp.AlgorithmSHA1}

	counter := uint64(v.clock.Now().Unix()) / uint64(Period/time.Second)
	counters := []uint64{counter}
	if counter > 0 {
		counters = append(counters, counter-1)
	}

	// Both steps are always computed and compared in constant time.
	matched := 0
	for _, c := range counters {
		expected, err := hotp.GenerateCodeCustom(seed, c, opts)
		if err != nil {
			if errors.Is(err, otp.ErrValidateSecretInvalidBase32) {
				return false, fmt.Errorf("%w: not base32", driven.ErrInvalidSeed)
			}
			return false, fmt.Errorf("generate code: %w", err)
		}
		matched |= subtle.ConstantTimeCompare([]byte(expected), []byte(code))
	}

	return wellFormed && matched == 1, nil
}

func isCode(code string) bool {
	if len(code) < 6 || len(code) > 8 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
