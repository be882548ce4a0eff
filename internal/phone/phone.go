// Package phone normalizes Chilean phone numbers into an E.164-like form.
//
// The rules are deliberately narrow: inputs the normalizer cannot repair with
// confidence are rejected rather than guessed at, because a silently wrong
// number produces a misdelivered notification with no diagnostic trail.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// Chilean numbering plan constants.
const (
	countryCode    = "56"
	mobilePrefix   = "9"
	subscriberLen  = 8
	nationalLen    = 9  // mobile prefix + subscriber
	fullDigitCount = 11 // country code + national
)

// ErrInvalidPhone is returned when a raw value cannot be normalized.
var ErrInvalidPhone = errors.New("invalid chilean phone number")

// NormalizedPhone is a validated +56-prefixed number. The original input is
// retained for diagnostics; the value is recomputed on demand and never
// persisted, since source data may change between calls.
type NormalizedPhone struct {
	e164 string
	raw  string
}

// E164 returns the canonical +56XXXXXXXXX value.
func (p NormalizedPhone) E164() string { return p.e164 }

// Raw returns the input the number was derived from.
func (p NormalizedPhone) Raw() string { return p.raw }

// National returns the national significant number (9XXXXXXXX).
func (p NormalizedPhone) National() string {
	return strings.TrimPrefix(p.e164, "+"+countryCode)
}

// IsZero reports whether the value is the zero NormalizedPhone.
func (p NormalizedPhone) IsZero() bool { return p.e164 == "" }

func (p NormalizedPhone) String() string { return p.e164 }

// Normalize canonicalizes a raw phone string to +56 form.
//
// Accepted shapes, in order:
//   - numbers already carrying the 56 country code, with or without +
//   - 9-digit nationals starting with the mobile prefix 9
//   - 8-digit subscribers, assumed to have dropped the mobile prefix
//   - 9-digit numbers without the mobile prefix (landline-style nationals)
//
// Leading trunk zeros are stripped before the length checks. Everything else
// is an error, never a best-guess value.
func Normalize(raw string) (NormalizedPhone, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NormalizedPhone{}, fmt.Errorf("%w: empty input", ErrInvalidPhone)
	}

	digits := stripNonDigits(trimmed)
	if digits == "" {
		return NormalizedPhone{}, fmt.Errorf("%w: no digits in %q", ErrInvalidPhone, raw)
	}

	// Country-code forms. The subscriber part is validated rather than
	// accepted unconditionally: a 56-prefixed input must contain exactly the
	// eleven digits of a full mobile number.
	if strings.HasPrefix(digits, countryCode) && len(digits) >= fullDigitCount-1 {
		if len(digits) != fullDigitCount {
			return NormalizedPhone{}, fmt.Errorf("%w: %q has country code but %d digits, want %d", ErrInvalidPhone, raw, len(digits), fullDigitCount)
		}
		national := digits[len(countryCode):]
		if !strings.HasPrefix(national, mobilePrefix) {
			return NormalizedPhone{}, fmt.Errorf("%w: %q national part does not start with %s", ErrInvalidPhone, raw, mobilePrefix)
		}
		return NormalizedPhone{e164: "+" + digits, raw: raw}, nil
	}

	digits = strings.TrimLeft(digits, "0")

	switch {
	case len(digits) == nationalLen && strings.HasPrefix(digits, mobilePrefix):
		return NormalizedPhone{e164: "+" + countryCode + digits, raw: raw}, nil
	case len(digits) == subscriberLen:
		// Assume the mobile prefix was dropped and re-insert it.
		return NormalizedPhone{e164: "+" + countryCode + mobilePrefix + digits, raw: raw}, nil
	case len(digits) == nationalLen:
		return NormalizedPhone{e164: "+" + countryCode + digits, raw: raw}, nil
	}

	return NormalizedPhone{}, fmt.Errorf("%w: cannot normalize %q (%d digits)", ErrInvalidPhone, raw, len(digits))
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
