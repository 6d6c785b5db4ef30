// Package mfa manages the account's second-factor recovery codes and
// TOTP passcode computation.
package mfa

import "time"

// RecoveryCodes is the canonical recovery code set. Remaining is nil when
// the server did not report it and it cannot be derived; ExpiresAt is nil
// for sets that do not expire. Masked marks sets the server redacted
// (codes shown as bullets); masked codes are kept verbatim, never
// "unmasked" client-side.
type RecoveryCodes struct {
	Codes     []string
	Remaining *int
	Masked    bool
	ExpiresAt *time.Time
}

// Count returns how many usable codes are known: the reported Remaining
// when present, otherwise the number of codes.
func (r *RecoveryCodes) Count() int {
	if r.Remaining != nil {
		return *r.Remaining
	}
	return len(r.Codes)
}
