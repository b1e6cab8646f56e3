// Package auth composes the identity core: credential verification
// with lockout, refresh-token rotation with reuse detection, the
// two-factor engine, and the orchestrated login/refresh/logout
// protocols.
package auth

import (
	"errors"
	"time"
)

// FailureKind tags an auth outcome. Callers branch on the kind instead
// of matching error types; the HTTP layer owns the status mapping.
type FailureKind uint8

const (
	// KindUnauthorized covers bad credentials, invalid or reused
	// refresh tokens, and invalid two-factor codes. Deliberately one
	// signal: a client cannot tell which case fired.
	KindUnauthorized FailureKind = iota + 1
	// KindLocked reports an active account or two-factor lock window.
	KindLocked
	// KindConflict reports a duplicate registration.
	KindConflict
	// KindValidation reports malformed input such as a short password.
	KindValidation
	// KindTwoFactorRequired reports a login that needs a second factor
	// before credentials can be exchanged for tokens.
	KindTwoFactorRequired
	// KindRateLimited reports the per-IP login throttle firing.
	KindRateLimited
)

// Error is the typed auth outcome. LockedUntil is set for KindLocked
// and KindRateLimited so callers can hint at retry timing.
type Error struct {
	Kind        FailureKind
	Message     string
	LockedUntil time.Time
}

func (e *Error) Error() string { return e.Message }

// ErrUnauthorized returns the uniform bad-credentials outcome.
func ErrUnauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Message: "invalid credentials"}
}

// ErrLocked returns a lockout outcome with its expiry hint.
func ErrLocked(until time.Time) *Error {
	return &Error{Kind: KindLocked, Message: "account temporarily locked", LockedUntil: until}
}

// ErrConflict returns a duplicate-resource outcome.
func ErrConflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// ErrValidation returns a malformed-input outcome.
func ErrValidation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// ErrTwoFactorRequired returns the missing-second-factor outcome.
func ErrTwoFactorRequired() *Error {
	return &Error{Kind: KindTwoFactorRequired, Message: "two-factor code required"}
}

// AsOutcome extracts the typed outcome from an error chain. The second
// return is false for internal failures, which callers must map to an
// opaque server error.
func AsOutcome(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
