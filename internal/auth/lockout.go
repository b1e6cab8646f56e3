package auth

import (
	"time"

	"authcore/internal/store"
)

// LockoutPolicy decides when repeated failures lock an account and for
// how long. State lives on the account row; the policy itself is pure.
type LockoutPolicy struct {
	Threshold    int
	LockDuration time.Duration
}

// DefaultLockoutPolicy locks for ten minutes after five failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, LockDuration: 10 * time.Minute}
}

// ActiveLock returns the lock expiry when the account is currently
// locked. A lock that has lapsed counts as open.
func (p LockoutPolicy) ActiveLock(a *store.Account, now time.Time) (time.Time, bool) {
	if a.LockedUntil == nil || !now.Before(*a.LockedUntil) {
		return time.Time{}, false
	}
	return *a.LockedUntil, true
}

// OnFailure computes the state after one more failed attempt: the new
// counter, and the lock expiry if this failure crossed the threshold.
func (p LockoutPolicy) OnFailure(failedLogins int, now time.Time) (int, *time.Time) {
	failedLogins++
	if failedLogins >= p.Threshold {
		until := now.Add(p.LockDuration)
		return failedLogins, &until
	}
	return failedLogins, nil
}
