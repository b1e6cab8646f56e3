package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authcore/internal/secrets"
	"authcore/internal/store"
)

// NormalizeEmail lowercases and trims an address so lookups and the
// unique constraint agree on identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CredentialVerifier checks a password against the stored hash and
// drives the lockout counters around the attempt.
type CredentialVerifier struct {
	store  *store.Store
	hasher *secrets.Hasher
	policy LockoutPolicy
	now    func() time.Time
}

// NewCredentialVerifier wires a verifier. now defaults to time.Now.
func NewCredentialVerifier(st *store.Store, hasher *secrets.Hasher, policy LockoutPolicy, now func() time.Time) *CredentialVerifier {
	if now == nil {
		now = time.Now
	}
	return &CredentialVerifier{store: st, hasher: hasher, policy: policy, now: now}
}

// Verify resolves the account and checks the password. Order matters:
// the lock gate runs before the hash comparison so a locked account
// rejects even the correct password. A failure on the attempt that
// crosses the threshold still reports plain unauthorized; the lock
// only answers the next attempt.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*store.Account, error) {
	account, err := v.store.GetAccountByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		// Burn a hash anyway so the unknown-email path costs the same
		// as a wrong password.
		_, _ = v.hasher.Verify(decoyHash, password)
		return nil, ErrUnauthorized()
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	now := v.now()
	if until, locked := v.policy.ActiveLock(account, now); locked {
		return nil, ErrLocked(until)
	}

	ok, err := v.hasher.Verify(account.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		failed, lockUntil := v.policy.OnFailure(account.FailedLogins, now)
		if err := v.store.RecordLoginFailure(ctx, account.ID, failed, lockUntil, now); err != nil {
			return nil, fmt.Errorf("record failure: %w", err)
		}
		return nil, ErrUnauthorized()
	}

	if account.FailedLogins > 0 || account.LockedUntil != nil {
		if err := v.store.ClearLoginFailures(ctx, account.ID, now); err != nil {
			return nil, fmt.Errorf("clear failures: %w", err)
		}
		account.FailedLogins = 0
		account.LockedUntil = nil
		account.LastFailedLogin = nil
	}
	return account, nil
}

// CheckPassword verifies a password for an already-loaded account
// without touching the lockout counters. Used by password change and
// two-factor disable, which run behind a valid access token.
func (v *CredentialVerifier) CheckPassword(account *store.Account, password string) (bool, error) {
	return v.hasher.Verify(account.PasswordHash, password)
}

// decoyHash is a throwaway argon2id digest of an unguessable input,
// used to equalize timing on unknown-email lookups.
const decoyHash = "$argon2id$v=19$m=65536,t=2,p=2$AAAAAAAAAAAAAAAAAAAAAA$u1tkc1rApE8QBEY3VIAQj8LZ8V+JPT6jawzMlSJ5Nok"
