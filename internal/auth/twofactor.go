package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"authcore/internal/secrets"
	"authcore/internal/store"
	"authcore/internal/twofactor"
)

const backupCodeCount = 10
const backupCodeDigits = 6

// TwoFactorSetup is the enrollment payload shown to the user exactly
// once: the provisioning URI, the manual-entry secret, and the fresh
// backup codes.
type TwoFactorSetup struct {
	QRUri       string
	ManualKey   string
	BackupCodes []string
}

// TwoFactorEngine drives the TOTP enrollment state machine. Accounts
// move NotEnrolled -> Provisioned -> Enabled; the engine carries its
// own small lockout on the credential row, separate from the account
// lockout.
type TwoFactorEngine struct {
	store        *store.Store
	totp         *twofactor.Manager
	maxFailures  int
	lockDuration time.Duration
	now          func() time.Time
}

// NewTwoFactorEngine wires the engine. now defaults to time.Now.
func NewTwoFactorEngine(st *store.Store, totp *twofactor.Manager, maxFailures int, lockDuration time.Duration, now func() time.Time) *TwoFactorEngine {
	if now == nil {
		now = time.Now
	}
	return &TwoFactorEngine{
		store:        st,
		totp:         totp,
		maxFailures:  maxFailures,
		lockDuration: lockDuration,
		now:          now,
	}
}

// Enabled reports whether the account has an enabled second factor.
func (e *TwoFactorEngine) Enabled(ctx context.Context, accountID string) (bool, error) {
	cred, err := e.store.GetTwoFactorCredential(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cred.Enabled, nil
}

// Setup provisions a fresh secret and backup codes. Re-running setup
// before verification replaces the provisioned secret; running it on
// an enabled account is a conflict, disable comes first.
func (e *TwoFactorEngine) Setup(ctx context.Context, account *store.Account) (*TwoFactorSetup, error) {
	cred, err := e.store.GetTwoFactorCredential(ctx, account.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if cred != nil && cred.Enabled {
		return nil, ErrConflict("two-factor authentication is already enabled")
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	now := e.now()
	if err := e.store.UpsertTwoFactorCredential(ctx, &store.TwoFactorCredential{
		AccountID: account.ID,
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}

	codes, err := e.replaceBackupCodes(ctx, account.ID, now)
	if err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		QRUri:       e.totp.ProvisionURI(secret, account.Email),
		ManualKey:   secret,
		BackupCodes: codes,
	}, nil
}

// Verify confirms a provisioned secret and flips the account to
// Enabled, or re-verifies an already-enabled one. Three consecutive
// failures lock the second factor for the configured window without
// destroying the provisioned secret. Returns how many backup codes
// remain and whether this call performed the enable transition.
func (e *TwoFactorEngine) Verify(ctx context.Context, account *store.Account, code string) (remaining int, enabledNow bool, err error) {
	cred, err := e.store.GetTwoFactorCredential(ctx, account.ID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, ErrValidation("two-factor authentication is not set up")
	}
	if err != nil {
		return 0, false, err
	}

	if err := e.checkCode(ctx, cred, code); err != nil {
		return 0, false, err
	}

	enabledNow = !cred.Enabled
	now := e.now()
	if err := e.store.UpdateTwoFactorState(ctx, account.ID, true, 0, nil, &now, now); err != nil {
		return 0, false, err
	}

	remaining, err = e.store.CountUnusedBackupCodes(ctx, account.ID)
	if err != nil {
		return 0, false, err
	}
	return remaining, enabledNow, nil
}

// VerifyForLogin validates the second factor during login: the code is
// tried as TOTP first, then as a backup code. Only enabled credentials
// gate logins. Returns whether a backup code was burned.
func (e *TwoFactorEngine) VerifyForLogin(ctx context.Context, account *store.Account, code string) (usedBackup bool, err error) {
	cred, err := e.store.GetTwoFactorCredential(ctx, account.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cred.Enabled {
		return false, nil
	}
	if code == "" {
		return false, ErrTwoFactorRequired()
	}

	now := e.now()
	if until, locked := e.activeLock(cred, now); locked {
		return false, ErrLocked(until)
	}

	ok, err := e.totp.VerifyCode(cred.Secret, code, now)
	if err != nil {
		return false, fmt.Errorf("verify totp: %w", err)
	}
	if ok {
		if err := e.store.UpdateTwoFactorState(ctx, account.ID, true, 0, nil, &now, now); err != nil {
			return false, err
		}
		return false, nil
	}

	origin := OriginFromContext(ctx)
	consumed, err := e.store.ConsumeBackupCode(ctx, account.ID, secrets.HashBackupCode(account.ID, code), now, origin.IP, origin.UserAgent)
	if err != nil {
		return false, err
	}
	if consumed {
		if err := e.store.UpdateTwoFactorState(ctx, account.ID, true, 0, nil, &now, now); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, e.recordFailure(ctx, cred, now)
}

// Disable tears down the enrollment: the caller must present a fresh
// valid code (TOTP or backup). Password confirmation happens in the
// service before this is called. Removes the credential and every
// backup code.
func (e *TwoFactorEngine) Disable(ctx context.Context, account *store.Account, code string) error {
	cred, err := e.store.GetTwoFactorCredential(ctx, account.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrValidation("two-factor authentication is not enabled")
	}
	if err != nil {
		return err
	}
	if !cred.Enabled {
		return ErrValidation("two-factor authentication is not enabled")
	}

	if err := e.checkCode(ctx, cred, code); err != nil {
		return err
	}
	return e.store.DeleteTwoFactorCredential(ctx, account.ID)
}

// RegenerateBackupCodes mints a new generation of codes, invalidating
// all unused predecessors. Only enabled accounts can regenerate.
func (e *TwoFactorEngine) RegenerateBackupCodes(ctx context.Context, account *store.Account) ([]string, error) {
	cred, err := e.store.GetTwoFactorCredential(ctx, account.ID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !cred.Enabled) {
		return nil, ErrValidation("two-factor authentication is not enabled")
	}
	if err != nil {
		return nil, err
	}
	return e.replaceBackupCodes(ctx, account.ID, e.now())
}

// checkCode validates a TOTP-or-backup code against the credential,
// driving the failure counter and lock window.
func (e *TwoFactorEngine) checkCode(ctx context.Context, cred *store.TwoFactorCredential, code string) error {
	now := e.now()
	if until, locked := e.activeLock(cred, now); locked {
		return ErrLocked(until)
	}

	ok, err := e.totp.VerifyCode(cred.Secret, code, now)
	if err != nil {
		return fmt.Errorf("verify totp: %w", err)
	}
	if !ok {
		origin := OriginFromContext(ctx)
		ok, err = e.store.ConsumeBackupCode(ctx, cred.AccountID, secrets.HashBackupCode(cred.AccountID, code), now, origin.IP, origin.UserAgent)
		if err != nil {
			return err
		}
	}
	if !ok {
		return e.recordFailure(ctx, cred, now)
	}
	return nil
}

func (e *TwoFactorEngine) activeLock(cred *store.TwoFactorCredential, now time.Time) (time.Time, bool) {
	if cred.LockedUntil == nil || !now.Before(*cred.LockedUntil) {
		return time.Time{}, false
	}
	return *cred.LockedUntil, true
}

func (e *TwoFactorEngine) recordFailure(ctx context.Context, cred *store.TwoFactorCredential, now time.Time) error {
	failed := cred.FailedAttempts + 1
	var lockedUntil *time.Time
	if failed >= e.maxFailures {
		until := now.Add(e.lockDuration)
		lockedUntil = &until
		failed = 0
	}
	if err := e.store.UpdateTwoFactorState(ctx, cred.AccountID, cred.Enabled, failed, lockedUntil, cred.LastVerifiedAt, now); err != nil {
		return err
	}
	return &Error{Kind: KindUnauthorized, Message: "invalid two-factor code"}
}

func (e *TwoFactorEngine) replaceBackupCodes(ctx context.Context, accountID string, now time.Time) ([]string, error) {
	plain := make([]string, 0, backupCodeCount)
	records := make([]store.BackupCode, 0, backupCodeCount)
	for len(plain) < backupCodeCount {
		code, err := secrets.NewNumericCode(backupCodeDigits)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		plain = append(plain, code)
		records = append(records, store.BackupCode{
			ID:        uuid.NewString(),
			AccountID: accountID,
			CodeHash:  secrets.HashBackupCode(accountID, code),
			CreatedAt: now,
		})
	}
	if err := e.store.ReplaceBackupCodes(ctx, accountID, records); err != nil {
		return nil, err
	}
	return plain, nil
}
