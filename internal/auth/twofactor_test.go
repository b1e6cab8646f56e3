package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func enrollTwoFactor(t *testing.T, env *testEnv, accountID string) *TwoFactorSetup {
	t.Helper()
	ctx := context.Background()

	setup, err := env.service.SetupTwoFactor(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, setup.BackupCodes, 10)
	require.Contains(t, setup.QRUri, "otpauth://totp/")
	require.NotEmpty(t, setup.ManualKey)

	code, err := env.totp.GenerateCode(setup.ManualKey, env.clock.Now())
	require.NoError(t, err)
	remaining, err := env.service.VerifyTwoFactor(ctx, accountID, code)
	require.NoError(t, err)
	require.Equal(t, 10, remaining)
	return setup
}

func TestTwoFactorEnrollment(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")

	enrollTwoFactor(t, env, account.ID)

	cred, err := env.store.GetTwoFactorCredential(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, cred.Enabled)

	// A second setup on an enabled account conflicts.
	_, err = env.service.SetupTwoFactor(ctx, account.ID)
	requireKind(t, err, KindConflict)
}

func TestTwoFactorSetupCanBeRerunBeforeVerification(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")

	first, err := env.service.SetupTwoFactor(ctx, account.ID)
	require.NoError(t, err)
	second, err := env.service.SetupTwoFactor(ctx, account.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ManualKey, second.ManualKey)

	// Only the latest provisioned secret verifies.
	stale, err := env.totp.GenerateCode(first.ManualKey, env.clock.Now())
	require.NoError(t, err)
	_, err = env.service.VerifyTwoFactor(ctx, account.ID, stale)
	requireKind(t, err, KindUnauthorized)

	fresh, err := env.totp.GenerateCode(second.ManualKey, env.clock.Now())
	require.NoError(t, err)
	_, err = env.service.VerifyTwoFactor(ctx, account.ID, fresh)
	require.NoError(t, err)
}

func TestTwoFactorGatesLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")
	setup := enrollTwoFactor(t, env, account.ID)

	// Password alone no longer yields tokens.
	_, err := env.service.Login(ctx, "a@x.com", "password1", "")
	requireKind(t, err, KindTwoFactorRequired)

	code, err := env.totp.GenerateCode(setup.ManualKey, env.clock.Now())
	require.NoError(t, err)
	session, err := env.service.Login(ctx, "a@x.com", "password1", code)
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)

	_, err = env.service.Login(ctx, "a@x.com", "password1", "000000")
	requireKind(t, err, KindUnauthorized)
}

func TestTwoFactorLoginAcceptsBackupCodeOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")
	setup := enrollTwoFactor(t, env, account.ID)

	backup := setup.BackupCodes[0]
	_, err := env.service.Login(ctx, "a@x.com", "password1", backup)
	require.NoError(t, err)

	n, err := env.store.CountUnusedBackupCodes(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 9, n)

	// The burned code never works again.
	_, err = env.service.Login(ctx, "a@x.com", "password1", backup)
	requireKind(t, err, KindUnauthorized)
}

func TestTwoFactorOwnLockout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")
	setup := enrollTwoFactor(t, env, account.ID)

	for i := 0; i < 3; i++ {
		_, err := env.service.Login(ctx, "a@x.com", "password1", "000000")
		requireKind(t, err, KindUnauthorized)
	}

	// Fourth attempt hits the second-factor lock, even with a valid code.
	code, err := env.totp.GenerateCode(setup.ManualKey, env.clock.Now())
	require.NoError(t, err)
	_, err = env.service.Login(ctx, "a@x.com", "password1", code)
	outcome := requireKind(t, err, KindLocked)
	require.Equal(t, env.clock.Now().Add(5*time.Minute), outcome.LockedUntil)

	// The provisioned secret survives the lock.
	env.clock.Advance(5*time.Minute + time.Second)
	code, err = env.totp.GenerateCode(setup.ManualKey, env.clock.Now())
	require.NoError(t, err)
	_, err = env.service.Login(ctx, "a@x.com", "password1", code)
	require.NoError(t, err)
}

func TestRegenerateBackupCodesInvalidatesOldOnes(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")
	setup := enrollTwoFactor(t, env, account.ID)

	fresh, err := env.service.RegenerateBackupCodes(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 10)

	_, err = env.service.Login(ctx, "a@x.com", "password1", setup.BackupCodes[0])
	requireKind(t, err, KindUnauthorized)

	_, err = env.service.Login(ctx, "a@x.com", "password1", fresh[0])
	require.NoError(t, err)
}

func TestRegenerateRequiresEnabledTwoFactor(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")

	_, err := env.service.RegenerateBackupCodes(ctx, account.ID)
	requireKind(t, err, KindValidation)
}

func TestDisableTwoFactor(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")
	setup := enrollTwoFactor(t, env, account.ID)

	code, err := env.totp.GenerateCode(setup.ManualKey, env.clock.Now())
	require.NoError(t, err)

	err = env.service.DisableTwoFactor(ctx, account.ID, "wrong-password", code)
	requireKind(t, err, KindUnauthorized)

	err = env.service.DisableTwoFactor(ctx, account.ID, "password1", "000000")
	requireKind(t, err, KindUnauthorized)

	require.NoError(t, env.service.DisableTwoFactor(ctx, account.ID, "password1", code))

	// Enrollment is gone: logins no longer gated, codes all dropped.
	_, err = env.service.Login(ctx, "a@x.com", "password1", "")
	require.NoError(t, err)
	n, err := env.store.CountUnusedBackupCodes(ctx, account.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDisableAcceptsBackupCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	account := env.register(t, "a@x.com", "password1")
	setup := enrollTwoFactor(t, env, account.ID)

	require.NoError(t, env.service.DisableTwoFactor(ctx, account.ID, "password1", setup.BackupCodes[3]))
}
