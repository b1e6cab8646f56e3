package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"authcore/internal/store"
)

func TestLockoutPolicyOnFailure(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, LockDuration: 10 * time.Minute}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	failed, until := policy.OnFailure(0, now)
	require.Equal(t, 1, failed)
	require.Nil(t, until)

	failed, until = policy.OnFailure(3, now)
	require.Equal(t, 4, failed)
	require.Nil(t, until, "fourth failure must not lock yet")

	failed, until = policy.OnFailure(4, now)
	require.Equal(t, 5, failed)
	require.NotNil(t, until, "fifth failure crosses the threshold")
	require.Equal(t, now.Add(10*time.Minute), *until)
}

func TestLockoutPolicyActiveLock(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, locked := policy.ActiveLock(&store.Account{}, now)
	require.False(t, locked)

	future := now.Add(time.Minute)
	until, locked := policy.ActiveLock(&store.Account{LockedUntil: &future}, now)
	require.True(t, locked)
	require.Equal(t, future, until)

	// A lapsed lock is open; expiry is exclusive.
	past := now.Add(-time.Second)
	_, locked = policy.ActiveLock(&store.Account{LockedUntil: &past}, now)
	require.False(t, locked)
	_, locked = policy.ActiveLock(&store.Account{LockedUntil: &now}, now)
	require.False(t, locked)
}
