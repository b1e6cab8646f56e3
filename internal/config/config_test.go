package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.Env)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 14*24*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, 5, cfg.LockoutThreshold)
	require.Equal(t, 10*time.Minute, cfg.LockoutDuration)
	require.Equal(t, 3, cfg.TwoFactorLockoutAttempts)
	require.False(t, cfg.Production())
}

func TestLoadRejectsShortSigningKey(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvertedTTLs(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("ACCESS_TOKEN_TTL", "24h")
	t.Setenv("REFRESH_TOKEN_TTL", "1h")

	_, err := Load()
	require.Error(t, err)
}

func TestProductionFlag(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Production())
}
