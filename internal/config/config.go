// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable the service reads at startup. Components
// receive the values they need through their constructors; nothing
// reads the environment after Load returns.
type Config struct {
	Env        string `env:"APP_ENV" envDefault:"development"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"auth.db"`

	// RedisAddr is optional; when empty the per-IP login throttle is
	// disabled and only the account lockout applies.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	JWTSigningKey   string        `env:"JWT_SIGNING_KEY"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"authcore"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"336h"`

	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION" envDefault:"10m"`

	TwoFactorIssuer          string        `env:"TWO_FACTOR_ISSUER" envDefault:"authcore"`
	TwoFactorLockoutAttempts int           `env:"TWO_FACTOR_LOCKOUT_ATTEMPTS" envDefault:"3"`
	TwoFactorLockoutDuration time.Duration `env:"TWO_FACTOR_LOCKOUT_DURATION" envDefault:"5m"`

	LoginThrottleLimit  int           `env:"LOGIN_THROTTLE_LIMIT" envDefault:"20"`
	LoginThrottleWindow time.Duration `env:"LOGIN_THROTTLE_WINDOW" envDefault:"5m"`

	AuditBufferSize int `env:"AUDIT_BUFFER_SIZE" envDefault:"256"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot run with.
func (c Config) Validate() error {
	if len(c.JWTSigningKey) < 32 {
		return errors.New("JWT_SIGNING_KEY must be at least 32 bytes")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return errors.New("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	}
	if c.LockoutThreshold < 1 {
		return errors.New("LOCKOUT_THRESHOLD must be at least 1")
	}
	if c.LockoutDuration <= 0 {
		return errors.New("LOCKOUT_DURATION must be positive")
	}
	if c.TwoFactorLockoutAttempts < 1 {
		return errors.New("TWO_FACTOR_LOCKOUT_ATTEMPTS must be at least 1")
	}
	if c.LoginThrottleLimit < 1 {
		return errors.New("LOGIN_THROTTLE_LIMIT must be at least 1")
	}
	return nil
}

// Production reports whether the service runs with production
// hardening (secure cookies, JSON logs).
func (c Config) Production() bool {
	return c.Env == "production"
}
