package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"authcore/internal/secrets"
	"authcore/internal/store"
)

// ErrUnknownToken reports a presented refresh secret with no matching
// record at all.
var ErrUnknownToken = errors.New("unknown refresh token")

// ReuseError reports a presented refresh secret that matched a record
// no longer eligible for rotation. The ledger has already revoked the
// whole chain by the time this is returned.
type ReuseError struct {
	AccountID string
	Reason    string
	Revoked   int64
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("refresh token reuse: %s", e.Reason)
}

// Rotation is the successful outcome of a rotate call.
type Rotation struct {
	AccountID string
	Secret    string // new raw secret, shown once
	Token     *store.RefreshToken
}

// RefreshTokenLedger manages the rotation chain: minting, rotating
// with reuse detection, and revocation. Raw secrets exist only in
// return values; the store sees SHA-256 digests.
type RefreshTokenLedger struct {
	store *store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewRefreshTokenLedger wires a ledger. now defaults to time.Now.
func NewRefreshTokenLedger(st *store.Store, ttl time.Duration, now func() time.Time) *RefreshTokenLedger {
	if now == nil {
		now = time.Now
	}
	return &RefreshTokenLedger{store: st, ttl: ttl, now: now}
}

// Create mints a fresh chain root for the account and returns the raw
// secret alongside the stored record.
func (l *RefreshTokenLedger) Create(ctx context.Context, accountID string) (string, *store.RefreshToken, error) {
	secret, token, err := l.mint(accountID)
	if err != nil {
		return "", nil, err
	}
	if err := l.store.InsertRefreshToken(ctx, token); err != nil {
		return "", nil, err
	}
	return secret, token, nil
}

// Rotate exchanges a presented secret for a successor. Any presented
// secret that matches a revoked or expired record, or that loses the
// concurrent-rotation race, is treated as reuse: every active token of
// the account is revoked before the error returns.
func (l *RefreshTokenLedger) Rotate(ctx context.Context, presented string) (*Rotation, error) {
	current, err := l.store.GetRefreshTokenBySecretHash(ctx, secrets.HashOpaqueSecret(presented))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownToken
	}
	if err != nil {
		return nil, err
	}

	now := l.now()
	if current.RevokedAt != nil {
		return nil, l.reuse(ctx, current.AccountID, "revoked token replayed", now)
	}
	if !now.Before(current.ExpiresAt) {
		return nil, l.reuse(ctx, current.AccountID, "expired token replayed", now)
	}

	secret, next, err := l.mint(current.AccountID)
	if err != nil {
		return nil, err
	}
	won, err := l.store.RotateRefreshToken(ctx, current, next, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, l.reuse(ctx, current.AccountID, "concurrent rotation lost", now)
	}

	return &Rotation{AccountID: current.AccountID, Secret: secret, Token: next}, nil
}

// Revoke retires a presented secret. Returns the owning account id
// only when this call actually revoked a live row, so the caller
// audits each logout once; unknown or already-revoked secrets yield
// empty. Always safe to call twice.
func (l *RefreshTokenLedger) Revoke(ctx context.Context, presented string) (string, error) {
	hash := secrets.HashOpaqueSecret(presented)
	current, err := l.store.GetRefreshTokenBySecretHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if current.RevokedAt != nil {
		return "", nil
	}
	if err := l.store.RevokeRefreshToken(ctx, hash, l.now()); err != nil {
		return "", err
	}
	return current.AccountID, nil
}

// RevokeAll retires every active token of the account and returns how
// many were live.
func (l *RefreshTokenLedger) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	return l.store.RevokeAllRefreshTokens(ctx, accountID, l.now())
}

// TTL exposes the configured token lifetime for cookie expiry.
func (l *RefreshTokenLedger) TTL() time.Duration { return l.ttl }

func (l *RefreshTokenLedger) mint(accountID string) (string, *store.RefreshToken, error) {
	secret, err := secrets.NewOpaqueSecret()
	if err != nil {
		return "", nil, fmt.Errorf("mint refresh secret: %w", err)
	}
	now := l.now()
	return secret, &store.RefreshToken{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		SecretHash: secrets.HashOpaqueSecret(secret),
		ExpiresAt:  now.Add(l.ttl),
		Version:    1,
		CreatedAt:  now,
	}, nil
}

func (l *RefreshTokenLedger) reuse(ctx context.Context, accountID, reason string, now time.Time) error {
	revoked, err := l.store.RevokeAllRefreshTokens(ctx, accountID, now)
	if err != nil {
		return fmt.Errorf("cascade revoke after reuse: %w", err)
	}
	return &ReuseError{AccountID: accountID, Reason: reason, Revoked: revoked}
}
