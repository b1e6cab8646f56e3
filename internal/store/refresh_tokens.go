package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RefreshToken is one link in an account's rotation chain. The raw
// secret never touches the table; only its SHA-256 digest is stored.
// ReplacedBy is set exactly once, at rotation, inside the same
// transaction that revokes the row.
type RefreshToken struct {
	ID         string
	AccountID  string
	SecretHash []byte
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
	Version    int64
	CreatedAt  time.Time
}

// Active reports whether the token can still be rotated: not revoked
// and not past its expiry.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// InsertRefreshToken stores a freshly created token record.
func (s *Store) InsertRefreshToken(ctx context.Context, t *RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO refresh_tokens (id, account_id, secret_hash, expires_at, version, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, t.SecretHash, toMillis(t.ExpiresAt), t.Version, toMillis(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenBySecretHash looks up the record matching a presented
// secret's digest.
func (s *Store) GetRefreshTokenBySecretHash(ctx context.Context, secretHash []byte) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, account_id, secret_hash, expires_at, revoked_at, replaced_by, version, created_at
FROM refresh_tokens WHERE secret_hash = ?`, secretHash)
	return scanRefreshToken(row)
}

// GetRefreshTokenByID looks up a record by id.
func (s *Store) GetRefreshTokenByID(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, account_id, secret_hash, expires_at, revoked_at, replaced_by, version, created_at
FROM refresh_tokens WHERE id = ?`, id)
	return scanRefreshToken(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefreshToken(row rowScanner) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt int64
	var revokedAt sql.NullInt64
	var replacedBy sql.NullString
	err := row.Scan(&t.ID, &t.AccountID, &t.SecretHash, &expiresAt, &revokedAt, &replacedBy, &t.Version, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	t.ExpiresAt = fromMillis(expiresAt)
	t.RevokedAt = millisPtr(revokedAt)
	t.ReplacedBy = replacedBy.String
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

// RotateRefreshToken atomically revokes the predecessor and inserts
// its successor. The conditional update is the optimistic concurrency
// guard: it matches only when the stored version still equals the one
// the caller read and the row is not yet revoked. When a concurrent
// rotation got there first, zero rows match and the method reports
// false without inserting; the caller treats that as reuse.
func (s *Store) RotateRefreshToken(ctx context.Context, old *RefreshToken, next *RefreshToken, revokedAt time.Time) (bool, error) {
	won := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE refresh_tokens
SET revoked_at = ?, replaced_by = ?, version = version + 1
WHERE id = ? AND version = ? AND revoked_at IS NULL`,
			toMillis(revokedAt), next.ID, old.ID, old.Version,
		)
		if err != nil {
			return fmt.Errorf("revoke predecessor: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO refresh_tokens (id, account_id, secret_hash, expires_at, version, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
			next.ID, next.AccountID, next.SecretHash, toMillis(next.ExpiresAt), next.Version, toMillis(next.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert successor: %w", err)
		}

		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// RevokeRefreshToken marks the record matching the digest revoked.
// Idempotent: missing or already-revoked tokens are not an error.
func (s *Store) RevokeRefreshToken(ctx context.Context, secretHash []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE refresh_tokens SET revoked_at = ? WHERE secret_hash = ? AND revoked_at IS NULL`,
		toMillis(at), secretHash,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllRefreshTokens revokes every active token of the account and
// returns how many rows it touched. Used by reuse detection and
// password changes.
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, accountID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE refresh_tokens
SET revoked_at = ?
WHERE account_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		toMillis(at), accountID, toMillis(at),
	)
	if err != nil {
		return 0, fmt.Errorf("revoke account tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// CountActiveRefreshTokens returns the number of rotatable tokens the
// account currently holds.
func (s *Store) CountActiveRefreshTokens(ctx context.Context, accountID string, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM refresh_tokens
WHERE account_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		accountID, toMillis(now),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active tokens: %w", err)
	}
	return n, nil
}
