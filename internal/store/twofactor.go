package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TwoFactorCredential is the per-account TOTP enrollment record.
// Exactly one exists while an account is provisioned or enabled; the
// row is deleted entirely on disable.
type TwoFactorCredential struct {
	AccountID      string
	Secret         string // base32
	Enabled        bool
	FailedAttempts int
	LockedUntil    *time.Time
	LastVerifiedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BackupCode is a single-use recovery credential. Used rows are kept
// for their origin metadata; regeneration removes only unused ones.
type BackupCode struct {
	ID            string
	AccountID     string
	CodeHash      string
	Used          bool
	UsedAt        *time.Time
	UsedIP        string
	UsedUserAgent string
	CreatedAt     time.Time
}

// UpsertTwoFactorCredential writes the enrollment record, replacing
// any previous provisioning cycle.
func (s *Store) UpsertTwoFactorCredential(ctx context.Context, c *TwoFactorCredential) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO two_factor_credentials (account_id, secret, enabled, failed_attempts, locked_until, last_verified_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(account_id) DO UPDATE SET
	secret = excluded.secret,
	enabled = excluded.enabled,
	failed_attempts = excluded.failed_attempts,
	locked_until = excluded.locked_until,
	last_verified_at = excluded.last_verified_at,
	updated_at = excluded.updated_at`,
		c.AccountID, c.Secret, c.Enabled, c.FailedAttempts,
		nullMillis(c.LockedUntil), nullMillis(c.LastVerifiedAt),
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert two-factor credential: %w", err)
	}
	return nil
}

// GetTwoFactorCredential returns the enrollment record, or ErrNotFound
// when the account never enrolled (or disabled).
func (s *Store) GetTwoFactorCredential(ctx context.Context, accountID string) (*TwoFactorCredential, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT account_id, secret, enabled, failed_attempts, locked_until, last_verified_at, created_at, updated_at
FROM two_factor_credentials WHERE account_id = ?`, accountID)

	var c TwoFactorCredential
	var lockedUntil, lastVerified sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&c.AccountID, &c.Secret, &c.Enabled, &c.FailedAttempts, &lockedUntil, &lastVerified, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan two-factor credential: %w", err)
	}
	c.LockedUntil = millisPtr(lockedUntil)
	c.LastVerifiedAt = millisPtr(lastVerified)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// UpdateTwoFactorState persists the verification counters and enabled
// flag after an attempt.
func (s *Store) UpdateTwoFactorState(ctx context.Context, accountID string, enabled bool, failedAttempts int, lockedUntil, lastVerifiedAt *time.Time, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE two_factor_credentials
SET enabled = ?, failed_attempts = ?, locked_until = ?, last_verified_at = ?, updated_at = ?
WHERE account_id = ?`,
		enabled, failedAttempts, nullMillis(lockedUntil), nullMillis(lastVerifiedAt), toMillis(at), accountID,
	)
	if err != nil {
		return fmt.Errorf("update two-factor state: %w", err)
	}
	return nil
}

// DeleteTwoFactorCredential removes the enrollment and every backup
// code, used or not, in one transaction.
func (s *Store) DeleteTwoFactorCredential(ctx context.Context, accountID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM two_factor_credentials WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("delete two-factor credential: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		return nil
	})
}

// ReplaceBackupCodes removes the account's unused codes and inserts
// the new generation atomically.
func (s *Store) ReplaceBackupCodes(ctx context.Context, accountID string, codes []BackupCode) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE account_id = ? AND used = 0`, accountID); err != nil {
			return fmt.Errorf("invalidate unused backup codes: %w", err)
		}
		for i := range codes {
			c := &codes[i]
			if _, err := tx.ExecContext(ctx, `
INSERT INTO backup_codes (id, account_id, code_hash, used, created_at)
VALUES (?, ?, ?, 0, ?)`,
				c.ID, c.AccountID, c.CodeHash, toMillis(c.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert backup code: %w", err)
			}
		}
		return nil
	})
}

// ConsumeBackupCode marks the matching unused code as used, recording
// origin metadata. The single conditional update makes consumption
// one-way: a second attempt with the same code matches zero rows.
func (s *Store) ConsumeBackupCode(ctx context.Context, accountID, codeHash string, at time.Time, ip, userAgent string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE backup_codes
SET used = 1, used_at = ?, used_ip = ?, used_user_agent = ?
WHERE account_id = ? AND code_hash = ? AND used = 0`,
		toMillis(at), ip, userAgent, accountID, codeHash,
	)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CountUnusedBackupCodes returns how many recovery codes remain.
func (s *Store) CountUnusedBackupCodes(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM backup_codes WHERE account_id = ? AND used = 0`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return n, nil
}
