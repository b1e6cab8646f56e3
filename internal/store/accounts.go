package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateEmail reports a registration against an email that
	// already has an account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("record not found")
)

// Account is the durable identity record. Lockout counters live here;
// the verifier mutates them through the dedicated methods below.
type Account struct {
	ID              string
	Email           string
	PasswordHash    string
	FailedLogins    int
	LockedUntil     *time.Time
	LastFailedLogin *time.Time
	IsAdmin         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateAccount inserts a new account. Returns ErrDuplicateEmail when
// the normalized email is taken.
func (s *Store) CreateAccount(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO accounts (id, email, password_hash, failed_logins, is_admin, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.IsAdmin, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccountByEmail looks up an account by its normalized email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return s.getAccount(ctx, "email = ?", email)
}

// GetAccountByID looks up an account by id.
func (s *Store) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	return s.getAccount(ctx, "id = ?", id)
}

func (s *Store) getAccount(ctx context.Context, where string, arg any) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, failed_logins, locked_until, last_failed_login, is_admin, created_at, updated_at
FROM accounts WHERE `+where, arg)

	var a Account
	var lockedUntil, lastFailed sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FailedLogins, &lockedUntil, &lastFailed, &a.IsAdmin, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.LockedUntil = millisPtr(lockedUntil)
	a.LastFailedLogin = millisPtr(lastFailed)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

// RecordLoginFailure persists the incremented failure counter and the
// lock window, when the threshold set one. Single-row update; the
// concurrency model accepts a lost increment under races.
func (s *Store) RecordLoginFailure(ctx context.Context, accountID string, failedLogins int, lockedUntil *time.Time, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE accounts
SET failed_logins = ?, locked_until = ?, last_failed_login = ?, updated_at = ?
WHERE id = ?`,
		failedLogins, nullMillis(lockedUntil), toMillis(at), toMillis(at), accountID,
	)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

// ClearLoginFailures unconditionally resets the counters and lock
// after a successful verification.
func (s *Store) ClearLoginFailures(ctx context.Context, accountID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE accounts
SET failed_logins = 0, locked_until = NULL, last_failed_login = NULL, updated_at = ?
WHERE id = ?`,
		toMillis(at), accountID,
	)
	if err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, toMillis(at), accountID,
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
