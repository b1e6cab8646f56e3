package store

import (
	"context"
	"fmt"
	"time"
)

// SecurityEvent is one append-only audit row. The auth core only ever
// writes these; nothing in this service reads them back.
type SecurityEvent struct {
	ID        string
	EventType string
	AccountID string
	Email     string
	Detail    string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// InsertSecurityEvent appends an audit row.
func (s *Store) InsertSecurityEvent(ctx context.Context, ev *SecurityEvent) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO security_events (id, event_type, account_id, email, detail, ip, user_agent, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.EventType, ev.AccountID, ev.Email, ev.Detail, ev.IP, ev.UserAgent, toMillis(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// CountSecurityEvents reports how many rows of a given type exist for
// an account. Test support only; the core never reads the log.
func (s *Store) CountSecurityEvents(ctx context.Context, accountID, eventType string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM security_events WHERE account_id = ? AND event_type = ?`, accountID, eventType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count security events: %w", err)
	}
	return n, nil
}
