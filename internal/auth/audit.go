package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authcore/internal/store"
)

// Security event types written to the audit log.
const (
	EventRegistered             = "REGISTERED"
	EventLoginSuccess           = "LOGIN_SUCCESS"
	EventLoginFail              = "LOGIN_FAIL"
	EventLockout                = "LOCKOUT"
	EventLoginRateLimited       = "LOGIN_RATE_LIMITED"
	EventTwoFactorRequired      = "TWO_FACTOR_REQUIRED"
	EventTwoFactorVerified      = "TWO_FACTOR_VERIFIED"
	EventTwoFactorFailed        = "TWO_FACTOR_FAILED"
	EventTwoFactorLockout       = "TWO_FACTOR_LOCKOUT"
	EventTwoFactorEnabled       = "TWO_FACTOR_ENABLED"
	EventTwoFactorDisabled      = "TWO_FACTOR_DISABLED"
	EventBackupCodeUsed         = "BACKUP_CODE_USED"
	EventBackupCodesRegenerated = "BACKUP_CODES_REGENERATED"
	EventRefreshRotated         = "REFRESH_ROTATED"
	EventRefreshReused          = "REFRESH_REUSED"
	EventLogout                 = "LOGOUT"
	EventPasswordChanged        = "PASSWORD_CHANGED"
	EventTokensRevoked          = "TOKENS_REVOKED"
)

// EventSink persists audit rows. *store.Store satisfies it.
type EventSink interface {
	InsertSecurityEvent(ctx context.Context, ev *store.SecurityEvent) error
}

// Recorder appends security events off the request path. Record never
// blocks: when the buffer is full the event is dropped and counted,
// availability over completeness.
type Recorder struct {
	log     *zap.Logger
	sink    EventSink
	events  chan *store.SecurityEvent
	dropped atomic.Uint64
	now     func() time.Time

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRecorder starts the background writer. buffer bounds how many
// events may be in flight; now defaults to time.Now.
func NewRecorder(sink EventSink, log *zap.Logger, buffer int, now func() time.Time) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	if now == nil {
		now = time.Now
	}
	r := &Recorder{
		log:    log,
		sink:   sink,
		events: make(chan *store.SecurityEvent, buffer),
		now:    now,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues an audit event, stamping it with the request origin
// from ctx. Drops rather than blocks when the buffer is full.
func (r *Recorder) Record(ctx context.Context, eventType, accountID, email, detail string) {
	origin := OriginFromContext(ctx)
	ev := &store.SecurityEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		AccountID: accountID,
		Email:     email,
		Detail:    detail,
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
		CreatedAt: r.now(),
	}
	select {
	case r.events <- ev:
	default:
		n := r.dropped.Add(1)
		r.log.Warn("audit buffer full, event dropped",
			zap.String("event_type", eventType),
			zap.Uint64("dropped_total", n),
		)
	}
}

// Dropped reports how many events have been discarded since start.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close drains the buffer and stops the writer. Record must not be
// called after Close.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.events)
		r.wg.Wait()
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for ev := range r.events {
		// Detached context: request cancellation must not lose rows
		// already accepted into the buffer.
		if err := r.sink.InsertSecurityEvent(context.Background(), ev); err != nil {
			r.log.Error("write security event",
				zap.String("event_type", ev.EventType),
				zap.Error(err),
			)
		}
	}
}
