package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authcore/internal/secrets"
	"authcore/internal/store"
	"authcore/internal/token"
)

// LoginThrottle rate-limits login attempts per source IP before any
// account state is touched. Implementations report whether the attempt
// may proceed and, when denied, how long until the window opens.
type LoginThrottle interface {
	Allow(ctx context.Context, ip string) (allowed bool, retryAfter time.Duration, err error)
	Reset(ctx context.Context, ip string) error
}

// PermissionSource resolves the permission claims stamped into access
// tokens.
type PermissionSource interface {
	PermissionsFor(ctx context.Context, account *store.Account) ([]string, error)
}

// StaticPermissions grants the same permission set to every account.
type StaticPermissions []string

func (p StaticPermissions) PermissionsFor(context.Context, *store.Account) ([]string, error) {
	return p, nil
}

// Session is the result of a successful login or refresh: the account,
// a signed access token, and the raw refresh secret with its expiry.
type Session struct {
	Account       *store.Account
	AccessToken   string
	RefreshToken  string
	RefreshExpiry time.Time
}

// Service orchestrates the auth protocols over the verifier, ledger,
// two-factor engine, and token issuer.
type Service struct {
	log         *zap.Logger
	store       *store.Store
	hasher      *secrets.Hasher
	verifier    *CredentialVerifier
	ledger      *RefreshTokenLedger
	twoFactor   *TwoFactorEngine
	issuer      *token.Issuer
	audit       *Recorder
	throttle    LoginThrottle
	permissions PermissionSource
	now         func() time.Time
}

// ServiceDeps carries the collaborators a Service needs. Throttle is
// optional; everything else is required.
type ServiceDeps struct {
	Log         *zap.Logger
	Store       *store.Store
	Hasher      *secrets.Hasher
	Verifier    *CredentialVerifier
	Ledger      *RefreshTokenLedger
	TwoFactor   *TwoFactorEngine
	Issuer      *token.Issuer
	Audit       *Recorder
	Throttle    LoginThrottle
	Permissions PermissionSource
	Now         func() time.Time
}

// NewService validates and wires the orchestrator.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Log == nil:
		return nil, errors.New("auth: logger is required")
	case deps.Store == nil:
		return nil, errors.New("auth: store is required")
	case deps.Hasher == nil:
		return nil, errors.New("auth: hasher is required")
	case deps.Verifier == nil:
		return nil, errors.New("auth: verifier is required")
	case deps.Ledger == nil:
		return nil, errors.New("auth: ledger is required")
	case deps.TwoFactor == nil:
		return nil, errors.New("auth: two-factor engine is required")
	case deps.Issuer == nil:
		return nil, errors.New("auth: token issuer is required")
	case deps.Audit == nil:
		return nil, errors.New("auth: audit recorder is required")
	}
	if deps.Permissions == nil {
		deps.Permissions = StaticPermissions(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		log:         deps.Log,
		store:       deps.Store,
		hasher:      deps.Hasher,
		verifier:    deps.Verifier,
		ledger:      deps.Ledger,
		twoFactor:   deps.TwoFactor,
		issuer:      deps.Issuer,
		audit:       deps.Audit,
		throttle:    deps.Throttle,
		permissions: deps.Permissions,
		now:         deps.Now,
	}, nil
}

// RefreshTTL exposes the refresh-token lifetime for cookie expiry.
func (s *Service) RefreshTTL() time.Duration { return s.ledger.TTL() }

// Register creates an account. Email is normalized before the
// uniqueness check; the password must satisfy the local policy.
func (s *Service) Register(ctx context.Context, email, password string) (*store.Account, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := &store.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrConflict("email already registered")
		}
		return nil, err
	}

	s.audit.Record(ctx, EventRegistered, account.ID, account.Email, "")
	return account, nil
}

// Login runs the full protocol: throttle, password verification with
// lockout, the two-factor gate, then token issuance. twoFactorCode may
// be empty; accounts with an enabled second factor then get the
// two-factor-required outcome instead of tokens.
func (s *Service) Login(ctx context.Context, email, password, twoFactorCode string) (*Session, error) {
	email = NormalizeEmail(email)
	origin := OriginFromContext(ctx)

	if s.throttle != nil && origin.IP != "" {
		allowed, retryAfter, err := s.throttle.Allow(ctx, origin.IP)
		if err != nil {
			// Fail open: the limiter backend being down must not take
			// logins down with it.
			s.log.Warn("login throttle unavailable", zap.Error(err))
		} else if !allowed {
			s.audit.Record(ctx, EventLoginRateLimited, "", email, "")
			return nil, &Error{
				Kind:        KindRateLimited,
				Message:     "too many login attempts",
				LockedUntil: s.now().Add(retryAfter),
			}
		}
	}

	account, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		if outcome, ok := AsOutcome(err); ok {
			switch outcome.Kind {
			case KindLocked:
				s.audit.Record(ctx, EventLockout, "", email, "")
			case KindUnauthorized:
				s.audit.Record(ctx, EventLoginFail, "", email, "")
			}
		}
		return nil, err
	}

	usedBackup, err := s.twoFactor.VerifyForLogin(ctx, account, twoFactorCode)
	if err != nil {
		if outcome, ok := AsOutcome(err); ok {
			switch outcome.Kind {
			case KindTwoFactorRequired:
				s.audit.Record(ctx, EventTwoFactorRequired, account.ID, email, "")
			case KindLocked:
				s.audit.Record(ctx, EventTwoFactorLockout, account.ID, email, "")
			case KindUnauthorized:
				s.audit.Record(ctx, EventTwoFactorFailed, account.ID, email, "")
			}
		}
		return nil, err
	}
	if usedBackup {
		s.audit.Record(ctx, EventBackupCodeUsed, account.ID, email, "")
	}

	session, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, err
	}

	if s.throttle != nil && origin.IP != "" {
		if err := s.throttle.Reset(ctx, origin.IP); err != nil {
			s.log.Warn("login throttle reset failed", zap.Error(err))
		}
	}
	s.audit.Record(ctx, EventLoginSuccess, account.ID, email, "")
	return session, nil
}

// Refresh rotates a presented refresh secret into a new session. Any
// reuse signal has already cascaded inside the ledger; here it is
// audited and collapsed into the uniform unauthorized outcome.
func (s *Service) Refresh(ctx context.Context, presented string) (*Session, error) {
	if presented == "" {
		return nil, ErrUnauthorized()
	}

	rotation, err := s.ledger.Rotate(ctx, presented)
	if err != nil {
		var reuse *ReuseError
		if errors.As(err, &reuse) {
			s.audit.Record(ctx, EventRefreshReused, reuse.AccountID, "",
				fmt.Sprintf("%s; revoked %d active tokens", reuse.Reason, reuse.Revoked))
			return nil, ErrUnauthorized()
		}
		if errors.Is(err, ErrUnknownToken) {
			return nil, ErrUnauthorized()
		}
		return nil, err
	}

	account, err := s.store.GetAccountByID(ctx, rotation.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	access, err := s.issueAccessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, EventRefreshRotated, account.ID, account.Email, "")
	return &Session{
		Account:       account,
		AccessToken:   access,
		RefreshToken:  rotation.Secret,
		RefreshExpiry: rotation.Token.ExpiresAt,
	}, nil
}

// Logout revokes the presented refresh secret. Best effort and
// idempotent: unknown secrets are ignored.
func (s *Service) Logout(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	accountID, err := s.ledger.Revoke(ctx, presented)
	if err != nil {
		return err
	}
	if accountID != "" {
		s.audit.Record(ctx, EventLogout, accountID, "", "")
	}
	return nil
}

// Account loads the account behind an authenticated request.
func (s *Service) Account(ctx context.Context, accountID string) (*store.Account, error) {
	account, err := s.store.GetAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized()
	}
	return account, err
}

// TwoFactorEnabled reports whether the account's second factor is on,
// for profile responses.
func (s *Service) TwoFactorEnabled(ctx context.Context, accountID string) (bool, error) {
	return s.twoFactor.Enabled(ctx, accountID)
}

// ChangePassword swaps the stored hash after confirming the current
// password, then revokes every refresh token so stolen sessions die
// with the old password.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}

	account, err := s.Account(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := s.verifier.CheckPassword(account, current)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		return &Error{Kind: KindUnauthorized, Message: "current password is incorrect"}
	}
	if same, err := s.verifier.CheckPassword(account, next); err != nil {
		return fmt.Errorf("compare new password: %w", err)
	} else if same {
		return ErrValidation("new password must differ from the current password")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, account.ID, hash, s.now()); err != nil {
		return err
	}

	revoked, err := s.ledger.RevokeAll(ctx, account.ID)
	if err != nil {
		return err
	}
	s.audit.Record(ctx, EventPasswordChanged, account.ID, account.Email, "")
	if revoked > 0 {
		s.audit.Record(ctx, EventTokensRevoked, account.ID, account.Email,
			fmt.Sprintf("password change revoked %d tokens", revoked))
	}
	return nil
}

// SetupTwoFactor provisions a secret and backup codes for the account.
func (s *Service) SetupTwoFactor(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	account, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.twoFactor.Setup(ctx, account)
}

// VerifyTwoFactor confirms a provisioned secret, enabling the second
// factor on first success.
func (s *Service) VerifyTwoFactor(ctx context.Context, accountID, code string) (remaining int, err error) {
	account, err := s.Account(ctx, accountID)
	if err != nil {
		return 0, err
	}

	remaining, enabledNow, err := s.twoFactor.Verify(ctx, account, code)
	if err != nil {
		if outcome, ok := AsOutcome(err); ok {
			switch outcome.Kind {
			case KindLocked:
				s.audit.Record(ctx, EventTwoFactorLockout, account.ID, account.Email, "")
			case KindUnauthorized:
				s.audit.Record(ctx, EventTwoFactorFailed, account.ID, account.Email, "")
			}
		}
		return 0, err
	}

	s.audit.Record(ctx, EventTwoFactorVerified, account.ID, account.Email, "")
	if enabledNow {
		s.audit.Record(ctx, EventTwoFactorEnabled, account.ID, account.Email, "")
	}
	return remaining, nil
}

// DisableTwoFactor tears down the enrollment after re-confirming the
// password and a fresh code.
func (s *Service) DisableTwoFactor(ctx context.Context, accountID, password, code string) error {
	account, err := s.Account(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := s.verifier.CheckPassword(account, password)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return &Error{Kind: KindUnauthorized, Message: "password confirmation failed"}
	}

	if err := s.twoFactor.Disable(ctx, account, code); err != nil {
		return err
	}
	s.audit.Record(ctx, EventTwoFactorDisabled, account.ID, account.Email, "")
	return nil
}

// RegenerateBackupCodes mints a fresh generation of recovery codes.
func (s *Service) RegenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	account, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	codes, err := s.twoFactor.RegenerateBackupCodes(ctx, account)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, EventBackupCodesRegenerated, account.ID, account.Email, "")
	return codes, nil
}

// Authenticate parses and validates a bearer access token.
func (s *Service) Authenticate(tokenStr string) (*token.Claims, error) {
	claims, err := s.issuer.Parse(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized()
	}
	return claims, nil
}

func (s *Service) issueSession(ctx context.Context, account *store.Account) (*Session, error) {
	access, err := s.issueAccessToken(ctx, account)
	if err != nil {
		return nil, err
	}
	secret, record, err := s.ledger.Create(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		Account:       account,
		AccessToken:   access,
		RefreshToken:  secret,
		RefreshExpiry: record.ExpiresAt,
	}, nil
}

func (s *Service) issueAccessToken(ctx context.Context, account *store.Account) (string, error) {
	permissions, err := s.permissions.PermissionsFor(ctx, account)
	if err != nil {
		return "", fmt.Errorf("resolve permissions: %w", err)
	}
	access, err := s.issuer.Issue(account.ID, account.Email, account.IsAdmin, permissions)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return access, nil
}

func validateEmail(email string) error {
	if email == "" {
		return ErrValidation("email is required")
	}
	if len(email) > 254 {
		return ErrValidation("email is too long")
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return ErrValidation("email is not valid")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return ErrValidation("password must be at least 8 characters")
	}
	if len(password) > 256 {
		return ErrValidation("password must be at most 256 characters")
	}
	return nil
}
