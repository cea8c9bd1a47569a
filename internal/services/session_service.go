package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/models"
	"github.com/vaultkeeper/vaultd/internal/validation"
	pkgauth "github.com/vaultkeeper/vaultd/pkg/auth"
	pkglogger "github.com/vaultkeeper/vaultd/pkg/logger"
)

// UserRepository defines the identity-provider persistence the gateway
// consumes.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	SetTwoFactorSecret(ctx context.Context, id, secret string, backupCodeHashes []string) error
	EnableTwoFactor(ctx context.Context, id string) error
	DisableTwoFactor(ctx context.Context, id string) error
	ConsumeBackupCode(ctx context.Context, id, codeHash string) error
}

// SessionConfig holds gateway tunables.
type SessionConfig struct {
	MaxLoginAttempts  int
	LockoutWindow     time.Duration
	InactivityTimeout time.Duration
}

// RegisterResult is a discriminated outcome for registration. Register
// never lets an error escape its boundary; callers branch on Success and
// render Message inline.
type RegisterResult struct {
	Success bool
	Message string
}

// SessionService is the session/identity gateway. It wraps the identity
// persistence layer, owns the in-memory session table, the login
// throttle, and the per-session inactivity timers, and translates every
// backend failure into the small user-facing error taxonomy before it
// reaches a caller.
//
// Sessions are keyed by user ID. Every authenticated operation names the
// acting user explicitly; one user's session, idle expiry, or logout
// never touches another's.
type SessionService struct {
	users     UserRepository
	tokens    *auth.TokenManager
	totp      *auth.TOTPManager
	throttle  *auth.LoginThrottle
	timing    *auth.TimingDelay
	federated *auth.FederatedVerifier
	audit     *AuditService
	email     EmailService // nil when email delivery is disabled
	logger    *slog.Logger

	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	onLogout func(userID string)
}

// sessionEntry pairs a live session with its own inactivity timer.
type sessionEntry struct {
	session *models.Session
	idle    *auth.IdleTimer
}

func NewSessionService(
	users UserRepository,
	tokens *auth.TokenManager,
	totp *auth.TOTPManager,
	federated *auth.FederatedVerifier,
	audit *AuditService,
	email EmailService,
	logger *slog.Logger,
	cfg SessionConfig,
) *SessionService {
	return &SessionService{
		users:       users,
		tokens:      tokens,
		totp:        totp,
		throttle:    auth.NewLoginThrottle(cfg.MaxLoginAttempts, cfg.LockoutWindow),
		timing:      auth.NewTimingDelay(50*time.Millisecond, 100*time.Millisecond),
		federated:   federated,
		audit:       audit,
		email:       email,
		logger:      logger,
		idleTimeout: cfg.InactivityTimeout,
		sessions:    make(map[string]*sessionEntry),
	}
}

// SetLogoutHook registers a callback invoked whenever a session ends,
// explicitly or via its idle timer. The credential store uses it to drop
// that user's in-memory state.
func (s *SessionService) SetLogoutHook(fn func(userID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = fn
}

// CurrentUser returns the signed-in profile for the given user or
// ErrNotAuthenticated when that user has no live session. Reads count as
// activity and reset the session's idle timer.
func (s *SessionService) CurrentUser(userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[userID]
	if !ok {
		return nil, models.ErrNotAuthenticated
	}
	entry.idle.Touch()
	return entry.session.User, nil
}

// Login authenticates with email/password and an optional TOTP code.
//
// When the account has two-factor enabled and no code is supplied, it
// fails with ErrTwoFactorRequired without charging the throttle; the
// caller re-invokes with a code. Backup codes are accepted in place of a
// TOTP code.
func (s *SessionService) Login(ctx context.Context, email, password, totpCode string) (*models.Session, error) {
	if err := validation.ValidateEmail(email).Err(); err != nil {
		return nil, err
	}
	email = validation.Sanitize(strings.ToLower(email))

	if allowed, remaining := s.throttle.Check(email); !allowed {
		s.logger.Warn("login blocked by throttle",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Int("remaining", remaining))
		s.audit.Record(models.SecurityEvent{
			Type:    models.EventLoginFailure,
			Details: "throttled",
		})
		return nil, models.ErrTooManyAttempts
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.failLogin(email, nil, "invalid_credentials", models.ErrInvalidCredentials)
		}
		s.logger.Error("failed to load user for login", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, s.failLogin(email, &user.ID, "invalid_credentials", models.ErrInvalidCredentials)
	}

	if user.TwoFactorEnabled {
		if totpCode == "" {
			// Not an attack signal: the caller simply has not supplied
			// the second factor yet.
			return nil, models.ErrTwoFactorRequired
		}
		if !s.verifySecondFactor(ctx, user, totpCode) {
			return nil, s.failLogin(email, &user.ID, "invalid_totp", models.ErrInvalidToken)
		}
	}

	session, err := s.establishSession(user)
	if err != nil {
		s.logger.Error("failed to establish session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.throttle.Record(email, true)
	s.audit.Record(models.SecurityEvent{
		Type:    models.EventLoginSuccess,
		UserID:  &user.ID,
		Details: "password login",
	})
	return session, nil
}

// verifySecondFactor accepts a current TOTP code or consumes a one-shot
// backup code.
func (s *SessionService) verifySecondFactor(ctx context.Context, user *models.User, code string) bool {
	if user.TwoFactorSecret != nil && s.totp.Validate(code, *user.TwoFactorSecret) {
		return true
	}
	if err := s.users.ConsumeBackupCode(ctx, user.ID, s.totp.HashBackupCode(code)); err == nil {
		s.logger.Info("backup code consumed", slog.String("user_id", user.ID))
		return true
	}
	return false
}

func (s *SessionService) failLogin(email string, userID *string, reason string, taxonomy error) error {
	s.timing.Wait()
	s.throttle.Record(email, false)
	s.audit.Record(models.SecurityEvent{
		Type:    models.EventLoginFailure,
		UserID:  userID,
		Details: reason,
	})
	return taxonomy
}

// FederatedLogin signs in with an ID token from a federated provider,
// provisioning a default profile on first sign-in. The throttle does not
// apply; there is no password to brute-force.
func (s *SessionService) FederatedLogin(ctx context.Context, idToken string) (*models.Session, error) {
	claims, err := s.federated.Verify(idToken)
	if err != nil {
		s.audit.Record(models.SecurityEvent{
			Type:    models.EventLoginFailure,
			Details: "federated token rejected",
		})
		return nil, models.ErrInvalidCredentials
	}

	email := validation.Sanitize(strings.ToLower(claims.Email))
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		user = &models.User{
			Email:         email,
			EmailVerified: true, // the federated provider owns verification
		}
		if err := s.users.Create(ctx, user); err != nil {
			s.logger.Error("failed to provision federated profile", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	} else if err != nil {
		return nil, models.ErrInternalServer
	}

	session, err := s.establishSession(user)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	s.audit.Record(models.SecurityEvent{
		Type:    models.EventLoginSuccess,
		UserID:  &user.ID,
		Details: "federated login",
	})
	return session, nil
}

// Register creates an account. The result is always a discriminated
// value, never an error, so callers can render inline feedback.
func (s *SessionService) Register(ctx context.Context, email, password string) RegisterResult {
	var problems []string
	if res := validation.ValidateEmail(email); !res.IsValid {
		problems = append(problems, res.Errors...)
	}
	if res := validation.ValidatePassword(password); !res.IsValid {
		problems = append(problems, res.Errors...)
	}
	if len(problems) > 0 {
		return RegisterResult{Success: false, Message: strings.Join(problems, "; ")}
	}

	email = validation.Sanitize(strings.ToLower(email))

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return RegisterResult{Success: false, Message: "an unexpected error occurred"}
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return RegisterResult{Success: false, Message: "an account with this email already exists"}
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return RegisterResult{Success: false, Message: "an unexpected error occurred"}
	}

	s.audit.Record(models.SecurityEvent{
		Type:   models.EventRegister,
		UserID: &user.ID,
	})

	if s.email != nil {
		token, err := s.tokens.GenerateVerificationToken(user.ID, user.Email)
		if err == nil {
			err = s.email.SendVerificationEmail(ctx, user.Email, token)
		}
		if err != nil {
			// Delivery problems must not fail registration.
			s.logger.Warn("failed to send verification email", slog.Any("error", err))
		}
	}

	return RegisterResult{Success: true, Message: "account created, check your email to verify your address"}
}

// Logout ends one user's session: drops it from the table, stops its
// idle timer, and notifies the logout hook. Other users' sessions are
// untouched. Safe to call without a session.
func (s *SessionService) Logout(ctx context.Context, userID string) {
	s.mu.Lock()
	entry, ok := s.sessions[userID]
	if ok {
		entry.idle.Stop()
		delete(s.sessions, userID)
	}
	hook := s.onLogout
	s.mu.Unlock()

	if !ok {
		return
	}
	s.audit.Record(models.SecurityEvent{
		Type:   models.EventLogout,
		UserID: &entry.session.User.ID,
	})
	if hook != nil {
		hook(userID)
	}
}

// ChangePassword re-validates the policy and rotates the hash.
func (s *SessionService) ChangePassword(ctx context.Context, userID, newPassword string) error {
	user, err := s.CurrentUser(userID)
	if err != nil {
		return err
	}

	if err := validation.ValidatePassword(newPassword).Err(); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrStorage
	}

	s.audit.Record(models.SecurityEvent{
		Type:   models.EventPasswordChange,
		UserID: &user.ID,
	})
	return nil
}

// RequestPasswordReset emails a reset link when the account exists. It
// always returns nil so callers cannot tell which emails are registered.
func (s *SessionService) RequestPasswordReset(ctx context.Context, email string) error {
	if !validation.ValidateEmail(email).IsValid {
		return nil
	}
	email = validation.Sanitize(strings.ToLower(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil
	}

	s.audit.Record(models.SecurityEvent{
		Type:   models.EventPasswordResetRequest,
		UserID: &user.ID,
	})

	if s.email != nil {
		token, err := s.tokens.GenerateResetToken(user.ID, user.Email)
		if err == nil {
			err = s.email.SendPasswordResetEmail(ctx, user.Email, token)
		}
		if err != nil {
			s.logger.Warn("failed to send reset email", slog.Any("error", err))
		}
	}
	return nil
}

// Setup2FA provisions a new TOTP secret in the pending state and returns
// the QR provisioning image plus fresh one-shot backup codes. Enabled
// stays false until Verify2FA succeeds, so a lost setup flow cannot lock
// the account.
func (s *SessionService) Setup2FA(ctx context.Context, userID string) (qrDataURI string, backupCodes []string, err error) {
	user, err := s.CurrentUser(userID)
	if err != nil {
		return "", nil, err
	}

	secret, qr, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return "", nil, models.ErrInternalServer
	}

	codes, err := s.totp.GenerateBackupCodes(8)
	if err != nil {
		return "", nil, models.ErrInternalServer
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = s.totp.HashBackupCode(code)
	}

	if err := s.users.SetTwoFactorSecret(ctx, user.ID, secret, hashes); err != nil {
		s.logger.Error("failed to store TOTP secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", nil, models.ErrStorage
	}

	s.updateSessionUser(user.ID, func(u *models.User) {
		u.TwoFactorSecret = &secret
		u.TwoFactorEnabled = false
	})

	s.audit.Record(models.SecurityEvent{
		Type:   models.EventTwoFactorSetup,
		UserID: &user.ID,
	})
	return qr, codes, nil
}

// Verify2FA validates a code against the pending (or active) secret and
// turns enforcement on.
func (s *SessionService) Verify2FA(ctx context.Context, userID, code string) error {
	user, err := s.CurrentUser(userID)
	if err != nil {
		return err
	}

	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return models.ErrBadRequest
	}
	if !s.totp.Validate(code, *user.TwoFactorSecret) {
		return models.ErrInvalidToken
	}

	if err := s.users.EnableTwoFactor(ctx, user.ID); err != nil {
		s.logger.Error("failed to enable two-factor", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrStorage
	}

	s.updateSessionUser(user.ID, func(u *models.User) {
		u.TwoFactorEnabled = true
	})

	s.audit.Record(models.SecurityEvent{
		Type:   models.EventTwoFactorEnabled,
		UserID: &user.ID,
	})
	return nil
}

// Disable2FA clears the enabled flag, the secret, and all backup codes.
func (s *SessionService) Disable2FA(ctx context.Context, userID string) error {
	user, err := s.CurrentUser(userID)
	if err != nil {
		return err
	}

	if err := s.users.DisableTwoFactor(ctx, user.ID); err != nil {
		s.logger.Error("failed to disable two-factor", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrStorage
	}

	s.updateSessionUser(user.ID, func(u *models.User) {
		u.TwoFactorEnabled = false
		u.TwoFactorSecret = nil
		u.TwoFactorBackupCodes = nil
	})

	s.audit.Record(models.SecurityEvent{
		Type:   models.EventTwoFactorDisabled,
		UserID: &user.ID,
	})
	return nil
}

// Resume re-establishes a session from an existing access token,
// provisioning a default profile when the token is valid but no profile
// exists yet. When the token's user already has a live session it is
// kept as is; resuming never steals or replaces another user's state.
func (s *SessionService) Resume(ctx context.Context, accessToken string) (*models.Session, error) {
	claims, err := s.tokens.ValidateToken(accessToken)
	if err != nil || claims.Type != "access" {
		return nil, models.ErrNotAuthenticated
	}

	s.mu.Lock()
	if entry, ok := s.sessions[claims.UserID]; ok {
		entry.idle.Touch()
		session := entry.session
		s.mu.Unlock()
		return session, nil
	}
	s.mu.Unlock()

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, models.ErrNotFound) {
		user = &models.User{
			ID:    claims.UserID,
			Email: claims.Email,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, models.ErrInternalServer
		}
	} else if err != nil {
		return nil, models.ErrInternalServer
	}

	session := &models.Session{
		User:        user,
		AccessToken: accessToken,
		CreatedAt:   time.Now(),
	}
	s.storeSession(session)
	return session, nil
}

func (s *SessionService) establishSession(user *models.User) (*models.Session, error) {
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CreatedAt:    time.Now(),
	}
	s.storeSession(session)
	return session, nil
}

// storeSession installs a session for its user, replacing any previous
// one, and arms an inactivity timer scoped to that user alone.
func (s *SessionService) storeSession(session *models.Session) {
	userID := session.User.ID
	entry := &sessionEntry{session: session}
	entry.idle = auth.NewIdleTimer(s.idleTimeout, func() {
		s.logger.Info("session expired due to inactivity", slog.String("user_id", userID))
		s.Logout(context.Background(), userID)
	})

	s.mu.Lock()
	if prev, ok := s.sessions[userID]; ok {
		prev.idle.Stop()
	}
	s.sessions[userID] = entry
	entry.idle.Start()
	s.mu.Unlock()
}

func (s *SessionService) updateSessionUser(userID string, fn func(*models.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.sessions[userID]; ok {
		fn(entry.session.User)
	}
}
