// Package service implements the auth orchestrator: the state machine tying
// together credential verification, the ephemeral token store, and the session
// store. Login branches into two-factor verification (online OTP or offline
// fallback PIN); at most one session per user is active at any time.
package service

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"stocktrack/backend/internal/audit"
	"stocktrack/backend/internal/notify"
	"stocktrack/backend/internal/security"
	sessiondomain "stocktrack/backend/internal/session/domain"
	"stocktrack/backend/internal/telemetry"
	tokendomain "stocktrack/backend/internal/token/domain"
	userdomain "stocktrack/backend/internal/user/domain"
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByPhone(ctx context.Context, phone string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Invalidate(ctx context.Context, id string) (bool, error)
	InvalidateAllForUserExcept(ctx context.Context, userID, keepID string) (int64, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
}

// TokenRepo is the minimal ephemeral-token repository needed by the auth service.
type TokenRepo interface {
	Create(ctx context.Context, t *tokendomain.EphemeralToken) error
	ConsumeByTokenHash(ctx context.Context, tokenHash string, purpose tokendomain.Purpose) (*tokendomain.EphemeralToken, error)
	ConsumeByUserAndCodeHash(ctx context.Context, userID, codeHash string, purpose tokendomain.Purpose) (*tokendomain.EphemeralToken, error)
	MarkAllUsedForUser(ctx context.Context, userID string, purpose tokendomain.Purpose) (int64, error)
}

// DeviceContext is the request metadata captured at session or token issuance.
// All fields are optional; the HTTP layer fills what it knows.
type DeviceContext struct {
	DeviceInfo string
	IPAddress  string
	Geo        sessiondomain.Geo
}

// SessionResult is the outcome of any path that issues a session.
type SessionResult struct {
	Token   string
	User    userdomain.PublicUser
	Session sessiondomain.PublicSession
}

// LoginResult is the outcome of Login: either an issued session
// (TwoFactorRequired false) or a pending challenge. OfflinePin is returned
// alongside the temp token so the client can store it for no-connectivity
// verification; no session exists until one of the verification paths
// succeeds.
type LoginResult struct {
	TwoFactorRequired bool
	TempToken         string
	OfflinePin        string
	Session           *SessionResult
}

// AuthService orchestrates login, two-factor verification, session lifecycle,
// password reset, and username recovery.
type AuthService struct {
	users    UserRepo
	sessions SessionRepo
	tokens   TokenRepo

	hasher        *security.Hasher
	tokenProvider *security.TokenProvider
	notifier      notify.Notifier
	auditLog      audit.AuditLogger
	emitter       telemetry.EventEmitter

	sessionTTL    time.Duration
	otpTTL        time.Duration
	offlinePinTTL time.Duration
	resetTTL      time.Duration

	allowedEmailDomain string // empty means any domain
}

// Config carries the tunables for NewAuthService.
type Config struct {
	SessionTTL         time.Duration
	OTPTTL             time.Duration
	OfflinePinTTL      time.Duration
	ResetTokenTTL      time.Duration
	AllowedEmailDomain string
}

// NewAuthService returns an AuthService with the given dependencies.
// notifier, auditLog, and emitter may be nil; those concerns then degrade to
// no-ops.
func NewAuthService(
	users UserRepo,
	sessions SessionRepo,
	tokens TokenRepo,
	hasher *security.Hasher,
	tokenProvider *security.TokenProvider,
	notifier notify.Notifier,
	auditLog audit.AuditLogger,
	emitter telemetry.EventEmitter,
	cfg Config,
) *AuthService {
	return &AuthService{
		users:              users,
		sessions:           sessions,
		tokens:             tokens,
		hasher:             hasher,
		tokenProvider:      tokenProvider,
		notifier:           notifier,
		auditLog:           auditLog,
		emitter:            emitter,
		sessionTTL:         cfg.SessionTTL,
		otpTTL:             cfg.OTPTTL,
		offlinePinTTL:      cfg.OfflinePinTTL,
		resetTTL:           cfg.ResetTokenTTL,
		allowedEmailDomain: strings.ToLower(strings.TrimSpace(cfg.AllowedEmailDomain)),
	}
}

// Register creates a user with the given email, password, and phone. Email is
// normalized and, when an allowed domain is configured, restricted to it.
func (s *AuthService) Register(ctx context.Context, email, password, phone string) (*userdomain.PublicUser, error) {
	email = userdomain.NormalizeEmail(email)
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	phone = strings.TrimSpace(phone)
	if phone != "" {
		if err := validatePhone(phone); err != nil {
			return nil, err
		}
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		Phone:        phone,
		Role:         userdomain.RoleEmployee,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, validationError("%s", err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.record(ctx, user.ID, "", "user_registered", "user", nil)
	pub := user.Public()
	return &pub, nil
}

// Login verifies credentials and either issues a session (two-factor
// disabled) or a two-factor challenge. If the user already holds an active
// session the attempt fails with ActiveSessionError unless force is set, in
// which case the prior session is superseded. The failure for unknown email
// and for wrong password is identical.
func (s *AuthService) Login(ctx context.Context, email, password string, force bool, device DeviceContext) (*LoginResult, error) {
	email = userdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Hash anyway so the miss costs the same as a wrong password.
		_ = s.hasher.CompareDummy([]byte(password))
		s.record(ctx, "", "", "login_failed", "session", map[string]string{"reason": "credentials"})
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.record(ctx, user.ID, "", "login_failed", "session", map[string]string{"reason": "credentials"})
		return nil, ErrInvalidCredentials
	}

	if !force {
		active, err := s.sessions.ListActiveForUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if len(active) > 0 {
			s.record(ctx, user.ID, active[0].ID, "login_conflict", "session", nil)
			return nil, &ActiveSessionError{Existing: active[0].Public()}
		}
	}

	if user.TwoFactorEnabled {
		tempToken, offlinePin, err := s.issueTwoFactorChallenge(ctx, user, device)
		if err != nil {
			return nil, err
		}
		s.record(ctx, user.ID, "", "two_factor_challenge", "token", nil)
		return &LoginResult{TwoFactorRequired: true, TempToken: tempToken, OfflinePin: offlinePin}, nil
	}

	result, err := s.createSession(ctx, user, sessiondomain.TypePassword, device)
	if err != nil {
		return nil, err
	}
	s.record(ctx, user.ID, result.Session.ID, "login_success", "session", map[string]string{"type": string(sessiondomain.TypePassword)})
	return &LoginResult{Session: result}, nil
}

// VerifyTwoFactor consumes the two-factor challenge and issues a session. A
// challenge is single-use: a wrong code burns it and the caller must log in
// again. Wrong, used, and expired tokens all fail identically.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, tempToken, otp string, device DeviceContext) (*SessionResult, error) {
	if tempToken == "" || otp == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	tok, err := s.tokens.ConsumeByTokenHash(ctx, security.HashToken(tempToken), tokendomain.PurposeTwoFactor)
	if err != nil {
		return nil, err
	}
	if tok == nil || !security.OTPEqual(otp, tok.CodeHash) {
		s.record(ctx, "", "", "two_factor_failed", "token", nil)
		return nil, ErrInvalidOrExpiredToken
	}
	user, err := s.users.GetByID(ctx, tok.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidOrExpiredToken
	}
	result, err := s.createSession(ctx, user, sessiondomain.TypeOTP, device)
	if err != nil {
		return nil, err
	}
	s.record(ctx, user.ID, result.Session.ID, "login_success", "session", map[string]string{"type": string(sessiondomain.TypeOTP)})
	return result, nil
}

// VerifyOffline consumes the offline fallback PIN by (user, code) and issues
// a session tagged as offline. No network-issued carrier token is required.
func (s *AuthService) VerifyOffline(ctx context.Context, email, pin string, device DeviceContext) (*SessionResult, error) {
	email = userdomain.NormalizeEmail(email)
	if email == "" || pin == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidOrExpiredToken
	}
	tok, err := s.tokens.ConsumeByUserAndCodeHash(ctx, user.ID, security.HashOTP(pin), tokendomain.PurposeOfflineSetup)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		s.record(ctx, user.ID, "", "offline_verify_failed", "token", nil)
		return nil, ErrInvalidOrExpiredToken
	}
	result, err := s.createSession(ctx, user, sessiondomain.TypeOffline, device)
	if err != nil {
		return nil, err
	}
	s.record(ctx, user.ID, result.Session.ID, "login_success", "session", map[string]string{"type": string(sessiondomain.TypeOffline)})
	return result, nil
}

// Logout invalidates the session. Idempotent: logging out an already-inactive
// or unknown session is not an error.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	changed, err := s.sessions.Invalidate(ctx, sessionID)
	if err != nil {
		return err
	}
	if changed {
		s.record(ctx, userID, sessionID, "logout", "session", nil)
	}
	return nil
}

// ListSessions returns the user's active sessions, most recent activity first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]sessiondomain.PublicSession, error) {
	sessions, err := s.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]sessiondomain.PublicSession, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Public())
	}
	return out, nil
}

// TerminateSession invalidates one of the user's own sessions by id. A session
// that does not exist or belongs to someone else is ErrSessionNotFound either
// way.
func (s *AuthService) TerminateSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.UserID != userID {
		return ErrSessionNotFound
	}
	if _, err := s.sessions.Invalidate(ctx, sessionID); err != nil {
		return err
	}
	s.record(ctx, userID, sessionID, "session_terminated", "session", nil)
	return nil
}

// TerminateOtherSessions invalidates all of the user's sessions except the
// current one and returns how many were terminated.
func (s *AuthService) TerminateOtherSessions(ctx context.Context, userID, currentSessionID string) (int64, error) {
	n, err := s.sessions.InvalidateAllForUserExcept(ctx, userID, currentSessionID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.record(ctx, userID, currentSessionID, "sessions_terminated", "session", map[string]string{"count": strconv.FormatInt(n, 10)})
	}
	return n, nil
}

// Refresh invalidates the current session and mints a new one carrying
// forward the previous session's type, device, and geo metadata. The new
// session gets a fresh absolute expiry.
func (s *AuthService) Refresh(ctx context.Context, userID, currentSessionID string) (*SessionResult, error) {
	sess, err := s.sessions.GetByID(ctx, currentSessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Live(time.Now().UTC()) || sess.UserID != userID {
		return nil, ErrInvalidOrExpiredToken
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidOrExpiredToken
	}
	if _, err := s.sessions.Invalidate(ctx, currentSessionID); err != nil {
		return nil, err
	}
	device := DeviceContext{DeviceInfo: sess.DeviceInfo, IPAddress: sess.IPAddress, Geo: sess.Geo}
	result, err := s.createSession(ctx, user, sess.Type, device)
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, result.Session.ID, "session_refreshed", "session", map[string]string{"previous": currentSessionID})
	return result, nil
}

// RequestPasswordReset issues a reset token and dispatches it out-of-band.
// The response is identical whether or not the email matched an account.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, device DeviceContext) error {
	email = userdomain.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	// Supersede any outstanding reset token before issuing a fresh one.
	if _, err := s.tokens.MarkAllUsedForUser(ctx, user.ID, tokendomain.PurposePasswordReset); err != nil {
		return err
	}
	resetToken, _, err := s.issueToken(ctx, user.ID, tokendomain.PurposePasswordReset, s.resetTTL, false, device)
	if err != nil {
		return err
	}
	s.dispatchEmail(ctx, user.Email, "Password reset",
		"Use this token to reset your password: "+resetToken)
	s.record(ctx, user.ID, "", "password_reset_requested", "token", nil)
	return nil
}

// ConfirmPasswordReset consumes the reset token, validates the new password,
// and persists its hash. Consuming the token and failing validation burns the
// token; password format is checked first so a bad password does not.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return ErrInvalidOrExpiredToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	tok, err := s.tokens.ConsumeByTokenHash(ctx, security.HashToken(resetToken), tokendomain.PurposePasswordReset)
	if err != nil {
		return err
	}
	if tok == nil {
		return ErrInvalidOrExpiredToken
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, tok.UserID, hashed); err != nil {
		return err
	}
	s.record(ctx, tok.UserID, "", "password_reset_confirmed", "user", nil)
	return nil
}

// RecoverUsername sends the account email to the phone on file. The response
// is identical whether or not the phone matched an account.
func (s *AuthService) RecoverUsername(ctx context.Context, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	s.dispatchSMS(ctx, user.Phone, "Your account email is "+user.Email)
	s.record(ctx, user.ID, "", "username_recovered", "user", nil)
	return nil
}

// RegenerateOfflinePin supersedes the user's outstanding offline PIN and
// issues a fresh one. Authenticated operation; the new PIN is returned and
// also dispatched via SMS when a phone is on file.
func (s *AuthService) RegenerateOfflinePin(ctx context.Context, userID string, device DeviceContext) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrSessionNotFound
	}
	if _, err := s.tokens.MarkAllUsedForUser(ctx, user.ID, tokendomain.PurposeOfflineSetup); err != nil {
		return "", err
	}
	_, pin, err := s.issueToken(ctx, user.ID, tokendomain.PurposeOfflineSetup, s.offlinePinTTL, true, device)
	if err != nil {
		return "", err
	}
	if user.Phone != "" {
		s.dispatchSMS(ctx, user.Phone, "Your offline sign-in PIN is "+pin)
	}
	s.record(ctx, user.ID, "", "offline_pin_regenerated", "token", nil)
	return pin, nil
}

// issueTwoFactorChallenge supersedes outstanding challenge tokens and issues
// the OTP carrier token plus the offline fallback PIN.
func (s *AuthService) issueTwoFactorChallenge(ctx context.Context, user *userdomain.User, device DeviceContext) (tempToken, offlinePin string, err error) {
	if _, err := s.tokens.MarkAllUsedForUser(ctx, user.ID, tokendomain.PurposeTwoFactor); err != nil {
		return "", "", err
	}
	if _, err := s.tokens.MarkAllUsedForUser(ctx, user.ID, tokendomain.PurposeOfflineSetup); err != nil {
		return "", "", err
	}
	tempToken, otp, err := s.issueToken(ctx, user.ID, tokendomain.PurposeTwoFactor, s.otpTTL, true, device)
	if err != nil {
		return "", "", err
	}
	_, offlinePin, err = s.issueToken(ctx, user.ID, tokendomain.PurposeOfflineSetup, s.offlinePinTTL, true, device)
	if err != nil {
		return "", "", err
	}
	if user.Phone != "" {
		s.dispatchSMS(ctx, user.Phone, "Your verification code is "+otp)
	}
	s.dispatchEmail(ctx, user.Email, "Verification code", "Your verification code is "+otp)
	return tempToken, offlinePin, nil
}

// issueToken generates and persists one ephemeral token. Returns the raw
// opaque token and, when withCode is set, the raw 6-digit code.
func (s *AuthService) issueToken(ctx context.Context, userID string, purpose tokendomain.Purpose, ttl time.Duration, withCode bool, device DeviceContext) (string, string, error) {
	opaque, err := security.GenerateOpaqueToken()
	if err != nil {
		return "", "", err
	}
	var code, codeHash string
	if withCode {
		code, err = security.GenerateOTP()
		if err != nil {
			return "", "", err
		}
		codeHash = security.HashOTP(code)
	}
	now := time.Now().UTC()
	tok := &tokendomain.EphemeralToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: security.HashToken(opaque),
		CodeHash:  codeHash,
		Purpose:   purpose,
		Geo:       tokendomain.Geo{City: device.Geo.City, Country: device.Geo.Country},
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, tok); err != nil {
		return "", "", err
	}
	return opaque, code, nil
}

// createSession issues the signed session token and persists the session. The
// repository invalidates any prior active sessions in the same transaction,
// so the single-session invariant holds even under concurrent logins.
func (s *AuthService) createSession(ctx context.Context, user *userdomain.User, sessType sessiondomain.Type, device DeviceContext) (*SessionResult, error) {
	sessionID := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(s.sessionTTL)
	token, err := s.tokenProvider.IssueSession(sessionID, user.ID, expiresAt)
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		ID:             sessionID,
		UserID:         user.ID,
		TokenHash:      security.HashToken(token),
		TokenID:        security.TokenFingerprint(token),
		Type:           sessType,
		DeviceInfo:     device.DeviceInfo,
		IPAddress:      device.IPAddress,
		Geo:            device.Geo,
		Active:         true,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &SessionResult{Token: token, User: user.Public(), Session: sess.Public()}, nil
}

// record writes the audit row and emits the telemetry event for one auth
// transition. Both are best-effort and never fail the flow.
func (s *AuthService) record(ctx context.Context, userID, sessionID, action, resource string, meta map[string]string) {
	var metaJSON []byte
	if len(meta) > 0 {
		metaJSON, _ = json.Marshal(meta)
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, userID, action, resource, string(metaJSON))
	}
	if s.emitter != nil {
		ev := telemetry.NewEvent(action, "auth")
		ev.UserID = userID
		ev.SessionID = sessionID
		ev.Metadata = metaJSON
		telemetry.EmitAsync(s.emitter, ev)
	}
}

// dispatchEmail is fire-and-forget: delivery failure is logged and never
// aborts the issuing flow.
func (s *AuthService) dispatchEmail(ctx context.Context, to, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendEmail(ctx, to, subject, body); err != nil {
		log.Printf("auth: email dispatch failed: %v", err)
	}
}

func (s *AuthService) dispatchSMS(ctx context.Context, to, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendSMS(ctx, to, body); err != nil {
		log.Printf("auth: sms dispatch failed: %v", err)
	}
}

func (s *AuthService) validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	if !emailPattern.MatchString(email) {
		return validationError("invalid email format")
	}
	if s.allowedEmailDomain != "" && !strings.HasSuffix(email, "@"+s.allowedEmailDomain) {
		return validationError("email domain not allowed")
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

func validatePassword(password string) error {
	if len(password) < 8 {
		return validationError("password must be at least 8 characters")
	}
	var hasLetter, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasLetter || !hasNumber {
		return validationError("password must contain at least one letter and one number")
	}
	return nil
}

func validatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return validationError("invalid phone format")
	}
	return nil
}
