package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const (
	minPasswordLength = 8
	resetTokenBytes   = 32
	lockedMessage     = "account temporarily locked due to too many failed login attempts"
)

type UserStore interface {
	FindByID(ctx context.Context, id int64) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	SetPasswordResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	Count(ctx context.Context) (int, error)
}

type RefreshTokenRepository interface {
	RefreshTokenStore
	FindByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
}

type AuthLogWriter interface {
	Append(ctx context.Context, entry model.AuthLog) error
}

type AuthServiceConfig struct {
	BcryptCost int
	ResetTTL   time.Duration
}

type AuthService struct {
	users     UserStore
	tokens    RefreshTokenRepository
	issuer    *TokenIssuer
	sessions  *SessionRegistry
	lockout   *LockoutTracker
	logs      AuthLogWriter
	cost      int
	resetTTL  time.Duration
	dummyHash []byte
	now       func() time.Time
}

func NewAuthService(users UserStore, tokens RefreshTokenRepository, issuer *TokenIssuer, sessions *SessionRegistry, lockout *LockoutTracker, logs AuthLogWriter, cfg AuthServiceConfig) (*AuthService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}

	// Compared against when the email is unknown so both paths cost one bcrypt.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &AuthService{
		users:     users,
		tokens:    tokens,
		issuer:    issuer,
		sessions:  sessions,
		lockout:   lockout,
		logs:      logs,
		cost:      cfg.BcryptCost,
		resetTTL:  cfg.ResetTTL,
		dummyHash: dummy,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *AuthService) Login(ctx context.Context, req model.LoginRequest, meta model.ClientMeta) (model.TokenPair, error) {
	email := model.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return model.TokenPair{}, apierror.Validation("email and password are required", "")
	}
	if req.DeviceInfo != "" {
		meta.DeviceInfo = req.DeviceInfo
	}

	status, err := s.lockout.CheckLocked(ctx, email)
	if err != nil {
		return model.TokenPair{}, err
	}
	if status.Locked {
		s.audit(ctx, model.AuthEventFailedLogin, nil, email, meta, false, map[string]any{"reason": "locked"})
		return model.TokenPair{}, apierror.Locked(lockedMessage, status.RetryAfter)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		s.audit(ctx, model.AuthEventFailedLogin, nil, email, meta, false, map[string]any{"reason": "unknown_email"})
		return model.TokenPair{}, invalidCredentials()
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		result, recErr := s.lockout.RecordFailure(ctx, email, meta, "invalid_password")
		if recErr != nil {
			return model.TokenPair{}, recErr
		}

		s.audit(ctx, model.AuthEventFailedLogin, &user.ID, email, meta, false,
			map[string]any{"reason": "invalid_password", "attempts": result.Attempts})
		if result.Locked {
			if result.JustLocked {
				s.audit(ctx, model.AuthEventAccountLocked, &user.ID, email, meta, false,
					map[string]any{"retryAfterSeconds": apierror.RetrySeconds(result.RetryAfter)})
			}
			return model.TokenPair{}, apierror.Locked(lockedMessage, result.RetryAfter)
		}
		return model.TokenPair{}, invalidCredentials()
	}

	if !user.IsActive {
		s.audit(ctx, model.AuthEventFailedLogin, &user.ID, email, meta, false, map[string]any{"reason": "inactive"})
		return model.TokenPair{}, apierror.Unauthorized("account is inactive")
	}

	status, err = s.lockout.ClearAfterLogin(ctx, email)
	if err != nil {
		return model.TokenPair{}, err
	}
	if status.Locked {
		s.audit(ctx, model.AuthEventFailedLogin, &user.ID, email, meta, false, map[string]any{"reason": "locked"})
		return model.TokenPair{}, apierror.Locked(lockedMessage, status.RetryAfter)
	}

	pair, err := s.startSession(ctx, user, meta, req.RememberMe)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.audit(ctx, model.AuthEventLogin, &user.ID, email, meta, true, map[string]any{"rememberMe": req.RememberMe})
	return pair, nil
}

// Refresh rotates a refresh token. A token that was already revoked is
// taken as stolen and every credential of its owner is revoked.
func (s *AuthService) Refresh(ctx context.Context, req model.RefreshRequest, meta model.ClientMeta) (model.TokenPair, error) {
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		return model.TokenPair{}, apierror.Validation("refreshToken is required", "")
	}
	if req.DeviceInfo != "" {
		meta.DeviceInfo = req.DeviceInfo
	}

	hash := HashToken(raw)
	stored, err := s.tokens.FindByHash(ctx, hash)
	if errors.Is(err, model.ErrTokenNotFound) {
		return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	if stored.Revoked {
		s.revokeEverything(ctx, stored.UserID, model.LogoutReasonReuse)
		s.audit(ctx, model.AuthEventRefreshReuse, &stored.UserID, "", meta, false, nil)
		return model.TokenPair{}, apierror.Unauthorized("refresh token has been revoked")
	}
	if !stored.Usable(s.now()) {
		return model.TokenPair{}, apierror.Unauthorized("refresh token expired")
	}

	won, err := s.tokens.Revoke(ctx, hash)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !won {
		return model.TokenPair{}, apierror.Unauthorized("refresh token already used")
	}

	if err := s.sessions.RevokeByRefresh(ctx, hash, model.LogoutReasonRotated); err != nil {
		return model.TokenPair{}, err
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if apierror.HasCode(err, "NOT_FOUND") {
			return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
		}
		return model.TokenPair{}, err
	}
	if !user.IsActive {
		return model.TokenPair{}, apierror.Unauthorized("account is inactive")
	}

	pair, err := s.startSession(ctx, user, meta, false)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.audit(ctx, model.AuthEventTokenRefreshed, &user.ID, user.Email, meta, true, nil)
	return pair, nil
}

func (s *AuthService) Logout(ctx context.Context, identity model.Identity, allDevices bool, meta model.ClientMeta) error {
	if allDevices {
		if _, err := s.tokens.RevokeAllForUser(ctx, identity.UserID); err != nil {
			return err
		}
		count, err := s.sessions.RevokeAll(ctx, identity.UserID, model.LogoutReasonAllDevices)
		if err != nil {
			return err
		}
		s.audit(ctx, model.AuthEventLogoutAll, &identity.UserID, identity.Email, meta, true, map[string]any{"sessions": count})
		return nil
	}

	refreshHash, err := s.sessions.Revoke(ctx, identity.TokenHash, model.LogoutReasonUser)
	if err != nil {
		return err
	}
	if refreshHash != "" {
		if _, err := s.tokens.Revoke(ctx, refreshHash); err != nil {
			return err
		}
	}

	s.audit(ctx, model.AuthEventLogout, &identity.UserID, identity.Email, meta, true, nil)
	return nil
}

// Authenticate turns a bearer token into the identity of an active user
// with a live session.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (model.Identity, error) {
	claims, err := s.issuer.Parse(rawToken)
	if err != nil {
		return model.Identity{}, err
	}

	hash := HashToken(rawToken)
	revoked, err := s.sessions.IsRevoked(ctx, hash)
	if err != nil {
		slog.Warn("session check failed, denying request", "error", err)
	}
	if revoked {
		return model.Identity{}, apierror.Unauthorized("session is no longer valid")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if apierror.HasCode(err, "NOT_FOUND") {
			return model.Identity{}, apierror.Unauthorized("user no longer exists")
		}
		return model.Identity{}, err
	}
	if !user.IsActive {
		return model.Identity{}, apierror.Unauthorized("account is inactive")
	}

	s.sessions.Touch(ctx, hash)

	return model.Identity{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		TokenHash: hash,
	}, nil
}

func (s *AuthService) Me(ctx context.Context, identity model.Identity) (model.User, error) {
	return s.users.FindByID(ctx, identity.UserID)
}

// ChangePassword ends every session of the user, the current one included.
func (s *AuthService) ChangePassword(ctx context.Context, identity model.Identity, req model.ChangePasswordRequest, meta model.ClientMeta) error {
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}
	if req.CurrentPassword == req.NewPassword {
		return apierror.Validation("new password must differ from the current one", "newPassword")
	}

	user, err := s.users.FindByID(ctx, identity.UserID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		s.audit(ctx, model.AuthEventPasswordChanged, &user.ID, user.Email, meta, false, map[string]any{"reason": "invalid_current_password"})
		return apierror.BadRequest("current password is incorrect", "currentPassword")
	}

	if err := s.setPassword(ctx, user.ID, req.NewPassword); err != nil {
		return err
	}
	s.revokeEverything(ctx, user.ID, model.LogoutReasonPasswordChange)

	s.audit(ctx, model.AuthEventPasswordChanged, &user.ID, user.Email, meta, true, nil)
	return nil
}

// ForgotPassword returns the raw reset token, or "" when the email does
// not belong to an active account. Callers must not reveal which.
func (s *AuthService) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest, meta model.ClientMeta) (string, error) {
	email := model.NormalizeEmail(req.Email)
	if !model.ValidEmail(email) {
		return "", apierror.Validation("a valid email is required", "email")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.audit(ctx, model.AuthEventPasswordResetRequested, nil, email, meta, false, map[string]any{"reason": "unknown_email"})
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		s.audit(ctx, model.AuthEventPasswordResetRequested, &user.ID, email, meta, false, map[string]any{"reason": "inactive"})
		return "", nil
	}

	token, err := randomToken(resetTokenBytes)
	if err != nil {
		return "", err
	}
	if err := s.users.SetPasswordResetToken(ctx, user.ID, HashToken(token), s.now().Add(s.resetTTL)); err != nil {
		return "", err
	}

	s.audit(ctx, model.AuthEventPasswordResetRequested, &user.ID, email, meta, true, nil)
	return token, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest, meta model.ClientMeta) error {
	if strings.TrimSpace(req.Token) == "" {
		return apierror.Validation("token is required", "token")
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := s.users.FindByResetTokenHash(ctx, HashToken(strings.TrimSpace(req.Token)))
	if errors.Is(err, model.ErrTokenNotFound) {
		return apierror.BadRequest("invalid or expired reset token", "")
	}
	if err != nil {
		return err
	}
	if user.PasswordResetExpiresAt == nil || !s.now().Before(*user.PasswordResetExpiresAt) {
		return apierror.BadRequest("invalid or expired reset token", "")
	}

	if err := s.setPassword(ctx, user.ID, req.NewPassword); err != nil {
		return err
	}
	s.revokeEverything(ctx, user.ID, model.LogoutReasonPasswordChange)
	if err := s.lockout.Reset(ctx, user.Email); err != nil {
		slog.Warn("reset lockout after password reset failed", "error", err)
	}

	s.audit(ctx, model.AuthEventPasswordReset, &user.ID, user.Email, meta, true, nil)
	return nil
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, actor model.Identity, meta model.ClientMeta) (model.User, error) {
	user, err := s.createUser(ctx, req)
	if err != nil {
		return model.User{}, err
	}

	s.audit(ctx, model.AuthEventUserRegistered, &user.ID, user.Email, meta, true,
		map[string]any{"createdBy": actor.UserID, "role": user.Role})
	return user, nil
}

// EnsureBootstrapAdmin creates the first admin account when the users
// table is empty. It is a no-op otherwise.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, email string, password string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	user, err := s.createUser(ctx, model.RegisterRequest{
		Name:     "Administrator",
		Email:    email,
		Password: password,
		Role:     model.RoleAdmin,
	})
	if err != nil {
		return err
	}

	slog.Info("bootstrap admin created", "userId", user.ID, "email", user.Email)
	return nil
}

func (s *AuthService) ListSessions(ctx context.Context, identity model.Identity) ([]model.UserSession, error) {
	return s.sessions.ListActive(ctx, identity.UserID, identity.TokenHash)
}

func (s *AuthService) RevokeSession(ctx context.Context, identity model.Identity, sessionID string, meta model.ClientMeta) error {
	if err := s.sessions.RevokeByID(ctx, identity.UserID, sessionID); err != nil {
		return err
	}
	s.audit(ctx, model.AuthEventSessionRevoked, &identity.UserID, identity.Email, meta, true, map[string]any{"sessionId": sessionID})
	return nil
}

// RevokeUser ends every session and refresh token of a user.
func (s *AuthService) RevokeUser(ctx context.Context, userID int64, reason string) {
	s.revokeEverything(ctx, userID, reason)
}

func (s *AuthService) createUser(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	name := strings.TrimSpace(req.Name)
	email := model.NormalizeEmail(req.Email)
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = model.RoleClient
	}

	switch {
	case name == "":
		return model.User{}, apierror.Validation("name is required", "name")
	case !model.ValidEmail(email):
		return model.User{}, apierror.Validation("a valid email is required", "email")
	case !model.ValidRole(role):
		return model.User{}, apierror.Validation("invalid role", role)
	}
	if err := validatePassword(req.Password); err != nil {
		return model.User{}, err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	if exists {
		return model.User{}, apierror.Conflict("email already registered", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return model.User{}, err
	}

	return s.users.Create(ctx, model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	})
}

func (s *AuthService) startSession(ctx context.Context, user model.User, meta model.ClientMeta, rememberMe bool) (model.TokenPair, error) {
	issued, err := s.issuer.Issue(ctx, user, meta, rememberMe)
	if err != nil {
		return model.TokenPair{}, err
	}
	if _, err := s.sessions.Register(ctx, user.ID, issued, meta); err != nil {
		return model.TokenPair{}, err
	}
	return issued.Pair, nil
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, string(hash))
}

func (s *AuthService) revokeEverything(ctx context.Context, userID int64, reason string) {
	if _, err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		slog.Error("revoke refresh tokens failed", "userId", userID, "error", err)
	}
	if _, err := s.sessions.RevokeAll(ctx, userID, reason); err != nil {
		slog.Error("revoke sessions failed", "userId", userID, "error", err)
	}
}

// audit appends to the auth log. Losing an entry never fails the request.
func (s *AuthService) audit(ctx context.Context, event string, userID *int64, email string, meta model.ClientMeta, success bool, metadata map[string]any) {
	if s.logs == nil {
		return
	}
	err := s.logs.Append(ctx, model.AuthLog{
		EventType: event,
		UserID:    userID,
		Email:     email,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Success:   success,
		Metadata:  metadata,
		CreatedAt: s.now(),
	})
	if err != nil {
		slog.Warn("append auth log failed", "event", event, "error", err)
	}
}

func invalidCredentials() error {
	return apierror.Unauthorized("invalid email or password")
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apierror.Validation("password must be at least 8 characters", "password")
	}
	return nil
}
