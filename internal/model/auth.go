package model

import (
	"time"
)

const (
	TokenTypeAccess = "access"
	TokenTypeBearer = "Bearer"
)

type AuthClaims struct {
	UserID  int64  `json:"sub"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Type    string `json:"typ"`
	TokenID string `json:"jti"`
}

// Identity is what the auth gate attaches to an authenticated request.
type Identity struct {
	UserID    int64
	Name      string
	Email     string
	Role      string
	TokenHash string
}

type TokenPair struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType"`
	ExpiresIn    int64    `json:"expiresIn"`
	User         AuthUser `json:"user"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
	DeviceInfo string `json:"deviceInfo"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceInfo   string `json:"deviceInfo"`
}

type LogoutRequest struct {
	LogoutAllDevices bool `json:"logoutAllDevices"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ClientMeta describes the device a request came from.
type ClientMeta struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo string
}

type RefreshToken struct {
	ID        int64      `json:"id"`
	TokenHash string     `json:"-"`
	UserID    int64      `json:"userId"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	IPAddress string     `json:"ipAddress"`
	UserAgent string     `json:"userAgent"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Usable reports whether the token may still be exchanged.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

const (
	LogoutReasonUser           = "user_logout"
	LogoutReasonAllDevices     = "logout_all"
	LogoutReasonRotated        = "token_refreshed"
	LogoutReasonPasswordChange = "password_changed"
	LogoutReasonRevoked        = "revoked"
	LogoutReasonReuse          = "refresh_token_reuse"
	LogoutReasonInactivity     = "inactivity"
	LogoutReasonExpired        = "expired"
	LogoutReasonDeactivated    = "user_deactivated"
)

type UserSession struct {
	ID               string    `json:"id"`
	UserID           int64     `json:"userId"`
	TokenHash        string    `json:"-"`
	RefreshTokenHash string    `json:"-"`
	IPAddress        string    `json:"ipAddress"`
	UserAgent        string    `json:"userAgent"`
	DeviceInfo       string    `json:"deviceInfo"`
	IsActive         bool      `json:"isActive"`
	LastActivity     time.Time `json:"lastActivity"`
	ExpiresAt        time.Time `json:"expiresAt"`
	LogoutReason     string    `json:"logoutReason,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	Current          bool      `json:"current"`
}

func (s UserSession) Valid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// RevokedSession is what a deactivation returns so callers can mirror the
// revocation into a cache until the token would have expired anyway.
type RevokedSession struct {
	TokenHash string
	ExpiresAt time.Time
}
