package model

import (
	"strings"
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleLab    = "lab"
	RoleClient = "client"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleLab, RoleClient:
		return true
	}
	return false
}

type User struct {
	ID                     int64      `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	PasswordHash           string     `json:"-"`
	Role                   string     `json:"role"`
	IsActive               bool       `json:"isActive"`
	FailedAttempts         int        `json:"failedAttempts"`
	LastFailedAt           *time.Time `json:"lastFailedAt,omitempty"`
	LockedUntil            *time.Time `json:"lockedUntil,omitempty"`
	PasswordResetTokenHash string     `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	LastPasswordChange     *time.Time `json:"lastPasswordChange,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

type AuthUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) Public() AuthUser {
	return AuthUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserPatch is the admin update payload; nil fields stay untouched.
type UserPatch struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

func (p UserPatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.Role != nil {
		u.Role = strings.ToLower(strings.TrimSpace(*p.Role))
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	return u
}

type UserFilter struct {
	Role   string
	Search string
}

// NormalizeEmail is the canonical key for users and lockout counters.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
