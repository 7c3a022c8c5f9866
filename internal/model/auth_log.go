package model

import "time"

const (
	AuthEventLogin                  = "login"
	AuthEventLogout                 = "logout"
	AuthEventLogoutAll              = "logout_all"
	AuthEventFailedLogin            = "failed_login"
	AuthEventAccountLocked          = "account_locked"
	AuthEventTokenRefreshed         = "token_refreshed"
	AuthEventRefreshReuse           = "refresh_token_reuse"
	AuthEventPasswordChanged        = "password_changed"
	AuthEventPasswordResetRequested = "password_reset_requested"
	AuthEventPasswordReset          = "password_reset"
	AuthEventUserRegistered         = "user_registered"
	AuthEventUserUnlocked           = "user_unlocked"
	AuthEventSessionRevoked         = "session_revoked"
)

type AuthLog struct {
	ID        int64          `json:"id"`
	EventType string         `json:"eventType"`
	UserID    *int64         `json:"userId,omitempty"`
	Email     string         `json:"email"`
	IPAddress string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent"`
	Success   bool           `json:"success"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type AuthLogFilter struct {
	EventType string
	UserID    *int64
	Email     string
	Success   *bool
	From      *time.Time
	To        *time.Time
}

// AuthLogQuery is the raw query-string form of AuthLogFilter.
type AuthLogQuery struct {
	EventType string
	UserID    string
	Email     string
	Success   string
	From      string
	To        string
	Page      int
	Limit     int
}
