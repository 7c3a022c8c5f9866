package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const touchInterval = time.Minute

type SessionStore interface {
	Create(ctx context.Context, s model.UserSession) error
	FindByTokenHash(ctx context.Context, tokenHash string) (model.UserSession, error)
	Touch(ctx context.Context, tokenHash string, now time.Time, staleBefore time.Time) error
	DeactivateByTokenHash(ctx context.Context, tokenHash string, reason string) ([]model.RevokedSession, error)
	DeactivateByRefreshHash(ctx context.Context, refreshHash string, reason string) ([]model.RevokedSession, error)
	DeactivateByUser(ctx context.Context, userID int64, reason string) ([]model.RevokedSession, error)
	DeactivateByID(ctx context.Context, userID int64, sessionID string, reason string) ([]model.RevokedSession, error)
	ListActive(ctx context.Context, userID int64, now time.Time) ([]model.UserSession, error)
	SweepInactive(ctx context.Context, now time.Time, idleBefore time.Time) (int64, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

type RevocationCache interface {
	MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// SessionRegistry tracks one row per issued access token. Lookups fail
// closed: any store error means the token is treated as revoked.
type SessionRegistry struct {
	store     SessionStore
	cache     RevocationCache
	accessTTL time.Duration
	now       func() time.Time
}

// NewSessionRegistry accepts a nil cache when Redis is not configured.
func NewSessionRegistry(store SessionStore, cache RevocationCache, accessTTL time.Duration) *SessionRegistry {
	return &SessionRegistry{
		store:     store,
		cache:     cache,
		accessTTL: accessTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *SessionRegistry) Register(ctx context.Context, userID int64, issued IssuedTokens, meta model.ClientMeta) (model.UserSession, error) {
	now := r.now()
	session := model.UserSession{
		ID:               uuid.NewString(),
		UserID:           userID,
		TokenHash:        issued.AccessHash,
		RefreshTokenHash: issued.RefreshHash,
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		DeviceInfo:       meta.DeviceInfo,
		IsActive:         true,
		LastActivity:     now,
		ExpiresAt:        issued.RefreshExpiresAt,
		CreatedAt:        now,
	}

	if err := r.store.Create(ctx, session); err != nil {
		return model.UserSession{}, err
	}
	return session, nil
}

// IsRevoked reports whether the access token with this hash may no longer
// be used. Any lookup error comes back as revoked together with the cause.
func (r *SessionRegistry) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	if r.cache != nil {
		revoked, err := r.cache.IsRevoked(ctx, tokenHash)
		if err != nil {
			return true, err
		}
		if revoked {
			return true, nil
		}
	}

	session, err := r.store.FindByTokenHash(ctx, tokenHash)
	if errors.Is(err, model.ErrSessionNotFound) {
		return true, nil
	}
	if err != nil {
		return true, err
	}

	return !session.Valid(r.now()), nil
}

// Touch refreshes last_activity at most once per touchInterval. Failures
// are logged and otherwise ignored.
func (r *SessionRegistry) Touch(ctx context.Context, tokenHash string) {
	now := r.now()
	if err := r.store.Touch(ctx, tokenHash, now, now.Add(-touchInterval)); err != nil {
		slog.Warn("touch session failed", "error", err)
	}
}

// Revoke closes one session and returns the hash of the refresh token that
// was issued with it, so the caller can retire the pair together.
func (r *SessionRegistry) Revoke(ctx context.Context, tokenHash string, reason string) (string, error) {
	session, err := r.store.FindByTokenHash(ctx, tokenHash)
	if errors.Is(err, model.ErrSessionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	revoked, err := r.store.DeactivateByTokenHash(ctx, tokenHash, reason)
	if err != nil {
		return "", err
	}
	r.remember(ctx, revoked)
	return session.RefreshTokenHash, nil
}

// RevokeByRefresh closes the session that was issued together with the
// given refresh token.
func (r *SessionRegistry) RevokeByRefresh(ctx context.Context, refreshHash string, reason string) error {
	revoked, err := r.store.DeactivateByRefreshHash(ctx, refreshHash, reason)
	if err != nil {
		return err
	}
	r.remember(ctx, revoked)
	return nil
}

func (r *SessionRegistry) RevokeAll(ctx context.Context, userID int64, reason string) (int, error) {
	revoked, err := r.store.DeactivateByUser(ctx, userID, reason)
	if err != nil {
		return 0, err
	}
	r.remember(ctx, revoked)
	return len(revoked), nil
}

func (r *SessionRegistry) RevokeByID(ctx context.Context, userID int64, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return apierror.NotFound("session", sessionID)
	}

	revoked, err := r.store.DeactivateByID(ctx, userID, sessionID, model.LogoutReasonRevoked)
	if err != nil {
		return err
	}
	if len(revoked) == 0 {
		return apierror.NotFound("session", sessionID)
	}
	r.remember(ctx, revoked)
	return nil
}

// ListActive marks the session behind currentHash so clients can tell
// which device they are on.
func (r *SessionRegistry) ListActive(ctx context.Context, userID int64, currentHash string) ([]model.UserSession, error) {
	sessions, err := r.store.ListActive(ctx, userID, r.now())
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Current = sessions[i].TokenHash == currentHash
	}
	return sessions, nil
}

func (r *SessionRegistry) SweepInactive(ctx context.Context, idleTimeout time.Duration) (int64, error) {
	now := r.now()
	return r.store.SweepInactive(ctx, now, now.Add(-idleTimeout))
}

func (r *SessionRegistry) PurgeClosed(ctx context.Context, olderThan time.Duration) (int64, error) {
	return r.store.DeleteClosedBefore(ctx, r.now().Add(-olderThan))
}

// remember mirrors revocations into the cache. The database row is the
// source of truth, so a cache write failure is only logged.
func (r *SessionRegistry) remember(ctx context.Context, revoked []model.RevokedSession) {
	if r.cache == nil {
		return
	}
	now := r.now()
	for _, s := range revoked {
		ttl := s.ExpiresAt.Sub(now)
		if ttl > r.accessTTL {
			ttl = r.accessTTL
		}
		if err := r.cache.MarkRevoked(ctx, s.TokenHash, ttl); err != nil {
			slog.Warn("mirror revocation to cache failed", "error", err)
		}
	}
}
