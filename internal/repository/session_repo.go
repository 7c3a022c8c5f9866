package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"geotech-lab-api/internal/model"
)

const sessionColumns = `id::text, user_id, token_hash, refresh_token_hash, ip_address, user_agent,
	device_info, is_active, last_activity, expires_at, logout_reason, created_at`

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (model.UserSession, error) {
	var s model.UserSession
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.RefreshTokenHash, &s.IPAddress, &s.UserAgent,
		&s.DeviceInfo, &s.IsActive, &s.LastActivity, &s.ExpiresAt, &s.LogoutReason, &s.CreatedAt)
	return s, err
}

func (r *SessionRepository) Create(ctx context.Context, s model.UserSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_sessions
		 (id, user_id, token_hash, refresh_token_hash, ip_address, user_agent, device_info,
		  is_active, last_activity, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9, $8)`,
		s.ID, s.UserID, s.TokenHash, s.RefreshTokenHash, s.IPAddress, s.UserAgent, s.DeviceInfo,
		s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return translatePgError(err, "create session")
	}
	return nil
}

func (r *SessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (model.UserSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE token_hash = $1`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserSession{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.UserSession{}, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

// Touch only writes when last_activity is older than staleBefore, which
// keeps hot sessions from rewriting the row on every request.
func (r *SessionRepository) Touch(ctx context.Context, tokenHash string, now time.Time, staleBefore time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET last_activity = $2
		 WHERE token_hash = $1 AND is_active = TRUE AND last_activity < $3`,
		tokenHash, now, staleBefore)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *SessionRepository) deactivate(ctx context.Context, op string, where string, reason string, args ...any) ([]model.RevokedSession, error) {
	args = append(args, reason)
	query := fmt.Sprintf(
		`UPDATE user_sessions SET is_active = FALSE, logout_reason = $%d
		 WHERE is_active = TRUE AND %s
		 RETURNING token_hash, expires_at`, len(args), where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	revoked := make([]model.RevokedSession, 0)
	for rows.Next() {
		var s model.RevokedSession
		if err := rows.Scan(&s.TokenHash, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		revoked = append(revoked, s)
	}
	return revoked, rows.Err()
}

func (r *SessionRepository) DeactivateByTokenHash(ctx context.Context, tokenHash string, reason string) ([]model.RevokedSession, error) {
	return r.deactivate(ctx, "deactivate session", "token_hash = $1", reason, tokenHash)
}

func (r *SessionRepository) DeactivateByRefreshHash(ctx context.Context, refreshHash string, reason string) ([]model.RevokedSession, error) {
	return r.deactivate(ctx, "deactivate session by refresh token", "refresh_token_hash = $1", reason, refreshHash)
}

func (r *SessionRepository) DeactivateByUser(ctx context.Context, userID int64, reason string) ([]model.RevokedSession, error) {
	return r.deactivate(ctx, "deactivate user sessions", "user_id = $1", reason, userID)
}

func (r *SessionRepository) DeactivateByID(ctx context.Context, userID int64, sessionID string, reason string) ([]model.RevokedSession, error) {
	return r.deactivate(ctx, "deactivate session by id", "user_id = $1 AND id::text = $2", reason, userID, sessionID)
}

func (r *SessionRepository) ListActive(ctx context.Context, userID int64, now time.Time) ([]model.UserSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions
		 WHERE user_id = $1 AND is_active = TRUE AND expires_at > $2
		 ORDER BY last_activity DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.UserSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SweepInactive closes expired sessions and sessions idle since before
// idleBefore. It returns how many rows it closed.
func (r *SessionRepository) SweepInactive(ctx context.Context, now time.Time, idleBefore time.Time) (int64, error) {
	expired, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET is_active = FALSE, logout_reason = $2
		 WHERE is_active = TRUE AND expires_at <= $1`,
		now, model.LogoutReasonExpired)
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}

	idle, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET is_active = FALSE, logout_reason = $2
		 WHERE is_active = TRUE AND last_activity < $1`,
		idleBefore, model.LogoutReasonInactivity)
	if err != nil {
		return 0, fmt.Errorf("sweep idle sessions: %w", err)
	}

	return expired.RowsAffected() + idle.RowsAffected(), nil
}

func (r *SessionRepository) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM user_sessions WHERE is_active = FALSE AND expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge closed sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
