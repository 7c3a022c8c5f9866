package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"geotech-lab-api/internal/database"
	"geotech-lab-api/internal/model"
)

const attemptColumns = `email, ip_address, user_agent, reason, attempt_count, is_blocked, blocked_until, last_attempt_at`

// AttemptRepository persists failed-login counters keyed by normalized email.
type AttemptRepository struct {
	db Pool
}

func NewAttemptRepository(db Pool) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func scanAttempt(row pgx.Row) (model.FailedLoginAttempt, error) {
	var a model.FailedLoginAttempt
	err := row.Scan(&a.Email, &a.IPAddress, &a.UserAgent, &a.Reason, &a.AttemptCount,
		&a.IsBlocked, &a.BlockedUntil, &a.LastAttemptAt)
	return a, err
}

// Get returns a zero-count record when the email has no failures on file.
func (r *AttemptRepository) Get(ctx context.Context, email string) (model.FailedLoginAttempt, error) {
	a, err := scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM failed_login_attempts WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.FailedLoginAttempt{Email: email}, nil
	}
	if err != nil {
		return model.FailedLoginAttempt{}, fmt.Errorf("get failed attempts: %w", err)
	}
	return a, nil
}

// Apply runs one read-modify-write of the counter row under a row lock so
// concurrent failures for the same email serialize instead of undercounting.
func (r *AttemptRepository) Apply(ctx context.Context, email string, now time.Time, next func(model.FailedLoginAttempt) model.FailedLoginAttempt) (model.FailedLoginAttempt, error) {
	var result model.FailedLoginAttempt
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO failed_login_attempts (email, attempt_count, is_blocked, last_attempt_at)
			 VALUES ($1, 0, FALSE, $2)
			 ON CONFLICT (email) DO NOTHING`, email, now); err != nil {
			return fmt.Errorf("ensure attempt row: %w", err)
		}

		prev, err := scanAttempt(tx.QueryRow(ctx,
			`SELECT `+attemptColumns+` FROM failed_login_attempts WHERE email = $1 FOR UPDATE`, email))
		if err != nil {
			return fmt.Errorf("lock attempt row: %w", err)
		}

		result = next(prev)
		result.Email = email

		if _, err := tx.Exec(ctx,
			`UPDATE failed_login_attempts
			 SET ip_address = $2, user_agent = $3, reason = $4, attempt_count = $5,
			     is_blocked = $6, blocked_until = $7, last_attempt_at = $8
			 WHERE email = $1`,
			email, result.IPAddress, result.UserAgent, result.Reason, result.AttemptCount,
			result.IsBlocked, result.BlockedUntil, result.LastAttemptAt); err != nil {
			return fmt.Errorf("update attempt row: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.FailedLoginAttempt{}, err
	}
	return result, nil
}

func (r *AttemptRepository) Reset(ctx context.Context, email string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM failed_login_attempts WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

// ClearUnless deletes the counter row under the same row lock Apply takes,
// unless keep says the current state must stay. A missing row counts as
// cleared.
func (r *AttemptRepository) ClearUnless(ctx context.Context, email string, keep func(model.FailedLoginAttempt) bool) (bool, error) {
	cleared := false
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		current, err := scanAttempt(tx.QueryRow(ctx,
			`SELECT `+attemptColumns+` FROM failed_login_attempts WHERE email = $1 FOR UPDATE`, email))
		if errors.Is(err, pgx.ErrNoRows) {
			cleared = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock attempt row: %w", err)
		}
		if keep(current) {
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM failed_login_attempts WHERE email = $1`, email); err != nil {
			return fmt.Errorf("clear failed attempts: %w", err)
		}
		cleared = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return cleared, nil
}

// PurgeBefore drops counters whose last failure predates the retention
// cutoff and that are not currently blocking.
func (r *AttemptRepository) PurgeBefore(ctx context.Context, before time.Time, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM failed_login_attempts
		 WHERE last_attempt_at < $1 AND (is_blocked = FALSE OR blocked_until <= $2)`,
		before, now)
	if err != nil {
		return 0, fmt.Errorf("purge failed attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
