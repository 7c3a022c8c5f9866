package service

import (
	"context"
	"log/slog"
	"time"

	"geotech-lab-api/internal/model"
)

type AttemptStore interface {
	Get(ctx context.Context, email string) (model.FailedLoginAttempt, error)
	Apply(ctx context.Context, email string, now time.Time, next func(model.FailedLoginAttempt) model.FailedLoginAttempt) (model.FailedLoginAttempt, error)
	Reset(ctx context.Context, email string) error
	ClearUnless(ctx context.Context, email string, keep func(model.FailedLoginAttempt) bool) (bool, error)
	PurgeBefore(ctx context.Context, before time.Time, now time.Time) (int64, error)
}

// AttemptMirror copies counters onto the users table for admin views.
type AttemptMirror interface {
	MirrorFailedAttempts(ctx context.Context, email string, count int, lastFailedAt time.Time, lockedUntil *time.Time) error
	ResetFailedAttempts(ctx context.Context, email string) error
}

// FailureResult is the tracker state right after one recorded failure.
type FailureResult struct {
	Attempts   int
	Locked     bool
	JustLocked bool
	RetryAfter time.Duration
}

type LockoutTracker struct {
	policy   model.LockoutPolicy
	attempts AttemptStore
	mirror   AttemptMirror
	now      func() time.Time
}

func NewLockoutTracker(policy model.LockoutPolicy, attempts AttemptStore, mirror AttemptMirror) *LockoutTracker {
	return &LockoutTracker{
		policy:   policy,
		attempts: attempts,
		mirror:   mirror,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (t *LockoutTracker) CheckLocked(ctx context.Context, email string) (model.LockStatus, error) {
	current, err := t.attempts.Get(ctx, email)
	if err != nil {
		return model.LockStatus{}, err
	}
	return t.policy.Status(current, t.now()), nil
}

func (t *LockoutTracker) RecordFailure(ctx context.Context, email string, meta model.ClientMeta, reason string) (FailureResult, error) {
	now := t.now()
	wasLocked := false

	next, err := t.attempts.Apply(ctx, email, now, func(prev model.FailedLoginAttempt) model.FailedLoginAttempt {
		wasLocked = t.policy.Effective(prev, now).IsBlocked
		n := t.policy.Next(prev, now)
		n.IPAddress = meta.IPAddress
		n.UserAgent = meta.UserAgent
		n.Reason = reason
		return n
	})
	if err != nil {
		return FailureResult{}, err
	}

	if t.mirror != nil {
		if err := t.mirror.MirrorFailedAttempts(ctx, email, next.AttemptCount, now, next.BlockedUntil); err != nil {
			slog.Warn("mirror failed attempts failed", "error", err)
		}
	}

	status := t.policy.Status(next, now)
	return FailureResult{
		Attempts:   next.AttemptCount,
		Locked:     status.Locked,
		JustLocked: status.Locked && !wasLocked,
		RetryAfter: status.RetryAfter,
	}, nil
}

func (t *LockoutTracker) Reset(ctx context.Context, email string) error {
	if err := t.attempts.Reset(ctx, email); err != nil {
		return err
	}
	if t.mirror != nil {
		if err := t.mirror.ResetFailedAttempts(ctx, email); err != nil {
			slog.Warn("reset mirrored attempts failed", "error", err)
		}
	}
	return nil
}

// ClearAfterLogin resets the counter for a successful login unless a lock
// landed after CheckLocked; in that case the returned status is locked and
// the counter is left alone.
func (t *LockoutTracker) ClearAfterLogin(ctx context.Context, email string) (model.LockStatus, error) {
	now := t.now()
	var status model.LockStatus
	cleared, err := t.attempts.ClearUnless(ctx, email, func(current model.FailedLoginAttempt) bool {
		status = t.policy.Status(current, now)
		return status.Locked
	})
	if err != nil {
		return model.LockStatus{}, err
	}
	if !cleared {
		return status, nil
	}

	if t.mirror != nil {
		if err := t.mirror.ResetFailedAttempts(ctx, email); err != nil {
			slog.Warn("reset mirrored attempts failed", "error", err)
		}
	}
	return model.LockStatus{}, nil
}

func (t *LockoutTracker) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	now := t.now()
	return t.attempts.PurgeBefore(ctx, now.Add(-retention), now)
}
