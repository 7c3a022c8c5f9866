package model

import (
	"time"
)

type FailedLoginAttempt struct {
	Email         string     `json:"email"`
	IPAddress     string     `json:"ipAddress"`
	UserAgent     string     `json:"userAgent"`
	Reason        string     `json:"reason"`
	AttemptCount  int        `json:"attemptCount"`
	IsBlocked     bool       `json:"isBlocked"`
	BlockedUntil  *time.Time `json:"blockedUntil,omitempty"`
	LastAttemptAt time.Time  `json:"lastAttemptAt"`
}

type LockStatus struct {
	Locked     bool
	Attempts   int
	RetryAfter time.Duration
}

// LockoutPolicy drives the per-email state machine
// Clean -> Warned(1..N-1) -> Locked(N). Expiry is lazy: a stale state is
// only cleared when it is next read.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// Effective returns the state as it stands at now, after lazy expiry.
// A lock is lifted once blocked_until has passed; an unlocked counter is
// forgotten once the last failure is older than the window.
func (p LockoutPolicy) Effective(a FailedLoginAttempt, now time.Time) FailedLoginAttempt {
	if a.IsBlocked {
		if a.BlockedUntil == nil || !now.Before(*a.BlockedUntil) {
			a.IsBlocked = false
			a.BlockedUntil = nil
			a.AttemptCount = 0
		}
		return a
	}

	if a.AttemptCount > 0 && now.Sub(a.LastAttemptAt) >= p.Window {
		a.AttemptCount = 0
	}
	return a
}

// Next applies one more failure.
func (p LockoutPolicy) Next(prev FailedLoginAttempt, now time.Time) FailedLoginAttempt {
	next := p.Effective(prev, now)
	if next.IsBlocked {
		next.LastAttemptAt = now
		return next
	}

	next.AttemptCount++
	next.LastAttemptAt = now
	if next.AttemptCount >= p.MaxAttempts {
		until := now.Add(p.Window)
		next.IsBlocked = true
		next.BlockedUntil = &until
	}
	return next
}

func (p LockoutPolicy) Status(a FailedLoginAttempt, now time.Time) LockStatus {
	eff := p.Effective(a, now)
	if !eff.IsBlocked {
		return LockStatus{Attempts: eff.AttemptCount}
	}
	return LockStatus{
		Locked:     true,
		Attempts:   eff.AttemptCount,
		RetryAfter: eff.BlockedUntil.Sub(now),
	}
}
