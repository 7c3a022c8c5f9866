package service

import (
	"context"
	"log/slog"
	"time"
)

const closedSessionRetention = 30 * 24 * time.Hour

type ExpiredTokenPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper drops stale in-memory state, such as idle rate-limit buckets.
type Sweeper interface {
	Sweep() int
}

type MaintenanceConfig struct {
	Interval               time.Duration
	SessionIdleTimeout     time.Duration
	AuthLogRetention       time.Duration
	FailedAttemptRetention time.Duration
}

type MaintenanceReport struct {
	SessionsClosed int64
	SessionsPurged int64
	TokensPurged   int64
	AttemptsPurged int64
	AuthLogsPurged int64
	RateKeysSwept  int
}

type MaintenanceService struct {
	cfg      MaintenanceConfig
	sessions *SessionRegistry
	tokens   ExpiredTokenPurger
	lockout  *LockoutTracker
	authLogs *AuthLogService
	sweepers []Sweeper
	now      func() time.Time
}

func NewMaintenanceService(cfg MaintenanceConfig, sessions *SessionRegistry, tokens ExpiredTokenPurger, lockout *LockoutTracker, authLogs *AuthLogService, sweepers ...Sweeper) *MaintenanceService {
	return &MaintenanceService{
		cfg:      cfg,
		sessions: sessions,
		tokens:   tokens,
		lockout:  lockout,
		authLogs: authLogs,
		sweepers: sweepers,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs RunOnce on every tick until ctx is cancelled.
func (s *MaintenanceService) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := s.RunOnce(ctx)
				slog.Debug("maintenance run finished",
					"sessionsClosed", report.SessionsClosed,
					"tokensPurged", report.TokensPurged,
					"attemptsPurged", report.AttemptsPurged,
					"authLogsPurged", report.AuthLogsPurged,
					"rateKeysSwept", report.RateKeysSwept)
			}
		}
	}()
}

// RunOnce performs every cleanup step. A failing step is logged and the
// remaining steps still run.
func (s *MaintenanceService) RunOnce(ctx context.Context) MaintenanceReport {
	var report MaintenanceReport
	var err error

	if s.cfg.SessionIdleTimeout > 0 {
		if report.SessionsClosed, err = s.sessions.SweepInactive(ctx, s.cfg.SessionIdleTimeout); err != nil {
			slog.Warn("sweep inactive sessions failed", "error", err)
		}
	}

	if report.SessionsPurged, err = s.sessions.PurgeClosed(ctx, closedSessionRetention); err != nil {
		slog.Warn("purge closed sessions failed", "error", err)
	}

	if report.TokensPurged, err = s.tokens.DeleteExpired(ctx, s.now()); err != nil {
		slog.Warn("purge expired refresh tokens failed", "error", err)
	}

	if s.cfg.FailedAttemptRetention > 0 {
		if report.AttemptsPurged, err = s.lockout.Purge(ctx, s.cfg.FailedAttemptRetention); err != nil {
			slog.Warn("purge failed login attempts failed", "error", err)
		}
	}

	if s.cfg.AuthLogRetention > 0 {
		if report.AuthLogsPurged, err = s.authLogs.Purge(ctx, s.cfg.AuthLogRetention); err != nil {
			slog.Warn("purge auth logs failed", "error", err)
		}
	}

	for _, sw := range s.sweepers {
		report.RateKeysSwept += sw.Sweep()
	}

	return report
}
