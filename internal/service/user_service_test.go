package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

func newUserFixture(t *testing.T) (*authFixture, *UserService) {
	t.Helper()
	f := newAuthFixture(t)
	return f, NewUserService(f.users, f.auth, f.lockout, f.logs)
}

func TestDeactivatingUserEndsSessions(t *testing.T) {
	f, users := newUserFixture(t)
	ctx := context.Background()
	admin := model.Identity{UserID: 100, Role: model.RoleAdmin}
	target := f.users.add(t, "tech@lab.co", "correct-horse", model.RoleLab)
	pair := loginAs(t, f, "tech@lab.co", "correct-horse")

	inactive := false
	updated, err := users.Update(ctx, admin, target.ID, model.UserPatch{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = f.auth.Authenticate(ctx, pair.AccessToken)
	assert.True(t, apierror.HasCode(err, "UNAUTHORIZED"))
	assert.Equal(t, model.LogoutReasonDeactivated, f.sessions.reasonFor(HashToken(pair.AccessToken)))
	assert.Equal(t, 0, f.tokens.activeFor(target.ID))
}

func TestUpdateUserValidation(t *testing.T) {
	f, users := newUserFixture(t)
	ctx := context.Background()
	admin := f.users.add(t, "root@lab.co", "correct-horse", model.RoleAdmin)
	actor := model.Identity{UserID: admin.ID, Role: model.RoleAdmin}
	target := f.users.add(t, "tech@lab.co", "correct-horse", model.RoleLab)

	role := "superuser"
	_, err := users.Update(ctx, actor, target.ID, model.UserPatch{Role: &role})
	assert.True(t, apierror.HasCode(err, "VALIDATION_ERROR"))

	blank := " "
	_, err = users.Update(ctx, actor, target.ID, model.UserPatch{Name: &blank})
	assert.True(t, apierror.HasCode(err, "VALIDATION_ERROR"))

	demote := model.RoleClient
	_, err = users.Update(ctx, actor, admin.ID, model.UserPatch{Role: &demote})
	assert.True(t, apierror.HasCode(err, "FORBIDDEN"))

	_, err = users.Update(ctx, actor, 999, model.UserPatch{Role: &demote})
	assert.True(t, apierror.HasCode(err, "NOT_FOUND"))

	updated, err := users.Update(ctx, actor, target.ID, model.UserPatch{Role: &demote})
	require.NoError(t, err)
	assert.Equal(t, model.RoleClient, updated.Role)
}

func TestUnlockClearsLockout(t *testing.T) {
	f, users := newUserFixture(t)
	ctx := context.Background()
	target := f.users.add(t, "tech@lab.co", "correct-horse", model.RoleLab)

	for i := 0; i < 5; i++ {
		_, _ = f.auth.Login(ctx, model.LoginRequest{Email: "tech@lab.co", Password: "nope"}, testMeta)
	}
	status, err := f.lockout.CheckLocked(ctx, "tech@lab.co")
	require.NoError(t, err)
	require.True(t, status.Locked)

	unlocked, err := users.Unlock(ctx, model.Identity{UserID: 100}, target.ID, testMeta)
	require.NoError(t, err)
	assert.Equal(t, 0, unlocked.FailedAttempts)
	assert.Nil(t, unlocked.LockedUntil)
	assert.Equal(t, 1, f.logs.count(model.AuthEventUserUnlocked))

	loginAs(t, f, "tech@lab.co", "correct-horse")
}

func TestMaintenanceRunOnce(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.add(t, "tech@lab.co", "correct-horse", model.RoleLab)
	pair := loginAs(t, f, "tech@lab.co", "correct-horse")
	_, _ = f.lockout.RecordFailure(ctx, "someone@lab.co", testMeta, "invalid_password")

	logStore := &fakeAuthLogStore{}
	sweeper := &countingSweeper{n: 3}
	m := NewMaintenanceService(MaintenanceConfig{
		SessionIdleTimeout:     2 * time.Hour,
		AuthLogRetention:       24 * time.Hour,
		FailedAttemptRetention: time.Hour,
	}, f.registry, f.tokens, f.lockout, NewAuthLogService(logStore), sweeper)
	m.now = f.clock.Now

	f.clock.Advance(8 * 24 * time.Hour)
	report := m.RunOnce(ctx)

	assert.Equal(t, int64(1), report.SessionsClosed)
	assert.Equal(t, int64(1), report.TokensPurged)
	assert.Equal(t, int64(1), report.AttemptsPurged)
	assert.Equal(t, 3, report.RateKeysSwept)
	assert.True(t, logStore.purged)

	_, err := f.auth.Authenticate(ctx, pair.AccessToken)
	assert.Error(t, err)
}

type countingSweeper struct {
	n int
}

func (c *countingSweeper) Sweep() int {
	return c.n
}

type fakeAuthLogStore struct {
	purged bool
	filter model.AuthLogFilter
	page   model.Pagination
}

func (f *fakeAuthLogStore) Query(_ context.Context, filter model.AuthLogFilter, page model.Pagination) ([]model.AuthLog, int, error) {
	f.filter = filter
	f.page = page
	return []model.AuthLog{{ID: 1, EventType: model.AuthEventLogin}}, 41, nil
}

func (f *fakeAuthLogStore) PurgeBefore(_ context.Context, _ time.Time) (int64, error) {
	f.purged = true
	return 0, nil
}

func TestAuthLogQueryParsesFilters(t *testing.T) {
	store := &fakeAuthLogStore{}
	svc := NewAuthLogService(store)

	_, meta, err := svc.Query(context.Background(), model.AuthLogQuery{
		EventType: "FAILED_LOGIN",
		UserID:    "12",
		Success:   "false",
		From:      "2024-03-01",
		To:        "2024-03-02T10:00:00Z",
		Page:      2,
		Limit:     20,
	})
	require.NoError(t, err)

	assert.Equal(t, model.AuthEventFailedLogin, store.filter.EventType)
	require.NotNil(t, store.filter.UserID)
	assert.Equal(t, int64(12), *store.filter.UserID)
	require.NotNil(t, store.filter.Success)
	assert.False(t, *store.filter.Success)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *store.filter.From)
	assert.Equal(t, 41, meta.Total)
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNext)
	assert.True(t, meta.HasPrev)

	for _, q := range []model.AuthLogQuery{
		{UserID: "abc"},
		{Success: "maybe"},
		{From: "yesterday"},
		{From: "2024-03-02", To: "2024-03-01"},
	} {
		_, _, err := svc.Query(context.Background(), q)
		assert.True(t, apierror.HasCode(err, "BAD_REQUEST"), "%+v", q)
	}
}
