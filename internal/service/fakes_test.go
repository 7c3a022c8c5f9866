package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"geotech-lab-api/internal/event"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]model.User{}}
}

func (f *fakeUsers) add(t *testing.T, email string, password string, role string) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := f.Create(context.Background(), model.User{
		Name: "Test " + role, Email: email, PasswordHash: string(hash), Role: role, IsActive: true,
	})
	require.NoError(t, err)
	return u
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, apierror.NotFound("user", "")
	}
	return u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (f *fakeUsers) FindByResetTokenHash(_ context.Context, tokenHash string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.PasswordResetTokenHash != "" && u.PasswordResetTokenHash == tokenHash {
			return u, nil
		}
	}
	return model.User{}, model.ErrTokenNotFound
}

func (f *fakeUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.FindByEmail(ctx, email)
	return err == nil, nil
}

func (f *fakeUsers) Create(_ context.Context, u model.User) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) Update(_ context.Context, u model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.byID[u.ID]
	if !ok {
		return apierror.NotFound("user", "")
	}
	current.Name, current.Role, current.IsActive = u.Name, u.Role, u.IsActive
	f.byID[u.ID] = current
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.PasswordHash = passwordHash
	u.PasswordResetTokenHash = ""
	u.PasswordResetExpiresAt = nil
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) SetPasswordResetToken(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.PasswordResetTokenHash = tokenHash
	u.PasswordResetExpiresAt = &expiresAt
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID), nil
}

func (f *fakeUsers) List(_ context.Context, filter model.UserFilter, page model.Pagination) ([]model.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0)
	for _, u := range f.byID {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *fakeUsers) MirrorFailedAttempts(_ context.Context, email string, count int, lastFailedAt time.Time, lockedUntil *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			u.FailedAttempts = count
			u.LastFailedAt = &lastFailedAt
			u.LockedUntil = lockedUntil
			f.byID[id] = u
		}
	}
	return nil
}

func (f *fakeUsers) ResetFailedAttempts(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			u.FailedAttempts = 0
			u.LockedUntil = nil
			f.byID[id] = u
		}
	}
	return nil
}

type fakeTokens struct {
	mu     sync.Mutex
	byHash map[string]model.RefreshToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byHash: map[string]model.RefreshToken{}}
}

func (f *fakeTokens) Store(_ context.Context, t model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHash[t.TokenHash] = t
	return nil
}

func (f *fakeTokens) FindByHash(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[tokenHash]
	if !ok {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	return t, nil
}

func (f *fakeTokens) Revoke(_ context.Context, tokenHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[tokenHash]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	f.byHash[tokenHash] = t
	return true, nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, t := range f.byHash {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			f.byHash[h] = t
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, t := range f.byHash {
		if t.ExpiresAt.Before(before) {
			delete(f.byHash, h)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) activeFor(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.byHash {
		if t.UserID == userID && !t.Revoked {
			n++
		}
	}
	return n
}

type fakeSessions struct {
	mu     sync.Mutex
	byHash map[string]model.UserSession
	err    error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byHash: map[string]model.UserSession{}}
}

func (f *fakeSessions) Create(_ context.Context, s model.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHash[s.TokenHash] = s
	return nil
}

func (f *fakeSessions) FindByTokenHash(_ context.Context, tokenHash string) (model.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.UserSession{}, f.err
	}
	s, ok := f.byHash[tokenHash]
	if !ok {
		return model.UserSession{}, model.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Touch(_ context.Context, tokenHash string, now time.Time, staleBefore time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byHash[tokenHash]
	if ok && s.IsActive && s.LastActivity.Before(staleBefore) {
		s.LastActivity = now
		f.byHash[tokenHash] = s
	}
	return nil
}

func (f *fakeSessions) deactivateWhere(match func(model.UserSession) bool, reason string) []model.RevokedSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.RevokedSession, 0)
	for h, s := range f.byHash {
		if s.IsActive && match(s) {
			s.IsActive = false
			s.LogoutReason = reason
			f.byHash[h] = s
			out = append(out, model.RevokedSession{TokenHash: h, ExpiresAt: s.ExpiresAt})
		}
	}
	return out
}

func (f *fakeSessions) DeactivateByTokenHash(_ context.Context, tokenHash string, reason string) ([]model.RevokedSession, error) {
	return f.deactivateWhere(func(s model.UserSession) bool { return s.TokenHash == tokenHash }, reason), nil
}

func (f *fakeSessions) DeactivateByRefreshHash(_ context.Context, refreshHash string, reason string) ([]model.RevokedSession, error) {
	return f.deactivateWhere(func(s model.UserSession) bool { return s.RefreshTokenHash == refreshHash }, reason), nil
}

func (f *fakeSessions) DeactivateByUser(_ context.Context, userID int64, reason string) ([]model.RevokedSession, error) {
	return f.deactivateWhere(func(s model.UserSession) bool { return s.UserID == userID }, reason), nil
}

func (f *fakeSessions) DeactivateByID(_ context.Context, userID int64, sessionID string, reason string) ([]model.RevokedSession, error) {
	return f.deactivateWhere(func(s model.UserSession) bool { return s.UserID == userID && s.ID == sessionID }, reason), nil
}

func (f *fakeSessions) ListActive(_ context.Context, userID int64, now time.Time) ([]model.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.UserSession, 0)
	for _, s := range f.byHash {
		if s.UserID == userID && s.Valid(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) SweepInactive(_ context.Context, now time.Time, idleBefore time.Time) (int64, error) {
	closed := f.deactivateWhere(func(s model.UserSession) bool {
		return s.LastActivity.Before(idleBefore) || !now.Before(s.ExpiresAt)
	}, model.LogoutReasonInactivity)
	return int64(len(closed)), nil
}

func (f *fakeSessions) DeleteClosedBefore(_ context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeSessions) reasonFor(tokenHash string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHash[tokenHash].LogoutReason
}

type fakeAttempts struct {
	mu      sync.Mutex
	byEmail map[string]model.FailedLoginAttempt
	// beforeClear, when set, rewrites the row as ClearUnless locks it, like
	// a failure committed by another request in between.
	beforeClear func(model.FailedLoginAttempt) model.FailedLoginAttempt
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{byEmail: map[string]model.FailedLoginAttempt{}}
}

func (f *fakeAttempts) Get(_ context.Context, email string) (model.FailedLoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byEmail[email]
	if !ok {
		return model.FailedLoginAttempt{Email: email}, nil
	}
	return a, nil
}

func (f *fakeAttempts) Apply(_ context.Context, email string, _ time.Time, next func(model.FailedLoginAttempt) model.FailedLoginAttempt) (model.FailedLoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.byEmail[email]
	if !ok {
		prev = model.FailedLoginAttempt{Email: email}
	}
	result := next(prev)
	result.Email = email
	f.byEmail[email] = result
	return result, nil
}

func (f *fakeAttempts) Reset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byEmail, email)
	return nil
}

func (f *fakeAttempts) ClearUnless(_ context.Context, email string, keep func(model.FailedLoginAttempt) bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.byEmail[email]
	if !ok {
		return true, nil
	}
	if f.beforeClear != nil {
		current = f.beforeClear(current)
		f.byEmail[email] = current
	}
	if keep(current) {
		return false, nil
	}
	delete(f.byEmail, email)
	return true, nil
}

func (f *fakeAttempts) PurgeBefore(_ context.Context, before time.Time, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for email, a := range f.byEmail {
		if a.LastAttemptAt.Before(before) && (!a.IsBlocked || !now.Before(*a.BlockedUntil)) {
			delete(f.byEmail, email)
			n++
		}
	}
	return n, nil
}

type fakeAuthLogs struct {
	mu      sync.Mutex
	entries []model.AuthLog
}

func (f *fakeAuthLogs) Append(_ context.Context, entry model.AuthLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuthLogs) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeCache struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	err     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{revoked: map[string]time.Duration{}}
}

func (f *fakeCache) MarkRevoked(_ context.Context, tokenHash string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ttl > 0 {
		f.revoked[tokenHash] = ttl
	}
	return nil
}

func (f *fakeCache) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.revoked[tokenHash]
	return ok, nil
}

var errStoreDown = errors.New("store unavailable")

// authFixture wires the auth stack over fakes that share one clock.
type authFixture struct {
	clock    *testClock
	users    *fakeUsers
	tokens   *fakeTokens
	sessions *fakeSessions
	attempts *fakeAttempts
	logs     *fakeAuthLogs
	issuer   *TokenIssuer
	registry *SessionRegistry
	lockout  *LockoutTracker
	auth     *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		clock:    newTestClock(),
		users:    newFakeUsers(),
		tokens:   newFakeTokens(),
		sessions: newFakeSessions(),
		attempts: newFakeAttempts(),
		logs:     &fakeAuthLogs{},
	}

	issuer, err := NewTokenIssuer(TokenConfig{
		Secret:      testSecret,
		Issuer:      "geotech-lab-api",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  7 * 24 * time.Hour,
		RememberTTL: 30 * 24 * time.Hour,
	}, f.tokens)
	require.NoError(t, err)
	issuer.now = f.clock.Now
	f.issuer = issuer

	f.registry = NewSessionRegistry(f.sessions, nil, 15*time.Minute)
	f.registry.now = f.clock.Now

	f.lockout = NewLockoutTracker(model.LockoutPolicy{MaxAttempts: 5, Window: 15 * time.Minute}, f.attempts, f.users)
	f.lockout.now = f.clock.Now

	auth, err := NewAuthService(f.users, f.tokens, issuer, f.registry, f.lockout, f.logs,
		AuthServiceConfig{BcryptCost: bcrypt.MinCost, ResetTTL: time.Hour})
	require.NoError(t, err)
	auth.now = f.clock.Now
	f.auth = auth

	return f
}

type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *recordingBus) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) Subscribe() (<-chan event.Event, func()) {
	return make(chan event.Event), func() {}
}

func (b *recordingBus) types() []event.Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.Type, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}
