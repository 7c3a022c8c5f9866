package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

type stubAuthenticator struct {
	identities map[string]model.Identity
	err        error
	calls      int
}

func (s *stubAuthenticator) Authenticate(_ context.Context, raw string) (model.Identity, error) {
	s.calls++
	if s.err != nil {
		return model.Identity{}, s.err
	}
	identity, ok := s.identities[raw]
	if !ok {
		return model.Identity{}, apierror.Unauthorized("invalid token")
	}
	return identity, nil
}

func newStub() *stubAuthenticator {
	return &stubAuthenticator{identities: map[string]model.Identity{
		"admin-token":  {UserID: 1, Role: model.RoleAdmin},
		"client-token": {UserID: 3, Role: model.RoleClient},
	}}
}

func serveGuarded(gate *AuthGate, access Access, token string) (*httptest.ResponseRecorder, *model.Identity) {
	var seen *model.Identity
	handler := gate.Guard(access)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := IdentityFromContext(r.Context()); ok {
			seen = &identity
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthGate_PublicRouteSkipsAuthentication(t *testing.T) {
	stub := newStub()
	rec, identity := serveGuarded(NewAuthGate(stub), Access{Public: true}, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, identity)
	assert.Zero(t, stub.calls)
}

func TestAuthGate_MissingTokenIs401(t *testing.T) {
	rec, _ := serveGuarded(NewAuthGate(newStub()), Access{}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestAuthGate_InvalidTokenIs401(t *testing.T) {
	rec, _ := serveGuarded(NewAuthGate(newStub()), Access{}, "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthGate_UnexpectedErrorIs401(t *testing.T) {
	stub := newStub()
	stub.err = errors.New("database down")
	rec, _ := serveGuarded(NewAuthGate(stub), Access{}, "admin-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database down")
}

func TestAuthGate_RoleGate(t *testing.T) {
	gate := NewAuthGate(newStub())
	adminOnly := Access{Roles: []string{model.RoleAdmin}}

	rec, _ := serveGuarded(gate, adminOnly, "client-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient permissions")

	rec, identity := serveGuarded(gate, adminOnly, "admin-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, identity)
	assert.Equal(t, int64(1), identity.UserID)
}

func TestAuthGate_WebsocketQueryToken(t *testing.T) {
	gate := NewAuthGate(newStub())
	handler := gate.Guard(Access{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws?access_token=admin-token", nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Plain requests may not use the query parameter.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects?access_token=admin-token", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorize(t *testing.T) {
	admin := &model.Identity{UserID: 1, Role: "admin"}

	assert.NoError(t, Authorize(admin, nil))
	assert.NoError(t, Authorize(admin, []string{"ADMIN"}))
	assert.NoError(t, Authorize(admin, []string{"lab", " Admin "}))
	assert.ErrorIs(t, Authorize(admin, []string{"lab"}), model.ErrForbidden)
	assert.ErrorIs(t, Authorize(nil, nil), model.ErrUnauthorized)
	assert.ErrorIs(t, Authorize(&model.Identity{UserID: 2}, nil), model.ErrUnauthorized)
}

func TestRecoveryWritesEnvelope(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INTERNAL_ERROR"`)
	assert.Contains(t, rec.Body.String(), `"path":"/api/v1/health"`)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestLoggingSetsRequestID(t *testing.T) {
	var seen string
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(requestIDHeader))
}
