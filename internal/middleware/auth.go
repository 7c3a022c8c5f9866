package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (model.Identity, error)
}

// Access describes who may call a route. The zero value means any
// authenticated user.
type Access struct {
	Public bool
	Roles  []string
}

type contextKey string

const identityContextKey contextKey = "identity"

type AuthGate struct {
	auth Authenticator
}

func NewAuthGate(auth Authenticator) *AuthGate {
	return &AuthGate{auth: auth}
}

// Guard authenticates the bearer token and checks the caller's role
// against access. Public routes pass straight through.
func (g *AuthGate) Guard(access Access) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if access.Public {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
				return
			}

			identity, err := g.auth.Authenticate(r.Context(), raw)
			if err != nil {
				if apiErr, ok := apierror.As(err); ok && apiErr.HTTPStatus == http.StatusUnauthorized {
					writeJSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", apiErr.Message)
					return
				}
				slog.Error("authenticate request failed", "error", err)
				writeJSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication failed")
				return
			}

			if err := Authorize(&identity, access.Roles); err != nil {
				writeJSONError(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			annotateLog(r.Context(), identity.UserID)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// Authorize is the role rule on its own: no roles means any identity,
// otherwise the identity's role must match one of them.
func Authorize(identity *model.Identity, roles []string) error {
	if identity == nil || strings.TrimSpace(identity.Role) == "" {
		return model.ErrUnauthorized
	}
	if len(roles) == 0 {
		return nil
	}
	for _, role := range roles {
		if strings.EqualFold(strings.TrimSpace(role), identity.Role) {
			return nil
		}
	}
	return model.ErrForbidden
}

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on a websocket handshake, so upgrades may pass access_token instead.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		token := strings.TrimSpace(header[7:])
		return token, token != ""
	}

	if header == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		token := strings.TrimSpace(r.URL.Query().Get("access_token"))
		return token, token != ""
	}

	return "", false
}
