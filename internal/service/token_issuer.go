package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

const (
	minSecretLength   = 32
	refreshTokenBytes = 32
)

type RefreshTokenStore interface {
	Store(ctx context.Context, t model.RefreshToken) error
}

type TokenConfig struct {
	Secret      string
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	RememberTTL time.Duration
}

// IssuedTokens is a token pair plus the bookkeeping the session registry
// needs. The raw refresh token only ever leaves through Pair.
type IssuedTokens struct {
	Pair             model.TokenPair
	AccessHash       string
	RefreshHash      string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type TokenIssuer struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	rememberTTL time.Duration
	tokens      RefreshTokenStore
	now         func() time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenIssuer(cfg TokenConfig, tokens RefreshTokenStore) (*TokenIssuer, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.RememberTTL < cfg.RefreshTTL {
		cfg.RememberTTL = cfg.RefreshTTL
	}

	return &TokenIssuer{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		rememberTTL: cfg.RememberTTL,
		tokens:      tokens,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

// Issue signs an access token and persists one hashed refresh token.
func (t *TokenIssuer) Issue(ctx context.Context, user model.User, meta model.ClientMeta, rememberMe bool) (IssuedTokens, error) {
	now := t.now()
	accessExp := now.Add(t.accessTTL)

	claims := accessClaims{
		Email: user.Email,
		Role:  user.Role,
		Type:  model.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    t.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return IssuedTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := randomToken(refreshTokenBytes)
	if err != nil {
		return IssuedTokens{}, err
	}

	ttl := t.refreshTTL
	if rememberMe {
		ttl = t.rememberTTL
	}
	refreshExp := now.Add(ttl)
	refreshHash := HashToken(refresh)

	if err := t.tokens.Store(ctx, model.RefreshToken{
		TokenHash: refreshHash,
		UserID:    user.ID,
		ExpiresAt: refreshExp,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}); err != nil {
		return IssuedTokens{}, err
	}

	return IssuedTokens{
		Pair: model.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    model.TokenTypeBearer,
			ExpiresIn:    int64(t.accessTTL / time.Second),
			User:         user.Public(),
		},
		AccessHash:       HashToken(access),
		RefreshHash:      refreshHash,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Parse checks signature, algorithm, issuer, type and expiry. It never
// touches the database.
func (t *TokenIssuer) Parse(raw string) (model.AuthClaims, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.AuthClaims{}, apierror.Unauthorized("token expired")
		}
		return model.AuthClaims{}, apierror.Unauthorized("invalid token")
	}

	if claims.Type != model.TokenTypeAccess {
		return model.AuthClaims{}, apierror.Unauthorized("invalid token type")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return model.AuthClaims{}, apierror.Unauthorized("invalid token subject")
	}

	return model.AuthClaims{
		UserID:  userID,
		Email:   claims.Email,
		Role:    claims.Role,
		Type:    claims.Type,
		TokenID: claims.ID,
	}, nil
}

// HashToken is the only form in which tokens are stored or compared.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
