package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

func TestNewTokenIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{Secret: "too-short", AccessTTL: time.Minute, RefreshTTL: time.Hour}, newFakeTokens())
	require.Error(t, err)

	_, err = NewTokenIssuer(TokenConfig{Secret: "", AccessTTL: time.Minute, RefreshTTL: time.Hour}, newFakeTokens())
	require.Error(t, err)
}

func TestIssueAndParseAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	user := model.User{ID: 42, Name: "Ana", Email: "ana@lab.co", Role: model.RoleLab, IsActive: true}

	issued, err := f.issuer.Issue(context.Background(), user, model.ClientMeta{IPAddress: "10.0.0.1"}, false)
	require.NoError(t, err)

	assert.Equal(t, model.TokenTypeBearer, issued.Pair.TokenType)
	assert.Equal(t, int64(900), issued.Pair.ExpiresIn)
	assert.Equal(t, user.Public(), issued.Pair.User)
	assert.Len(t, issued.Pair.RefreshToken, 64)
	assert.Equal(t, HashToken(issued.Pair.AccessToken), issued.AccessHash)

	stored, err := f.tokens.FindByHash(context.Background(), HashToken(issued.Pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.UserID)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), stored.ExpiresAt)
	assert.Equal(t, "10.0.0.1", stored.IPAddress)

	claims, err := f.issuer.Parse(issued.Pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ana@lab.co", claims.Email)
	assert.Equal(t, model.RoleLab, claims.Role)
	assert.Equal(t, model.TokenTypeAccess, claims.Type)
	assert.NotEmpty(t, claims.TokenID)
}

func TestIssueRememberMeExtendsRefreshLifetime(t *testing.T) {
	f := newAuthFixture(t)

	issued, err := f.issuer.Issue(context.Background(), model.User{ID: 1, Role: model.RoleClient}, model.ClientMeta{}, true)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), issued.RefreshExpiresAt)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	f := newAuthFixture(t)

	issued, err := f.issuer.Issue(context.Background(), model.User{ID: 1, Role: model.RoleClient}, model.ClientMeta{}, false)
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	_, err = f.issuer.Parse(issued.Pair.AccessToken)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, "UNAUTHORIZED"))
}

func TestParseRejectsForeignAlgorithmsAndTypes(t *testing.T) {
	f := newAuthFixture(t)
	now := f.clock.Now()

	base := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(7),
		Issuer:    "geotech-lab-api",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, accessClaims{Type: model.TokenTypeAccess, RegisteredClaims: base}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, accessClaims{Type: model.TokenTypeAccess, RegisteredClaims: base}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	refreshTyped, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{Type: "refresh", RegisteredClaims: base}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	otherSecret, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{Type: model.TokenTypeAccess, RegisteredClaims: base}).
		SignedString([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	noExpiry := base
	noExpiry.ExpiresAt = nil
	unbounded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{Type: model.TokenTypeAccess, RegisteredClaims: noExpiry}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"hs512":        hs512,
		"none":         none,
		"refresh type": refreshTyped,
		"other secret": otherSecret,
		"no expiry":    unbounded,
		"garbage":      "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.issuer.Parse(raw)
			require.Error(t, err)
			assert.True(t, apierror.HasCode(err, "UNAUTHORIZED"))
		})
	}
}

func TestHashTokenIsStableHex(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
