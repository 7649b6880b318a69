package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/dom/accounts/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  "access-secret-for-tests",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "refresh-secret-for-tests",
		RefreshTTL:    24 * time.Hour,
	}
}

func newIssuer(t *testing.T, opts ...auth.IssuerOption) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(testTokenConfig(), opts...)
	require.NoError(t, err)
	return issuer
}

func TestNewTokenIssuer_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.TokenConfig)
	}{
		{name: "missing access secret", mutate: func(c *auth.TokenConfig) { c.AccessSecret = "" }},
		{name: "missing refresh secret", mutate: func(c *auth.TokenConfig) { c.RefreshSecret = "" }},
		{name: "shared secret", mutate: func(c *auth.TokenConfig) { c.RefreshSecret = c.AccessSecret }},
		{name: "zero access ttl", mutate: func(c *auth.TokenConfig) { c.AccessTTL = 0 }},
		{name: "negative refresh ttl", mutate: func(c *auth.TokenConfig) { c.RefreshTTL = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testTokenConfig()
			tt.mutate(&cfg)
			_, err := auth.NewTokenIssuer(cfg)
			assert.Error(t, err)
		})
	}
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := newIssuer(t)
	userID := uuid.New()

	pair, err := issuer.IssuePair(userID)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := issuer.Verify(pair.AccessToken, auth.AccessToken)
	require.NoError(t, err)
	got, err := access.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NotEmpty(t, access.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), access.ExpiresAt.Time, 2*time.Second)

	refresh, err := issuer.Verify(pair.RefreshToken, auth.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), refresh.Subject)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), refresh.ExpiresAt.Time, 2*time.Second)
}

func TestTokenIssuer_TokensAreUnique(t *testing.T) {
	issuer := newIssuer(t)
	userID := uuid.New()

	first, err := issuer.IssueRefresh(userID)
	require.NoError(t, err)
	second, err := issuer.IssueRefresh(userID)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenIssuer_VerifyFailures(t *testing.T) {
	issuer := newIssuer(t)
	userID := uuid.New()

	pair, err := issuer.IssuePair(userID)
	require.NoError(t, err)

	past := newIssuer(t, auth.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }))
	stale, err := past.IssuePair(userID)
	require.NoError(t, err)

	other, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "another-access-secret",
		AccessTTL:     time.Minute,
		RefreshSecret: "another-refresh-secret",
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)
	forged, err := other.IssueAccess(userID)
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		kind    auth.Kind
		wantErr error
	}{
		{name: "empty", token: "", kind: auth.AccessToken, wantErr: auth.ErrMalformedToken},
		{name: "garbage", token: "notavalidjwt", kind: auth.AccessToken, wantErr: auth.ErrMalformedToken},
		{name: "three garbage segments", token: "invalid.token.here", kind: auth.AccessToken, wantErr: auth.ErrMalformedToken},
		{name: "foreign secret", token: forged, kind: auth.AccessToken, wantErr: auth.ErrBadSignature},
		{name: "tampered signature", token: tampered, kind: auth.AccessToken, wantErr: auth.ErrBadSignature},
		{name: "alg none", token: noneToken, kind: auth.AccessToken, wantErr: auth.ErrBadSignature},
		{name: "refresh used as access", token: pair.RefreshToken, kind: auth.AccessToken, wantErr: auth.ErrBadSignature},
		{name: "access used as refresh", token: pair.AccessToken, kind: auth.RefreshToken, wantErr: auth.ErrBadSignature},
		{name: "expired access", token: stale.AccessToken, kind: auth.AccessToken, wantErr: auth.ErrTokenExpired},
		{name: "expired refresh", token: stale.RefreshToken, kind: auth.RefreshToken, wantErr: auth.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := issuer.Verify(tt.token, tt.kind)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTokenIssuer_RejectsNonUUIDSubject(t *testing.T) {
	cfg := testTokenConfig()
	issuer := newIssuer(t)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(cfg.AccessSecret))
	require.NoError(t, err)

	_, err = issuer.Verify(raw, auth.AccessToken)
	assert.ErrorIs(t, err, auth.ErrMalformedToken)
}

func TestTokenIssuer_RequiresExpiry(t *testing.T) {
	cfg := testTokenConfig()
	issuer := newIssuer(t)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: uuid.NewString(),
	}).SignedString([]byte(cfg.AccessSecret))
	require.NoError(t, err)

	_, err = issuer.Verify(raw, auth.AccessToken)
	assert.ErrorIs(t, err, auth.ErrMalformedToken)
}
