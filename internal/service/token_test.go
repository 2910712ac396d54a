package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-cohort-auth/internal/config"
)

func TestGenerateAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := testUser()
	token, err := svc.generateAccessToken(context.Background(), user, time.Now().UTC())
	require.NoError(t, err)

	uid, email, role, err := svc.validateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.Equal(t, user.Email, email)
	require.Equal(t, user.Role, role)
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	t.Parallel()

	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, _, _, err := svc.validateAccessToken(token)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	t.Parallel()

	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	other := New(nil, nil, config.AuthConfig{
		JWTSecret:      "different-secret",
		AccessTokenTTL: time.Minute,
		Issuer:         svc.cfg.Issuer,
		Audience:       svc.cfg.Audience,
	})

	token, err := other.generateAccessToken(context.Background(), testUser(), time.Now().UTC())
	require.NoError(t, err)

	_, _, _, err = svc.validateAccessToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessToken_WrongAlg(t *testing.T) {
	t.Parallel()

	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	// alg=none отвергается до проверки подписи.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    svc.cfg.Issuer,
		Audience:  jwt.ClaimStrings(svc.cfg.Audience),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, _, err = svc.validateAccessToken(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessToken_WrongIssuerAudience(t *testing.T) {
	t.Parallel()

	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	cases := []struct {
		name     string
		issuer   string
		audience []string
	}{
		{"wrong_issuer", "someone-else", svc.cfg.Audience},
		{"wrong_audience", svc.cfg.Issuer, []string{"other-app"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			other := New(nil, nil, config.AuthConfig{
				JWTSecret:      svc.cfg.JWTSecret,
				AccessTokenTTL: time.Minute,
				Issuer:         tc.issuer,
				Audience:       tc.audience,
			})

			token, err := other.generateAccessToken(context.Background(), testUser(), time.Now().UTC())
			require.NoError(t, err)

			_, _, _, err = svc.validateAccessToken(token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	t.Parallel()

	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Выписываем токен "в прошлом" — далеко за пределами leeway.
	token, err := svc.generateAccessToken(context.Background(), testUser(), time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	_, _, _, err = svc.validateAccessToken(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestHashRefreshSecret(t *testing.T) {
	t.Parallel()

	h1 := hashRefreshSecret("secret-one")
	h2 := hashRefreshSecret("secret-one")
	h3 := hashRefreshSecret("secret-two")

	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
	require.NotContains(t, h1, "secret-one")
	// sha256 → base64url без паддинга: всегда 43 символа.
	require.Len(t, h1, 43)
}

func TestNewRefreshSecret_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		s, err := newRefreshSecret()
		require.NoError(t, err)
		require.NotEmpty(t, s)

		_, dup := seen[s]
		require.False(t, dup)
		seen[s] = struct{}{}
	}
}
