package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-cohort-auth/internal/config"
	"github.com/pribylovaa/go-cohort-auth/internal/models"
	"github.com/pribylovaa/go-cohort-auth/internal/service"
)

// stubSessions — ручной стаб сервисного слоя: каждый тест подставляет
// только нужные ему функции.
type stubSessions struct {
	issue    func(ctx context.Context, userID uuid.UUID, ip, ua string) (*models.TokenPair, error)
	rotate   func(ctx context.Context, token, ip, ua string) (*models.TokenPair, error)
	logout   func(ctx context.Context, token string) error
	validate func(ctx context.Context, token string) (uuid.UUID, string, string, error)
}

func (s *stubSessions) IssueSession(ctx context.Context, userID uuid.UUID, ip, ua string) (*models.TokenPair, error) {
	return s.issue(ctx, userID, ip, ua)
}

func (s *stubSessions) Rotate(ctx context.Context, token, ip, ua string) (*models.TokenPair, error) {
	return s.rotate(ctx, token, ip, ua)
}

func (s *stubSessions) Logout(ctx context.Context, token string) error {
	return s.logout(ctx, token)
}

func (s *stubSessions) ValidateAccessToken(ctx context.Context, token string) (uuid.UUID, string, string, error) {
	return s.validate(ctx, token)
}

func newHandlers(s Sessions) *Handlers {
	return New(s, config.AuthConfig{
		RefreshTokenTTL: 24 * time.Hour,
		CookieSecure:    true,
	})
}

func testPair() *models.TokenPair {
	return &models.TokenPair{
		AccessToken:     "access-jwt",
		RefreshToken:    "fresh-secret",
		AccessExpiresAt: time.Now().Add(15 * time.Minute).UTC(),
	}
}

func findCookie(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCreateSession_OK_SetsCookie(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	stub := &stubSessions{
		issue: func(_ context.Context, id uuid.UUID, ip, ua string) (*models.TokenPair, error) {
			require.Equal(t, userID, id)
			return testPair(), nil
		},
	}

	body := fmt.Sprintf(`{"user_id":%q}`, userID)
	req := httptest.NewRequest(http.MethodPost, "/auth/sessions", strings.NewReader(body))
	rr := httptest.NewRecorder()

	newHandlers(stub).CreateSession(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var out sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "access-jwt", out.AccessToken)
	require.Equal(t, "Bearer", out.TokenType)
	// Refresh-секрет не утекает в тело.
	require.NotContains(t, rr.Body.String(), "fresh-secret")

	c := findCookie(t, rr, RefreshCookie)
	require.NotNil(t, c)
	require.Equal(t, "fresh-secret", c.Value)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)
	require.Equal(t, "/auth", c.Path)
	require.Equal(t, int((24 * time.Hour).Seconds()), c.MaxAge)
}

func TestCreateSession_BadBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"not_json", "{"},
		{"unknown_field", `{"user_id":"x","extra":1}`},
		{"bad_uuid", `{"user_id":"not-a-uuid"}`},
	}

	h := newHandlers(&stubSessions{})
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/auth/sessions", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.CreateSession(rr, req)
			require.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestRefresh_OK_RotatesCookie(t *testing.T) {
	t.Parallel()

	stub := &stubSessions{
		rotate: func(_ context.Context, token, ip, ua string) (*models.TokenPair, error) {
			require.Equal(t, "old-secret", token)
			return testPair(), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "old-secret"})
	rr := httptest.NewRecorder()

	newHandlers(stub).Refresh(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	c := findCookie(t, rr, RefreshCookie)
	require.NotNil(t, c)
	require.Equal(t, "fresh-secret", c.Value)
}

func TestRefresh_BodyFallback(t *testing.T) {
	t.Parallel()

	stub := &stubSessions{
		rotate: func(_ context.Context, token, ip, ua string) (*models.TokenPair, error) {
			require.Equal(t, "from-body", token)
			return testPair(), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh",
		strings.NewReader(`{"refresh_token":"from-body"}`))
	rr := httptest.NewRecorder()

	newHandlers(stub).Refresh(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRefresh_ReuseDetected_403_ClearsCookie(t *testing.T) {
	t.Parallel()

	stub := &stubSessions{
		rotate: func(_ context.Context, token, ip, ua string) (*models.TokenPair, error) {
			return nil, fmt.Errorf("service.sessions.Rotate: %w", service.ErrReuseDetected)
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "stolen"})
	rr := httptest.NewRecorder()

	newHandlers(stub).Refresh(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "reuse_detected")

	c := findCookie(t, rr, RefreshCookie)
	require.NotNil(t, c)
	require.Empty(t, c.Value)
	require.Negative(t, c.MaxAge)
}

func TestRefresh_Expired_401(t *testing.T) {
	t.Parallel()

	stub := &stubSessions{
		rotate: func(_ context.Context, token, ip, ua string) (*models.TokenPair, error) {
			return nil, service.ErrTokenExpired
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "stale"})
	rr := httptest.NewRecorder()

	newHandlers(stub).Refresh(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "token_expired")
}

func TestRefresh_StorageError_500_KeepsCookie(t *testing.T) {
	t.Parallel()

	stub := &stubSessions{
		rotate: func(_ context.Context, token, ip, ua string) (*models.TokenPair, error) {
			return nil, fmt.Errorf("storage down")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "fine"})
	rr := httptest.NewRecorder()

	newHandlers(stub).Refresh(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	// Транзиентная ошибка — кука остаётся, клиент может повторить.
	require.Nil(t, findCookie(t, rr, RefreshCookie))
}

func TestLogout_OK_204(t *testing.T) {
	t.Parallel()

	var got string
	stub := &stubSessions{
		logout: func(_ context.Context, token string) error {
			got = token
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "bye"})
	rr := httptest.NewRecorder()

	newHandlers(stub).Logout(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "bye", got)

	c := findCookie(t, rr, RefreshCookie)
	require.NotNil(t, c)
	require.Negative(t, c.MaxAge)
}

func TestLogout_NoCookie_Still204(t *testing.T) {
	t.Parallel()

	// Стаб без logout-функции: вызов был бы паникой.
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rr := httptest.NewRecorder()

	newHandlers(&stubSessions{}).Logout(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	stub := &stubSessions{
		validate: func(_ context.Context, token string) (uuid.UUID, string, string, error) {
			require.Equal(t, "good-jwt", token)
			return userID, "student@example.com", "student", nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/validate",
		strings.NewReader(`{"access_token":"good-jwt"}`))
	rr := httptest.NewRecorder()

	newHandlers(stub).Validate(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var out validateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.True(t, out.Valid)
	require.Equal(t, userID.String(), out.UserID)
	require.Equal(t, "student", out.Role)
}

func TestValidate_InvalidToken_ValidFalse(t *testing.T) {
	t.Parallel()

	stub := &stubSessions{
		validate: func(_ context.Context, token string) (uuid.UUID, string, string, error) {
			return uuid.Nil, "", "", service.ErrInvalidToken
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/validate",
		strings.NewReader(`{"access_token":"bad"}`))
	rr := httptest.NewRecorder()

	newHandlers(stub).Validate(rr, req)

	// Невалидный токен — не ошибка HTTP, а {"valid":false}.
	require.Equal(t, http.StatusOK, rr.Code)

	var out validateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.False(t, out.Valid)
	require.Empty(t, out.UserID)
}

func TestValidate_EmptyBody_ValidFalse(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/auth/validate", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	newHandlers(&stubSessions{}).Validate(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"valid":false`)
}
