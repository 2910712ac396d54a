package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-cohort-auth/internal/config"
	"github.com/pribylovaa/go-cohort-auth/internal/models"
	"github.com/pribylovaa/go-cohort-auth/internal/service"
)

// RefreshCookie — имя httpOnly-куки с refresh-секретом.
const RefreshCookie = "refresh_token"

// cookiePath ограничивает куку auth-эндпойнтами: остальному приложению
// refresh-секрет не нужен и видеть его оно не должно.
const cookiePath = "/auth"

// Sessions — контракт сервисного слоя, нужный хендлерам.
// Сужение до интерфейса упрощает httptest-тесты.
type Sessions interface {
	IssueSession(ctx context.Context, userID uuid.UUID, ip, userAgent string) (*models.TokenPair, error)
	Rotate(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateAccessToken(ctx context.Context, accessToken string) (uuid.UUID, string, string, error)
}

var _ Sessions = (*service.Service)(nil)

// Handlers агрегирует зависимости auth-эндпойнтов.
type Handlers struct {
	sessions Sessions
	auth     config.AuthConfig
}

func New(sessions Sessions, auth config.AuthConfig) *Handlers {
	return &Handlers{
		sessions: sessions,
		auth:     auth,
	}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через httperr.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// setRefreshCookie выставляет refresh-секрет httpOnly-кукой.
// SameSite=Strict: refresh дергает только наш фронт с нашего origin.
func (h *Handlers) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     cookiePath,
		MaxAge:   int(h.auth.RefreshTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.auth.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie стирает куку (MaxAge<0 удаляет её на клиенте).
func (h *Handlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.auth.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshFromRequest достаёт refresh-секрет: сначала кука, затем тело
// запроса (для не-браузерных клиентов).
func refreshFromRequest(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookie); err == nil && c.Value != "" {
		return c.Value
	}

	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeStrict(r, &in); err != nil {
		return ""
	}
	return in.RefreshToken
}

// clientIP — адрес клиента без порта; X-Forwarded-For не разбираем,
// сервис стоит за доверенным gateway, который кладёт реальный адрес
// в RemoteAddr через proxy-protocol.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
