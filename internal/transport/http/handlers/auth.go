package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-cohort-auth/internal/metrics"
	"github.com/pribylovaa/go-cohort-auth/internal/service"
	"github.com/pribylovaa/go-cohort-auth/internal/transport/http/httperr"
)

type sessionResponse struct {
	AccessToken     string    `json:"access_token"`
	TokenType       string    `json:"token_type"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

// CreateSession выпускает новую пару токенов для уже аутентифицированного
// пользователя (проверку учётных данных выполняет вышестоящий сервис).
// Refresh-секрет уходит только в httpOnly-куку, в теле его нет.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, service.ErrEmptyToken)
		return
	}

	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		httperr.WriteError(w, r, service.ErrEmptyToken)
		return
	}

	pair, err := h.sessions.IssueSession(r.Context(), userID, clientIP(r), r.UserAgent())
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	metrics.SessionsIssued.Inc()
	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:     pair.AccessToken,
		TokenType:       "Bearer",
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

// Refresh ротирует refresh-токен из куки (либо тела) и выдаёт новую пару.
// При reuse/невалидном токене кука стирается: клиенту держаться за неё
// больше незачем.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshFromRequest(r)

	pair, err := h.sessions.Rotate(r.Context(), token, clientIP(r), r.UserAgent())
	if err != nil {
		metrics.Rotations.WithLabelValues(rotationResult(err)).Inc()
		if isAuthFailure(err) {
			h.clearRefreshCookie(w)
		}
		httperr.WriteError(w, r, err)
		return
	}

	metrics.Rotations.WithLabelValues(metrics.RotationOK).Inc()
	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:     pair.AccessToken,
		TokenType:       "Bearer",
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

// Logout отзывает текущую сессию. Идемпотентен: незнакомый или уже
// отозванный токен — тоже 204.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := refreshFromRequest(r)
	if token == "" {
		// Нечего отзывать — считаем выход состоявшимся.
		h.clearRefreshCookie(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.sessions.Logout(r.Context(), token); err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	metrics.Logouts.Inc()
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Validate проверяет access-токен. Невалидный/просроченный токен — это
// штатный ответ {"valid": false}, а не ошибка: эндпойнт зовут другие
// сервисы в hot-path и ветвление по кодам им ни к чему.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AccessToken string `json:"access_token"`
	}
	if err := decodeStrict(r, &in); err != nil || in.AccessToken == "" {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false})
		return
	}

	userID, email, role, err := h.sessions.ValidateAccessToken(r.Context(), in.AccessToken)
	if err != nil {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false})
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:  true,
		UserID: userID.String(),
		Email:  email,
		Role:   role,
	})
}

// rotationResult — метка result для метрики ротаций.
func rotationResult(err error) string {
	switch {
	case errors.Is(err, service.ErrReuseDetected):
		return metrics.RotationReuse
	case errors.Is(err, service.ErrTokenExpired):
		return metrics.RotationExpired
	case errors.Is(err, service.ErrEmptyToken),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrUserNotFound):
		return metrics.RotationInvalid
	default:
		return metrics.RotationError
	}
}

// isAuthFailure — ошибки ротации, после которых кука подлежит стиранию.
func isAuthFailure(err error) bool {
	for _, target := range []error{
		service.ErrEmptyToken,
		service.ErrInvalidToken,
		service.ErrTokenExpired,
		service.ErrReuseDetected,
		service.ErrUserNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
