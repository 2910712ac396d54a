package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-cohort-auth/internal/models"
	"github.com/pribylovaa/go-cohort-auth/internal/pkg/log"
	"github.com/pribylovaa/go-cohort-auth/internal/pkg/redact"
	"github.com/pribylovaa/go-cohort-auth/internal/storage"
)

// IssueSession открывает новое семейство сессий для уже аутентифицированного
// пользователя (проверка учётных данных — за вызывающей стороной) и выдаёт
// пару access+refresh. IP и user-agent сохраняются только для аудита.
func (s *Service) IssueSession(ctx context.Context, userID uuid.UUID, ip, userAgent string) (*models.TokenPair, error) {
	const op = "service.sessions.IssueSession"

	lg := log.From(ctx)

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	familyID := uuid.New()

	plain, _, err := s.createSession(ctx, userID, familyID, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	accessToken, err := s.generateAccessToken(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("session_issued",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("email", redact.Email(user.Email)),
		slog.String("family_id", familyID.String()),
	)

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// Rotate обменивает валидный refresh-секрет на новую пару токенов.
//
// Ветки в фиксированном порядке:
//  1. хэш не найден -> ErrInvalidToken;
//  2. сессия уже отозвана (ротацией или logout) -> отзыв всего семейства
//     и ErrReuseDetected; отзыв — часть возврата ошибки, не "после";
//  3. срок истёк -> ErrTokenExpired, семейство не трогаем;
//  4. валидна -> ротация: сначала сохранить новую сессию, затем отозвать
//     старую со ссылкой ReplacedBy.
//
// Порядок шага 4 несёт смысл: при падении между записями худший исход —
// старый токен ещё действует (клиент повторит ротацию), а не отозван без
// достижимой замены.
func (s *Service) Rotate(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error) {
	const op = "service.sessions.Rotate"

	lg := log.From(ctx)

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyToken)
	}

	hash := hashRefreshSecret(refreshToken)

	session, err := s.sessions.SessionByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
				slog.String("token", redact.Token()),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()

	if session.RevokedAt != nil {
		// Повторное предъявление неактуального токена: либо легитимный
		// клиент заменил его и реплеит устаревший, либо секрет перехвачен.
		// Различить стороны нельзя — гасим всю линию целиком.
		if err := s.sessions.RevokeFamily(ctx, session.FamilyID); err != nil {
			lg.Error("revoke_family_failed",
				slog.String("op", op),
				slog.String("family_id", session.FamilyID.String()),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		lg.Warn("refresh_reuse_detected",
			slog.String("op", op),
			slog.String("user_id", session.UserID.String()),
			slog.String("family_id", session.FamilyID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrReuseDetected)
	}

	if session.IsExpired(now) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", session.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	user, err := s.users.UserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_orphaned_session",
				slog.String("op", op),
				slog.String("user_id", session.UserID.String()),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Новая сессия в том же семействе — строго до отзыва старой.
	plain, next, err := s.createSession(ctx, session.UserID, session.FamilyID, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session.RevokeReplacedBy(now, next.ID)
	if _, err := s.sessions.SaveSession(ctx, session); err != nil {
		lg.Error("revoke_rotated_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := s.generateAccessToken(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// Logout отзывает одну предъявленную сессию (без семейства).
// Неизвестный или уже отозванный секрет — no-op: ответ не раскрывает,
// существовал ли токен.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.sessions.Logout"

	lg := log.From(ctx)

	if refreshToken == "" {
		return fmt.Errorf("%s: %w", op, ErrEmptyToken)
	}

	hash := hashRefreshSecret(refreshToken)

	session, err := s.sessions.SessionByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if session.RevokedAt != nil {
		return nil
	}

	session.Revoke(time.Now().UTC())
	if _, err := s.sessions.SaveSession(ctx, session); err != nil {
		lg.Error("logout_revoke_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("session_logged_out",
		slog.String("op", op),
		slog.String("user_id", session.UserID.String()),
	)

	return nil
}

// ValidateAccessToken проверяет access-токен и возвращает данные пользователя.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (uuid.UUID, string, string, error) {
	const op = "service.sessions.ValidateAccessToken"

	uid, email, role, err := s.validateAccessToken(accessToken)
	if err != nil {
		return uuid.Nil, "", "", fmt.Errorf("%s: %w", op, err)
	}

	return uid, email, role, nil
}
