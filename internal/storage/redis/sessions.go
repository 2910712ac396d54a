package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-cohort-auth/internal/models"
	"github.com/pribylovaa/go-cohort-auth/internal/storage"
)

// sessionBlob — сериализованное представление сессии в значении ключа.
// token_hash живёт только внутри blob и ключа-указателя, наружу не отдаётся.
type sessionBlob struct {
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"token_hash"`
	FamilyID   string     `json:"family_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy string     `json:"replaced_by,omitempty"`
	IP         string     `json:"ip,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
}

func toBlob(s *models.RefreshSession) *sessionBlob {
	b := &sessionBlob{
		UserID:     s.UserID.String(),
		TokenHash:  s.TokenHash,
		FamilyID:   s.FamilyID.String(),
		IssuedAt:   s.IssuedAt.UTC(),
		ExpiresAt:  s.ExpiresAt.UTC(),
		ReplacedBy: s.ReplacedBy,
		IP:         s.IP,
		UserAgent:  s.UserAgent,
	}

	if s.RevokedAt != nil {
		t := s.RevokedAt.UTC()
		b.RevokedAt = &t
	}

	return b
}

func fromBlob(id string, b *sessionBlob) (*models.RefreshSession, error) {
	userID, err := uuid.Parse(b.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}

	familyID, err := uuid.Parse(b.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("parse family_id: %w", err)
	}

	s := &models.RefreshSession{
		ID:         id,
		UserID:     userID,
		TokenHash:  b.TokenHash,
		FamilyID:   familyID,
		IssuedAt:   b.IssuedAt.UTC(),
		ExpiresAt:  b.ExpiresAt.UTC(),
		ReplacedBy: b.ReplacedBy,
		IP:         b.IP,
		UserAgent:  b.UserAgent,
	}

	if b.RevokedAt != nil {
		t := b.RevokedAt.UTC()
		s.RevokedAt = &t
	}

	return s, nil
}

// getBlob читает и декодирует блоб сессии; redis.Nil -> storage.ErrNotFound.
func (r *Redis) getBlob(ctx context.Context, id string) (*sessionBlob, error) {
	raw, err := r.rdb.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	var b sessionBlob
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("unmarshal session blob: %w", err)
	}

	return &b, nil
}

// SaveSession сохраняет сессию.
//
// Вставка: новый id, указатель hash->id через SET NX (уникальность хэша),
// затем блоб и членство в индексных множествах одним конвейером. TTL
// множества только расширяется (до самого дальнего expires_at члена).
// Обновление: перечитывает блоб и переписывает только revoked_at/replaced_by,
// сохраняя остаточный TTL ключа.
func (r *Redis) SaveSession(ctx context.Context, session *models.RefreshSession) (*models.RefreshSession, error) {
	const op = "storage/redis/SaveSession"

	if session.ID == "" {
		id := uuid.NewString()
		ttl := ttlUntil(session.ExpiresAt, time.Now().UTC())

		ok, err := r.rdb.SetNX(ctx, r.hashKey(session.TokenHash), id, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		raw, err := json.Marshal(toBlob(session))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		familyKey := r.familyKey(session.FamilyID.String())
		userKey := r.userKey(session.UserID.String())

		pipe := r.rdb.TxPipeline()
		pipe.Set(ctx, r.sessionKey(id), raw, ttl)
		pipe.SAdd(ctx, familyKey, id)
		pipe.ExpireNX(ctx, familyKey, ttl)
		pipe.ExpireGT(ctx, familyKey, ttl)
		pipe.SAdd(ctx, userKey, id)
		pipe.ExpireNX(ctx, userKey, ttl)
		pipe.ExpireGT(ctx, userKey, ttl)

		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out := *session
		out.ID = id
		return &out, nil
	}

	b, err := r.getBlob(ctx, session.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Изменяемыми после создания остаются только revoked_at/replaced_by.
	if session.RevokedAt != nil {
		t := session.RevokedAt.UTC()
		b.RevokedAt = &t
	}
	b.ReplacedBy = session.ReplacedBy

	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := r.rdb.Set(ctx, r.sessionKey(session.ID), raw, redis.KeepTTL).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := *session
	return &out, nil
}

// SessionByID возвращает сессию по идентификатору.
func (r *Redis) SessionByID(ctx context.Context, id string) (*models.RefreshSession, error) {
	const op = "storage/redis/SessionByID"

	b, err := r.getBlob(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := fromBlob(id, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// SessionByTokenHash находит сессию по хэшу секрета через указатель hash->id.
// Висячий указатель (блоб уже вытеснен по TTL) удаляется по пути,
// результат — "не найдено".
func (r *Redis) SessionByTokenHash(ctx context.Context, hash string) (*models.RefreshSession, error) {
	const op = "storage/redis/SessionByTokenHash"

	id, err := r.rdb.Get(ctx, r.hashKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	b, err := r.getBlob(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Самолечение: указатель пережил блоб.
			_ = r.rdb.Del(ctx, r.hashKey(hash)).Err()
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := fromBlob(id, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// DeleteSession удаляет блоб вместе со всеми ссылками на него.
func (r *Redis) DeleteSession(ctx context.Context, id string) (bool, error) {
	const op = "storage/redis/DeleteSession"

	b, err := r.getBlob(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.sessionKey(id))
	pipe.Del(ctx, r.hashKey(b.TokenHash))
	pipe.SRem(ctx, r.familyKey(b.FamilyID), id)
	pipe.SRem(ctx, r.userKey(b.UserID), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// RevokeFamily проставляет revoked_at всем живым сессиям семейства.
func (r *Redis) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	const op = "storage/redis/RevokeFamily"

	return r.revokeSet(ctx, op, r.familyKey(familyID.String()))
}

// RevokeAllForUser проставляет revoked_at всем живым сессиям пользователя.
func (r *Redis) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	const op = "storage/redis/RevokeAllForUser"

	return r.revokeSet(ctx, op, r.userKey(userID.String()))
}

// revokeSet обходит индексное множество и отзывает каждого живого члена.
// Члены без блоба (вытеснен по TTL) удаляются из множества по пути —
// это и удерживает амортизированную стоимость обхода при оттоке сессий.
func (r *Redis) revokeSet(ctx context.Context, op, setKey string) error {
	ids, err := r.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()

	for _, id := range ids {
		b, err := r.getBlob(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Самолечение: член множества пережил блоб.
				_ = r.rdb.SRem(ctx, setKey, id).Err()
				continue
			}

			return fmt.Errorf("%s: %w", op, err)
		}

		if b.RevokedAt != nil {
			continue
		}

		t := now
		b.RevokedAt = &t

		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := r.rdb.Set(ctx, r.sessionKey(id), raw, redis.KeepTTL).Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}
