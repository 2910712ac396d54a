// redis — key-value бэкенд хранилища refresh-сессий поверх Redis.
//
// Раскладка ключей (префикс по умолчанию "auth:rs:"):
//   - {prefix}{id}          — JSON-блоб сессии, TTL до expires_at;
//   - {prefix}hash:{hash}   — указатель хэш->id (SET NX, TTL как у блоба);
//   - {prefix}family:{fid}  — множество id сессий семейства;
//   - {prefix}user:{uid}    — множество id сессий пользователя.
//
// TTL множества подтягивается к самому дальнему expires_at его членов,
// поэтому член множества может пережить блоб, на который указывает.
// Любое чтение через вторичный индекс обязано лечить такой висячий
// указатель: отсутствие блоба — это "не найдено" плюс удаление ссылки.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-cohort-auth/internal/storage"
)

const defaultPrefix = "auth:rs:"

// minTTL — нижняя граница TTL записи: сессию с прошедшим expires_at
// всё ещё нужно уметь прочитать, чтобы ветка "просрочено" была отличима
// от "не найдено".
const minTTL = time.Second

// Redis — адаптер клиента и раскладки ключей.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:rs:".
func New(ctx context.Context, redisURL, prefix string) (*Redis, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{rdb: rdb, prefix: prefix}, nil
}

// NewWithClient оборачивает готовый клиент (тесты, нестандартные топологии).
func NewWithClient(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Redis{rdb: rdb, prefix: prefix}
}

// Close закрывает клиент Redis.
func (r *Redis) Close(_ context.Context) error {
	return r.rdb.Close()
}

func (r *Redis) sessionKey(id string) string { return r.prefix + id }
func (r *Redis) hashKey(hash string) string  { return r.prefix + "hash:" + hash }
func (r *Redis) familyKey(fid string) string { return r.prefix + "family:" + fid }
func (r *Redis) userKey(uid string) string   { return r.prefix + "user:" + uid }

// ttlUntil возвращает TTL до expiresAt, но не меньше minTTL.
func ttlUntil(expiresAt time.Time, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < minTTL {
		ttl = minTTL
	}

	return ttl
}

// Проверка на соответствие интерфейсу хранилища сессий.
var _ storage.Storage = (*Redis)(nil)
