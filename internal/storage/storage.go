package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-cohort-auth/internal/models"
)

var (
	// ErrNotFound — запись не найдена (сессия/пользователь).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности token_hash.
	// Коллизия хэшей — баг хранилища или генератора, а не протокольный случай.
	ErrAlreadyExists = errors.New("already exists")
)

// SessionStorage выполняет операции над refresh-сессиями.
// Оба бэкенда (mongo и redis) обязаны давать одинаковую семантику;
// общий контрактный набор тестов — в пакете storagetest.
type SessionStorage interface {
	// SaveSession сохраняет сессию: вставка с назначением ID при пустом ID,
	// иначе обновление изменяемых полей (RevokedAt/ReplacedBy) по ID.
	// Возвращает сохранённую сессию; повторный вызов с тем же ID безопасен.
	SaveSession(ctx context.Context, session *models.RefreshSession) (*models.RefreshSession, error)
	// SessionByID находит сессию по идентификатору.
	SessionByID(ctx context.Context, id string) (*models.RefreshSession, error)
	// SessionByTokenHash находит сессию по хэшу секрета.
	// Горячий путь каждой ротации — под индексом/ключом, не скан.
	SessionByTokenHash(ctx context.Context, hash string) (*models.RefreshSession, error)
	// DeleteSession удаляет сессию; true — запись существовала.
	DeleteSession(ctx context.Context, id string) (bool, error)
	// RevokeFamily проставляет RevokedAt всем неотозванным сессиям семейства,
	// включая уже просроченные, но ещё присутствующие записи.
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error
	// RevokeAllForUser — то же, но по владельцу ("выйти везде").
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

// UserStorage читает пользователей для наполнения клеймов access-токена.
// Запись/аутентификация пользователей — вне этого сервиса.
type UserStorage interface {
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Storage задает контракт работы с хранилищем сессий.
type Storage interface {
	SessionStorage
	Close(ctx context.Context) error
}
