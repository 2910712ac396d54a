package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshSession — одна выданная refresh-сессия.
//
// Описание:
//   - ID назначается хранилищем при первом сохранении, не вызывающей стороной;
//   - TokenHash — односторонний хэш секрета, выданного клиенту; сам секрет
//     нигде не сохраняется и не логируется;
//   - FamilyID объединяет все сессии, порождённые ротациями одного логина;
//   - RevokedAt/ReplacedBy — единственные изменяемые поля после создания.
type RefreshSession struct {
	// ID — идентификатор записи в хранилище.
	ID string
	// UserID — владелец сессии; у пользователя может быть много семейств.
	UserID uuid.UUID
	// TokenHash — sha256 секрета в base64url; ключ поиска при ротации.
	TokenHash string
	// FamilyID — семейство сессий одного логина; неизменен по всей цепочке.
	FamilyID uuid.UUID
	// IssuedAt — момент выпуска (UTC).
	IssuedAt time.Time
	// ExpiresAt — IssuedAt + срок жизни refresh-токена (UTC).
	ExpiresAt time.Time
	// RevokedAt — момент отзыва; nil, пока сессия активна.
	RevokedAt *time.Time
	// ReplacedBy — ID сессии, пришедшей на смену при ротации;
	// пустая строка для отзыва по logout/компрометации.
	ReplacedBy string
	// IP и UserAgent — метаданные выпуска для аудита; в валидации не участвуют.
	IP        string
	UserAgent string
}

// IsValid сообщает, может ли сессия авторизовать ротацию в момент now:
// не отозвана и срок не истёк.
func (s *RefreshSession) IsValid(now time.Time) bool {
	return s.RevokedAt == nil && !now.After(s.ExpiresAt)
}

// IsExpired сообщает, истёк ли срок жизни сессии в момент now.
func (s *RefreshSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Revoke отзывает сессию без указания преемника (logout, отзыв семейства).
// Отзыв монотонный: повторный вызов не меняет ни RevokedAt, ни ReplacedBy.
func (s *RefreshSession) Revoke(now time.Time) {
	if s.RevokedAt != nil {
		return
	}

	t := now.UTC()
	s.RevokedAt = &t
}

// RevokeReplacedBy отзывает сессию как вытесненную ротацией: фиксирует
// преемника replacedBy. Для уже отозванной сессии — no-op.
func (s *RefreshSession) RevokeReplacedBy(now time.Time, replacedBy string) {
	if s.RevokedAt != nil {
		return
	}

	t := now.UTC()
	s.RevokedAt = &t
	s.ReplacedBy = replacedBy
}
