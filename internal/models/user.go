package models

import "github.com/google/uuid"

// User — принципал платформы; источник клеймов access-токена.
// Проверка учётных данных остаётся за внешним сервисом, здесь пользователь
// нужен только для чтения при выпуске и ротации токенов.
type User struct {
	ID    uuid.UUID
	Email string
	Role  string
}
