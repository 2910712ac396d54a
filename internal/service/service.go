// service содержит бизнес-логику управления refresh-сессиями:
// выпуск пары токенов при логине, ротацию refresh-токена с детекцией
// повторного использования, отзыв по logout и проверку access-токенов.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.SessionStorage) потокобезопасно.
//   - Явных блокировок нет: требуемая атомарность спущена в примитивы
//     обновления хранилища, гонка двух ротаций одного секрета разрешается
//     через ветку reuse при последующем предъявлении устаревшего хэша.
//   - Ошибки возвращаются и далее маппятся транспортом на HTTP-статусы
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/pribylovaa/go-cohort-auth/internal/config"
	"github.com/pribylovaa/go-cohort-auth/internal/storage"
)

var (
	// ErrEmptyToken — пустой refresh-секрет на входе.
	// Транспорт: HTTP 400.
	ErrEmptyToken = errors.New("empty refresh token")

	// ErrInvalidToken — токен неизвестен хранилищу: никогда не существовал,
	// был удалён или вытеснен по TTL; различить эти случаи вызывающая
	// сторона не может и не должна. Транспорт: HTTP 401.
	ErrInvalidToken = errors.New("invalid refresh token")

	// ErrReuseDetected — предъявлен уже отозванный (ротированный либо
	// вышедший по logout) refresh-токен. Сигнал компрометации: к моменту
	// возврата ошибки всё семейство сессий уже отозвано.
	// Транспорт: HTTP 403, отличимо от обычного 401.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrTokenExpired — срок действия токена истёк. Просрочка — не признак
	// компрометации, семейство не трогаем. Транспорт: HTTP 401.
	ErrTokenExpired = errors.New("refresh token expired")

	// ErrUserNotFound — сессия-сирота удалённой учётной записи.
	// Транспорт: HTTP 401.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenCollision — исчерпаны попытки сгенерировать уникальный
	// refresh-секрет (крайне редкие коллизии хэша при сохранении).
	// Транспорт: HTTP 500.
	ErrTokenCollision = errors.New("refresh token collision")
)

// Service реализует протокол выпуска и ротации refresh-сессий.
type Service struct {
	sessions storage.SessionStorage
	users    storage.UserStorage
	cfg      config.AuthConfig
}

// New создаёт новый экземпляр Service.
func New(sessions storage.SessionStorage, users storage.UserStorage, cfg config.AuthConfig) *Service {
	return &Service{
		sessions: sessions,
		users:    users,
		cfg:      cfg,
	}
}
