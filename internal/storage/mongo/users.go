package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/pribylovaa/go-cohort-auth/internal/models"
	"github.com/pribylovaa/go-cohort-auth/internal/storage"
)

// userDoc — проекция документа users платформы: только поля,
// нужные для клеймов access-токена. Записью пользователей этот сервис
// не занимается.
type userDoc struct {
	ID    string `bson:"user_id"`
	Email string `bson:"email"`
	Role  string `bson:"role"`
}

// UserByID находит пользователя по ID.
func (m *Mongo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage/mongo/UserByID"

	var doc userDoc
	if err := m.users.FindOne(ctx, bson.D{{Key: "user_id", Value: id.String()}}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	uid, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: parse user_id: %w", op, err)
	}

	return &models.User{
		ID:    uid,
		Email: doc.Email,
		Role:  doc.Role,
	}, nil
}
