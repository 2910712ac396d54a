package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/pribylovaa/go-cohort-auth/internal/models"
	"github.com/pribylovaa/go-cohort-auth/internal/storage"
)

// sessionDoc — схема документа sessions.
// UUID храним строками, чтобы не зависеть от bson-регистра кодеков.
// token_hash никогда не попадает в клиентские ответы — это внутренняя схема.
type sessionDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserID     string             `bson:"user_id"`
	TokenHash  string             `bson:"token_hash"`
	FamilyID   string             `bson:"family_id"`
	IssuedAt   time.Time          `bson:"issued_at"`
	ExpiresAt  time.Time          `bson:"expires_at"`
	RevokedAt  *time.Time         `bson:"revoked_at"`
	ReplacedBy string             `bson:"replaced_by"`
	IP         string             `bson:"ip,omitempty"`
	UserAgent  string             `bson:"user_agent,omitempty"`
}

// MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func toDoc(s *models.RefreshSession) (*sessionDoc, error) {
	doc := &sessionDoc{
		UserID:     s.UserID.String(),
		TokenHash:  s.TokenHash,
		FamilyID:   s.FamilyID.String(),
		IssuedAt:   toMS(s.IssuedAt),
		ExpiresAt:  toMS(s.ExpiresAt),
		ReplacedBy: s.ReplacedBy,
		IP:         s.IP,
		UserAgent:  s.UserAgent,
	}

	if s.RevokedAt != nil {
		t := toMS(*s.RevokedAt)
		doc.RevokedAt = &t
	}

	if s.ID != "" {
		oid, err := primitive.ObjectIDFromHex(s.ID)
		if err != nil {
			return nil, err
		}
		doc.ID = oid
	}

	return doc, nil
}

func fromDoc(doc *sessionDoc) (*models.RefreshSession, error) {
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}

	familyID, err := uuid.Parse(doc.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("parse family_id: %w", err)
	}

	s := &models.RefreshSession{
		ID:         doc.ID.Hex(),
		UserID:     userID,
		TokenHash:  doc.TokenHash,
		FamilyID:   familyID,
		IssuedAt:   doc.IssuedAt.UTC(),
		ExpiresAt:  doc.ExpiresAt.UTC(),
		ReplacedBy: doc.ReplacedBy,
		IP:         doc.IP,
		UserAgent:  doc.UserAgent,
	}

	if doc.RevokedAt != nil {
		t := doc.RevokedAt.UTC()
		s.RevokedAt = &t
	}

	return s, nil
}

// SaveSession сохраняет сессию: вставка при пустом ID, иначе обновление
// изменяемых полей по ID. Дубль token_hash -> storage.ErrAlreadyExists.
func (m *Mongo) SaveSession(ctx context.Context, session *models.RefreshSession) (*models.RefreshSession, error) {
	const op = "storage/mongo/SaveSession"

	doc, err := toDoc(session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if session.ID == "" {
		res, err := m.sessions.InsertOne(ctx, doc)
		if err != nil {
			if mongodriver.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
			}

			return nil, fmt.Errorf("%s: insert: %w", op, err)
		}

		oid, ok := res.InsertedID.(primitive.ObjectID)
		if !ok {
			// Mongo всегда возвращает ObjectID.
			return nil, fmt.Errorf("%s: inserted id type", op)
		}

		out := *session
		out.ID = oid.Hex()
		return &out, nil
	}

	// Изменяемыми после создания остаются только revoked_at/replaced_by.
	res, err := m.sessions.UpdateByID(ctx, doc.ID, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "revoked_at", Value: doc.RevokedAt},
			{Key: "replaced_by", Value: doc.ReplacedBy},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: update: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	out := *session
	return &out, nil
}

// SessionByID возвращает сессию по идентификатору.
// Некорректный формат id трактуется как «нет такой записи».
func (m *Mongo) SessionByID(ctx context.Context, id string) (*models.RefreshSession, error) {
	const op = "storage/mongo/SessionByID"

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	var doc sessionDoc
	if err := m.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := fromDoc(&doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// SessionByTokenHash находит сессию по хэшу секрета (уникальный индекс).
func (m *Mongo) SessionByTokenHash(ctx context.Context, hash string) (*models.RefreshSession, error) {
	const op = "storage/mongo/SessionByTokenHash"

	var doc sessionDoc
	if err := m.sessions.FindOne(ctx, bson.D{{Key: "token_hash", Value: hash}}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := fromDoc(&doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// DeleteSession удаляет сессию; false — записи уже не было.
func (m *Mongo) DeleteSession(ctx context.Context, id string) (bool, error) {
	const op = "storage/mongo/DeleteSession"

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	res, err := m.sessions.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return res.DeletedCount > 0, nil
}

// RevokeFamily проставляет revoked_at всем неотозванным сессиям семейства.
// UpdateMany атомарен по каждому документу: гонка с параллельной ротацией
// оставит свежесозданную сессию либо уже отозванной, либо видимой
// следующему предъявлению как revoked — обе ветки безопасны.
func (m *Mongo) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	const op = "storage/mongo/RevokeFamily"

	return m.revokeWhere(ctx, op, bson.D{{Key: "family_id", Value: familyID.String()}})
}

// RevokeAllForUser проставляет revoked_at всем неотозванным сессиям пользователя.
func (m *Mongo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	const op = "storage/mongo/RevokeAllForUser"

	return m.revokeWhere(ctx, op, bson.D{{Key: "user_id", Value: userID.String()}})
}

func (m *Mongo) revokeWhere(ctx context.Context, op string, filter bson.D) error {
	filter = append(filter, bson.E{Key: "revoked_at", Value: nil})

	_, err := m.sessions.UpdateMany(ctx, filter, bson.D{
		{Key: "$set", Value: bson.D{{Key: "revoked_at", Value: toMS(time.Now())}}},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
