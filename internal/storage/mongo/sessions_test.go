package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/pribylovaa/go-cohort-auth/internal/models"
	"github.com/pribylovaa/go-cohort-auth/internal/storage"
	"github.com/pribylovaa/go-cohort-auth/internal/storage/storagetest"
)

// TestIntegration_Contract — общий контрактный набор хранилища.
func TestIntegration_Contract(t *testing.T) {
	skipIfNoIntegration(t)

	storagetest.Run(t, func(t *testing.T) storage.SessionStorage {
		return newTestStore(t)
	})
}

func TestIntegration_EnsureIndexes(t *testing.T) {
	st := newTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	cur, err := st.sessions.Indexes().List(ctx)
	require.NoError(t, err)

	var specs []bson.M
	require.NoError(t, cur.All(ctx, &specs))

	names := make(map[string]bson.M, len(specs))
	for _, s := range specs {
		names[s["name"].(string)] = s
	}

	require.Contains(t, names, "uniq_token_hash")
	require.Equal(t, true, names["uniq_token_hash"]["unique"])
	require.Contains(t, names, "family_id")
	require.Contains(t, names, "user_id")
	require.Contains(t, names, "ttl_expires_at")
}

func TestIntegration_UserByID(t *testing.T) {
	st := newTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	uid := uuid.New()
	_, err := st.users.InsertOne(ctx, bson.D{
		{Key: "user_id", Value: uid.String()},
		{Key: "email", Value: "student@example.com"},
		{Key: "role", Value: "student"},
	})
	require.NoError(t, err)

	got, err := st.UserByID(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, uid, got.ID)
	require.Equal(t, "student@example.com", got.Email)
	require.Equal(t, "student", got.Role)

	_, err = st.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_UpdateOnlyTouchesRevocationFields(t *testing.T) {
	st := newTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	now := time.Now().UTC()
	saved, err := st.SaveSession(ctx, &models.RefreshSession{
		UserID:    uuid.New(),
		TokenHash: "hash-immutable",
		FamilyID:  uuid.New(),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	// Попытка протащить другие значения через update не должна менять
	// неизменяемые поля — обновляются только revoked_at/replaced_by.
	mutated := *saved
	mutated.TokenHash = "tampered"
	mutated.RevokeReplacedBy(now, "next-id")

	_, err = st.SaveSession(ctx, &mutated)
	require.NoError(t, err)

	got, err := st.SessionByID(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, saved.TokenHash, got.TokenHash)
	require.NotNil(t, got.RevokedAt)
	require.Equal(t, "next-id", got.ReplacedBy)
}
