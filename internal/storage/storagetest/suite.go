// storagetest — общий контрактный набор тестов хранилища сессий.
//
// Оба бэкенда (mongo и redis) обязаны проходить его без адаптаций:
// пакет закрепляет семантику контракта storage.SessionStorage, а не
// детали конкретной реализации. Бэкенд-специфичные свойства
// (самолечение индексов в redis, TTL-индекс в mongo) проверяются
// в тестах самих бэкендов.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-cohort-auth/internal/models"
	"github.com/pribylovaa/go-cohort-auth/internal/storage"
)

// Factory создаёт чистое хранилище для одного теста.
type Factory func(t *testing.T) storage.SessionStorage

// timeEps — допуск на сравнение времён: MongoDB хранит миллисекунды.
const timeEps = 10 * time.Millisecond

func seedSession(userID, familyID uuid.UUID, hash string, ttl time.Duration) *models.RefreshSession {
	now := time.Now().UTC()
	return &models.RefreshSession{
		UserID:    userID,
		TokenHash: hash,
		FamilyID:  familyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		IP:        "192.0.2.10",
		UserAgent: "contract-suite/1.0",
	}
}

func requireSameSession(t *testing.T, want, got *models.RefreshSession) {
	t.Helper()
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.UserID, got.UserID)
	require.Equal(t, want.TokenHash, got.TokenHash)
	require.Equal(t, want.FamilyID, got.FamilyID)
	require.WithinDuration(t, want.IssuedAt, got.IssuedAt, timeEps)
	require.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, timeEps)
	require.Equal(t, want.ReplacedBy, got.ReplacedBy)
	require.Equal(t, want.IP, got.IP)
	require.Equal(t, want.UserAgent, got.UserAgent)

	if want.RevokedAt == nil {
		require.Nil(t, got.RevokedAt)
	} else {
		require.NotNil(t, got.RevokedAt)
		require.WithinDuration(t, *want.RevokedAt, *got.RevokedAt, timeEps)
	}
}

// Run прогоняет контрактный набор против фабрики хранилища.
func Run(t *testing.T, newStore Factory) {
	t.Run("save_assigns_id_and_roundtrips", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		in := seedSession(uuid.New(), uuid.New(), "hash-roundtrip", time.Hour)
		saved, err := st.SaveSession(ctx, in)
		require.NoError(t, err)
		require.NotEmpty(t, saved.ID)

		got, err := st.SessionByTokenHash(ctx, "hash-roundtrip")
		require.NoError(t, err)
		want := *in
		want.ID = saved.ID
		requireSameSession(t, &want, got)

		byID, err := st.SessionByID(ctx, saved.ID)
		require.NoError(t, err)
		requireSameSession(t, &want, byID)
	})

	t.Run("token_hash_unique", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		_, err := st.SaveSession(ctx, seedSession(uuid.New(), uuid.New(), "hash-dup", time.Hour))
		require.NoError(t, err)

		_, err = st.SaveSession(ctx, seedSession(uuid.New(), uuid.New(), "hash-dup", time.Hour))
		require.Error(t, err)
		require.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("lookup_miss", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		_, err := st.SessionByTokenHash(ctx, "no-such-hash")
		require.ErrorIs(t, err, storage.ErrNotFound)

		_, err = st.SessionByID(ctx, "64f000000000000000000000")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("update_persists_revocation_fields", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		saved, err := st.SaveSession(ctx, seedSession(uuid.New(), uuid.New(), "hash-update", time.Hour))
		require.NoError(t, err)

		saved.RevokeReplacedBy(time.Now().UTC(), "successor-id")
		_, err = st.SaveSession(ctx, saved)
		require.NoError(t, err)

		got, err := st.SessionByID(ctx, saved.ID)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		require.Equal(t, "successor-id", got.ReplacedBy)
	})

	t.Run("delete_idempotent", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		saved, err := st.SaveSession(ctx, seedSession(uuid.New(), uuid.New(), "hash-delete", time.Hour))
		require.NoError(t, err)

		ok, err := st.DeleteSession(ctx, saved.ID)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = st.DeleteSession(ctx, saved.ID)
		require.NoError(t, err)
		require.False(t, ok)

		_, err = st.SessionByTokenHash(ctx, "hash-delete")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("revoke_family_spares_other_families", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		userID := uuid.New()
		family := uuid.New()
		other := uuid.New()

		s1, err := st.SaveSession(ctx, seedSession(userID, family, "hash-fam-1", time.Hour))
		require.NoError(t, err)
		s2, err := st.SaveSession(ctx, seedSession(userID, family, "hash-fam-2", time.Hour))
		require.NoError(t, err)
		// Другое семейство того же пользователя затронуто быть не должно.
		s3, err := st.SaveSession(ctx, seedSession(userID, other, "hash-fam-3", time.Hour))
		require.NoError(t, err)

		require.NoError(t, st.RevokeFamily(ctx, family))

		for _, id := range []string{s1.ID, s2.ID} {
			got, err := st.SessionByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got.RevokedAt)
		}

		got, err := st.SessionByID(ctx, s3.ID)
		require.NoError(t, err)
		require.Nil(t, got.RevokedAt)
	})

	t.Run("revoke_family_keeps_first_revocation", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		family := uuid.New()
		saved, err := st.SaveSession(ctx, seedSession(uuid.New(), family, "hash-fam-mono", time.Hour))
		require.NoError(t, err)

		first := time.Now().UTC().Add(-time.Minute)
		saved.RevokedAt = &first
		saved.ReplacedBy = "earlier-successor"
		_, err = st.SaveSession(ctx, saved)
		require.NoError(t, err)

		require.NoError(t, st.RevokeFamily(ctx, family))

		got, err := st.SessionByID(ctx, saved.ID)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		require.WithinDuration(t, first, *got.RevokedAt, timeEps)
		require.Equal(t, "earlier-successor", got.ReplacedBy)
	})

	t.Run("revoke_all_for_user_scoped", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		userID := uuid.New()
		stranger := uuid.New()

		s1, err := st.SaveSession(ctx, seedSession(userID, uuid.New(), "hash-user-1", time.Hour))
		require.NoError(t, err)
		s2, err := st.SaveSession(ctx, seedSession(userID, uuid.New(), "hash-user-2", time.Hour))
		require.NoError(t, err)
		s3, err := st.SaveSession(ctx, seedSession(stranger, uuid.New(), "hash-user-3", time.Hour))
		require.NoError(t, err)

		require.NoError(t, st.RevokeAllForUser(ctx, userID))

		for _, id := range []string{s1.ID, s2.ID} {
			got, err := st.SessionByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got.RevokedAt)
		}

		got, err := st.SessionByID(ctx, s3.ID)
		require.NoError(t, err)
		require.Nil(t, got.RevokedAt)
	})

	t.Run("expired_session_still_readable", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		// Просроченная, но ещё присутствующая запись должна читаться:
		// иначе ветка "просрочено" неотличима от "не найдено".
		in := seedSession(uuid.New(), uuid.New(), "hash-expired", time.Hour)
		in.ExpiresAt = time.Now().UTC().Add(-time.Minute)

		_, err := st.SaveSession(ctx, in)
		require.NoError(t, err)

		got, err := st.SessionByTokenHash(ctx, "hash-expired")
		require.NoError(t, err)
		require.True(t, got.IsExpired(time.Now().UTC()))
	})
}
