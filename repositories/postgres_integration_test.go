//go:build integration

package repositories

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/quiz-duel/db"
	"github.com/Dosada05/quiz-duel/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Запуск: DATABASE_URL=postgres://... go test -tags integration ./repositories/...
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is not set")
	}

	conn, err := db.Connect(dsn, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.ApplyMigrations(context.Background(), conn))
	return conn
}

// createTestUsers заводит пользователей с уникальными id и удаляет их вместе с их строками после теста.
func createTestUsers(t *testing.T, conn *sql.DB, n int) []string {
	t.Helper()
	ctx := context.Background()
	users := NewPostgresUserRepository(conn)

	ids := make([]string, n)
	for i := range ids {
		id := uuid.NewString()
		require.NoError(t, users.Upsert(ctx, &models.User{UserID: id, Nickname: "it-" + id}))
		ids[i] = id
	}

	t.Cleanup(func() {
		for _, id := range ids {
			_, _ = conn.ExecContext(ctx, `DELETE FROM matchmaking_queue WHERE user_id = $1 OR target_id = $1`, id)
			_, _ = conn.ExecContext(ctx, `DELETE FROM matches WHERE player1_id = $1 OR player2_id = $1`, id)
		}
		for _, id := range ids {
			_, _ = conn.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, id)
		}
	})
	return ids
}

func queueHas(t *testing.T, repo QueueRepository, userID string) bool {
	t.Helper()
	_, err := repo.Get(context.Background(), userID)
	if err != nil {
		require.ErrorIs(t, err, ErrQueueEntryNotFound)
		return false
	}
	return true
}

func TestPostgresQueueClaimReciprocal(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewPostgresQueueRepository(conn)
	ids := createTestUsers(t, conn, 3)
	alice, bob, carol := ids[0], ids[1], ids[2]

	t.Run("waiter entry removed when requester has none", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: alice, TargetID: bob, RequestedAt: time.Now()}))

		require.NoError(t, repo.ClaimReciprocal(ctx, alice, bob))
		assert.False(t, queueHas(t, repo, alice))
		assert.ErrorIs(t, repo.ClaimReciprocal(ctx, alice, bob), ErrQueueEntryNotFound)
	})

	t.Run("requester entry removed too", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: alice, TargetID: bob, RequestedAt: time.Now()}))
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: bob, TargetID: carol, RequestedAt: time.Now()}))

		require.NoError(t, repo.ClaimReciprocal(ctx, alice, bob))
		assert.False(t, queueHas(t, repo, alice))
		assert.False(t, queueHas(t, repo, bob))
	})

	t.Run("non-reciprocal entry is kept", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: alice, TargetID: carol, RequestedAt: time.Now()}))

		assert.ErrorIs(t, repo.ClaimReciprocal(ctx, alice, bob), ErrQueueEntryNotFound)
		assert.True(t, queueHas(t, repo, alice))
		require.NoError(t, repo.Delete(ctx, alice))
	})

	t.Run("concurrent claims succeed once", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: alice, TargetID: bob, RequestedAt: time.Now()}))

		const workers = 8
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.ClaimReciprocal(ctx, alice, bob)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrQueueEntryNotFound)
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestPostgresMatchRepositoryUpdateSerializes(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewPostgresMatchRepository(conn)
	ids := createTestUsers(t, conn, 2)

	match := models.NewMatch(uuid.NewString(), ids[0], time.Now().UTC())
	match.Player2ID = ids[1]
	match.Status = models.MatchStatusReady
	require.NoError(t, repo.Create(ctx, match))
	assert.ErrorIs(t, repo.Create(ctx, match), ErrMatchConflict)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, match.ID, func(m *models.Match) error {
				m.Scores[0]++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.Scores[0], "lost update under concurrent Update")
	assert.Equal(t, ids[1], got.Player2ID)
	assert.Equal(t, 2, got.Rounds[1].Number)

	_, err = repo.Update(ctx, match.ID, func(m *models.Match) error {
		m.Scores[1] = 99
		return errTestAbort
	})
	assert.ErrorIs(t, err, errTestAbort)

	got, err = repo.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Scores[1])

	_, err = repo.Update(ctx, uuid.NewString(), func(*models.Match) error { return nil })
	assert.ErrorIs(t, err, ErrMatchNotFound)
}
