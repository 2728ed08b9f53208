package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTestAbort = errors.New("abort")

func TestMemoryMatchRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMatchRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	match := models.NewMatch("m1", "alice", now)
	require.NoError(t, repo.Create(ctx, match))
	assert.ErrorIs(t, repo.Create(ctx, match), ErrMatchConflict)

	got, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, match, got)

	got.Player2ID = "mutated"
	again, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, again.Player2ID, "stored match must not alias returned copies")

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestMemoryMatchRepositoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMatchRepository()
	require.NoError(t, repo.Create(ctx, models.NewMatch("m1", "alice", time.Now())))

	_, err := repo.Update(ctx, "m1", func(m *models.Match) error {
		m.Player2ID = "bob"
		m.Rounds[0].Players[0].Answers = []string{"a", "b"}
		return errTestAbort
	})
	assert.ErrorIs(t, err, errTestAbort)

	got, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, got.Player2ID)
	assert.Nil(t, got.Rounds[0].Players[0].Answers)

	_, err = repo.Update(ctx, "missing", func(*models.Match) error { return nil })
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestMemoryMatchRepositoryUpdateIsSerialized(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMatchRepository()
	require.NoError(t, repo.Create(ctx, models.NewMatch("m1", "alice", time.Now())))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "m1", func(m *models.Match) error {
				m.Scores[0]++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, workers, got.Scores[0])
}

func TestMemoryMatchRepositoryQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMatchRepository()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, player := range []string{"alice", "bob", "carol"} {
		require.NoError(t, repo.Create(ctx, models.NewMatch(fmt.Sprintf("m%d", i+1), player, base.Add(time.Duration(i)*time.Minute))))
	}
	_, err := repo.Update(ctx, "m1", func(m *models.Match) error {
		m.Player2ID = "dave"
		m.Status = models.MatchStatusReady
		return nil
	})
	require.NoError(t, err)

	waiting, err := repo.ListWaiting(ctx, 10)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, "m2", waiting[0].ID)
	assert.Equal(t, "m3", waiting[1].ID)

	limited, err := repo.ListWaiting(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	found, err := repo.FindUnfinishedByPlayer(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, "m1", found.ID)

	_, err = repo.FindUnfinishedByPlayer(ctx, "erin")
	assert.ErrorIs(t, err, ErrMatchNotFound)

	stale, err := repo.ListStale(ctx, []models.MatchStatus{models.MatchStatusWaiting}, base.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "m2", stale[0].ID)
}

func TestMemoryQueueRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryQueueRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: "alice", TargetID: "bob", RequestedAt: now}))
	assert.ErrorIs(t, repo.Insert(ctx, &models.QueueEntry{UserID: "alice", TargetID: "carol"}), ErrQueueEntryConflict)

	entry, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", entry.TargetID)

	require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: "carol", TargetID: "dave", RequestedAt: now.Add(time.Minute)}))
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stale, err := repo.ListBefore(ctx, now.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "alice", stale[0].UserID)

	require.NoError(t, repo.Delete(ctx, "carol"))
	assert.ErrorIs(t, repo.Delete(ctx, "carol"), ErrQueueEntryNotFound)
}

func TestMemoryQueueClaimReciprocal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("requester without entry takes the waiter's request", func(t *testing.T) {
		repo := NewMemoryQueueRepository()
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: "alice", TargetID: "bob", RequestedAt: now}))

		require.NoError(t, repo.ClaimReciprocal(ctx, "alice", "bob"))

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.ErrorIs(t, repo.ClaimReciprocal(ctx, "alice", "bob"), ErrQueueEntryNotFound, "a request is claimed once")
	})

	t.Run("requester's own entry is removed too", func(t *testing.T) {
		repo := NewMemoryQueueRepository()
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: "alice", TargetID: "bob", RequestedAt: now}))
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: "bob", TargetID: "carol", RequestedAt: now}))

		require.NoError(t, repo.ClaimReciprocal(ctx, "alice", "bob"))

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("non-reciprocal or missing entry is rejected", func(t *testing.T) {
		repo := NewMemoryQueueRepository()
		require.NoError(t, repo.Insert(ctx, &models.QueueEntry{UserID: "alice", TargetID: "carol", RequestedAt: now}))

		assert.ErrorIs(t, repo.ClaimReciprocal(ctx, "alice", "bob"), ErrQueueEntryNotFound)
		assert.ErrorIs(t, repo.ClaimReciprocal(ctx, "dave", "bob"), ErrQueueEntryNotFound)

		entry, err := repo.Get(ctx, "alice")
		require.NoError(t, err, "a rejected claim leaves the waiter queued")
		assert.Equal(t, "carol", entry.TargetID)
	})
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	require.NoError(t, repo.Upsert(ctx, &models.User{UserID: "u1", Nickname: "alice"}))
	assert.ErrorIs(t, repo.Upsert(ctx, &models.User{UserID: "u2", Nickname: "alice"}), ErrUserNicknameConflict)

	user, err := repo.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Nickname)
	assert.False(t, user.CreatedAt.IsZero())

	_, err = repo.Resolve(ctx, "u2")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryQuestionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryQuestionRepository()

	for _, q := range []models.Question{
		{QuestionSummary: models.QuestionSummary{ID: "e1", Text: "e1", Difficulty: models.DifficultyEasy}, Answer: []string{"A"}},
		{QuestionSummary: models.QuestionSummary{ID: "e2", Text: "e2", Difficulty: models.DifficultyEasy}, Answer: []string{"B", "C"}},
		{QuestionSummary: models.QuestionSummary{ID: "h1", Text: "h1", Difficulty: models.DifficultyHard}, Answer: []string{"D"}},
	} {
		q := q
		require.NoError(t, repo.Upsert(ctx, &q))
	}

	easy, err := repo.Sample(ctx, models.DifficultyEasy, 5)
	require.NoError(t, err)
	assert.Len(t, easy, 2)
	for _, q := range easy {
		assert.Equal(t, models.DifficultyEasy, q.Difficulty)
	}

	hard, err := repo.Sample(ctx, models.DifficultyHard, 2)
	require.NoError(t, err)
	assert.Len(t, hard, 1)

	looked, err := repo.Lookup(ctx, []string{"h1", "e1"})
	require.NoError(t, err)
	require.Len(t, looked, 2)
	assert.Equal(t, "h1", looked[0].ID)
	assert.Equal(t, "e1", looked[1].ID)

	_, err = repo.Lookup(ctx, []string{"e1", "nope"})
	assert.ErrorIs(t, err, ErrQuestionNotFound)

	ok, err := repo.CheckAnswer(ctx, "e2", "C")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CheckAnswer(ctx, "e2", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.CheckAnswer(ctx, "nope", "A")
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestLoadSeed(t *testing.T) {
	seed, err := LoadSeed("testdata/seed.yaml")
	require.NoError(t, err)

	require.Len(t, seed.Users, 2)
	assert.Equal(t, "bob", seed.Users[1].Nickname)
	assert.Equal(t, 40, seed.Users[1].TotalScore)

	require.Len(t, seed.Questions, 2)
	assert.Equal(t, models.QuestionTypeSingle, seed.Questions[0].Type)
	assert.Equal(t, []string{"11", "13"}, seed.Questions[1].Answer)
	assert.Equal(t, models.DifficultyHard, seed.Questions[1].Difficulty)

	users := NewMemoryUserRepository()
	questions := NewMemoryQuestionRepository()
	require.NoError(t, seed.Apply(context.Background(), users, questions))

	ok, err := questions.CheckAnswer(context.Background(), "q-hard-1", "13")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = LoadSeed("testdata/missing.yaml")
	assert.Error(t, err)
}
