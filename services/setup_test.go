package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/Dosada05/quiz-duel/repositories"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvent struct {
	MatchID string
	Type    string
	Payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Publish(matchID, eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{MatchID: matchID, Type: eventType, Payload: payload})
}

func (n *recordingNotifier) types(matchID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		if e.MatchID == matchID {
			out = append(out, e.Type)
		}
	}
	return out
}

type recordingArchiver struct {
	mu        sync.Mutex
	documents map[string]interface{}
}

func (a *recordingArchiver) Archive(_ context.Context, matchID string, document interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.documents == nil {
		a.documents = make(map[string]interface{})
	}
	a.documents[matchID] = document
	return nil
}

func (a *recordingArchiver) get(matchID string) (interface{}, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.documents[matchID]
	return doc, ok
}

// answerKey - верные ответы тестового банка вопросов.
var answerKey = map[string]string{
	"easy-1": "A",
	"easy-2": "B",
	"hard-1": "C",
	"hard-2": "D",
}

type testEnv struct {
	matches     repositories.MatchRepository
	queue       repositories.QueueRepository
	users       repositories.UserRepository
	questions   repositories.QuestionRepository
	matchmaking *matchmakingService
	match       *matchService
	notifier    *recordingNotifier
	archiver    *recordingArchiver
	metrics     *Metrics
	clock       *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		matches:   repositories.NewMemoryMatchRepository(),
		queue:     repositories.NewMemoryQueueRepository(),
		users:     repositories.NewMemoryUserRepository(),
		questions: repositories.NewMemoryQuestionRepository(),
		notifier:  &recordingNotifier{},
		archiver:  &recordingArchiver{},
		metrics:   NewMetrics(prometheus.NewRegistry()),
		clock:     &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
	}

	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		require.NoError(t, env.users.Upsert(ctx, &models.User{UserID: id, Nickname: "nick-" + id}))
	}
	for id, answer := range answerKey {
		difficulty := models.DifficultyEasy
		if id[:4] == "hard" {
			difficulty = models.DifficultyHard
		}
		require.NoError(t, env.questions.Upsert(ctx, &models.Question{
			QuestionSummary: models.QuestionSummary{
				ID:         id,
				Text:       "question " + id,
				Options:    []string{"A", "B", "C", "D"},
				Type:       models.QuestionTypeSingle,
				Difficulty: difficulty,
			},
			Answer: []string{answer},
		}))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.matchmaking = newMatchmakingService(env.matches, env.queue, env.users, env.notifier, env.metrics, logger)
	env.matchmaking.now = env.clock.Now
	env.match = newMatchService(env.matches, env.questions, env.users, env.notifier, env.archiver, env.metrics, logger)
	env.match.now = env.clock.Now
	return env
}

// startMatch сводит двух игроков встречными заявками; первый становится player1.
func (e *testEnv) startMatch(t *testing.T, first, second string) string {
	t.Helper()
	ctx := context.Background()

	pending, err := e.matchmaking.RequestMatch(ctx, first, second)
	require.NoError(t, err)
	require.Equal(t, RequestStatusPending, pending.Status)

	matched, err := e.matchmaking.RequestMatch(ctx, second, first)
	require.NoError(t, err)
	require.Equal(t, RequestStatusMatched, matched.Status)
	return matched.MatchID
}

func (e *testEnv) chooseBoth(t *testing.T, matchID string, round int, s1, s2 models.Strategy) {
	t.Helper()
	m, err := e.matches.GetByID(context.Background(), matchID)
	require.NoError(t, err)

	_, err = e.match.ChooseStrategy(context.Background(), matchID, m.Player1ID, round, s1)
	require.NoError(t, err)
	_, err = e.match.ChooseStrategy(context.Background(), matchID, m.Player2ID, round, s2)
	require.NoError(t, err)
}

// answersFor строит ответы на выданные вопросы: верные или заведомо неверные.
func answersFor(set *QuestionSet, correct bool) []string {
	answers := make([]string, len(set.Questions))
	for i, q := range set.Questions {
		if correct {
			answers[i] = answerKey[q.ID]
		} else {
			answers[i] = "wrong"
		}
	}
	return answers
}

// playRound проводит раунд целиком и возвращает результат второй отправки.
func (e *testEnv) playRound(t *testing.T, matchID string, round int, s1, s2 models.Strategy, correct1, correct2 bool) *SubmissionResult {
	t.Helper()
	ctx := context.Background()

	e.chooseBoth(t, matchID, round, s1, s2)
	m, err := e.matches.GetByID(ctx, matchID)
	require.NoError(t, err)

	set1, err := e.match.GetQuestions(ctx, matchID, m.Player1ID)
	require.NoError(t, err)
	set2, err := e.match.GetQuestions(ctx, matchID, m.Player2ID)
	require.NoError(t, err)

	first, err := e.match.SubmitAnswers(ctx, matchID, m.Player1ID, 0, answersFor(set1, correct1))
	require.NoError(t, err)
	require.False(t, first.RoundComplete)

	second, err := e.match.SubmitAnswers(ctx, matchID, m.Player2ID, 0, answersFor(set2, correct2))
	require.NoError(t, err)
	require.True(t, second.RoundComplete)
	return second
}
