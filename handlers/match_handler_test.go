package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dosada05/quiz-duel/middleware"
	"github.com/Dosada05/quiz-duel/models"
	"github.com/Dosada05/quiz-duel/repositories"
	"github.com/Dosada05/quiz-duel/services"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAnswers = map[string]string{
	"easy-1": "Paris",
	"easy-2": "12",
	"hard-1": "Tungsten",
	"hard-2": "59",
}

func newTestRouter(t *testing.T, secret string) http.Handler {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	matches := repositories.NewMemoryMatchRepository()
	queue := repositories.NewMemoryQueueRepository()
	users := repositories.NewMemoryUserRepository()
	questions := repositories.NewMemoryQuestionRepository()

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, users.Upsert(ctx, &models.User{UserID: id, Nickname: "nick-" + id}))
	}
	for id, answer := range testAnswers {
		difficulty := models.DifficultyEasy
		if id[:4] == "hard" {
			difficulty = models.DifficultyHard
		}
		require.NoError(t, questions.Upsert(ctx, &models.Question{
			QuestionSummary: models.QuestionSummary{
				ID:         id,
				Text:       "question " + id,
				Type:       models.QuestionTypeSingle,
				Difficulty: difficulty,
			},
			Answer: []string{answer},
		}))
	}

	metrics := services.NewMetrics(prometheus.NewRegistry())
	mms := services.NewMatchmakingService(matches, queue, users, nil, metrics, logger)
	ms := services.NewMatchService(matches, questions, users, nil, nil, metrics, logger)
	h := NewMatchHandler(mms, ms)

	router := chi.NewRouter()
	router.Route("/api/match", func(r chi.Router) {
		r.Get("/{matchID}/results", h.GetMatchResults)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(secret))
			r.Post("/", h.CreateMatch)
			r.Post("/request", h.RequestMatch)
			r.Post("/cancel", h.CancelMatch)
			r.Get("/status", h.GetMatchStatus)
			r.Post("/join", h.JoinMatch)
			r.Post("/{matchID}/choose-strategy/{round}", h.ChooseStrategy)
			r.Get("/{matchID}/questions", h.GetQuestions)
			r.Post("/{matchID}/lock-questions", h.LockQuestions)
			r.Post("/{matchID}/submit", h.SubmitAnswers)
			r.Get("/{matchID}/progress", h.GetOpponentProgress)
		})
	})
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(encoded)
		}
		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec.Code, decoded
}

func answersFor(t *testing.T, questionSet map[string]interface{}) []string {
	t.Helper()
	items, ok := questionSet["questions"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, models.QuestionsPerRound)

	answers := make([]string, 0, len(items))
	for _, item := range items {
		id := item.(map[string]interface{})["id"].(string)
		answers = append(answers, testAnswers[id])
	}
	return answers
}

func playRoundOverHTTP(t *testing.T, router http.Handler, matchID string, round int, strategy string, wantDifficulty string) map[string]interface{} {
	t.Helper()
	base := "/api/match/" + matchID

	for _, user := range []string{"alice", "bob"} {
		status, _ := doRequest(t, router, http.MethodPost, base+"/choose-strategy/"+string(rune('0'+round)),
			map[string]string{"userId": user, "strategy": strategy}, "")
		require.Equal(t, http.StatusOK, status)
	}

	var last map[string]interface{}
	for _, user := range []string{"alice", "bob"} {
		status, questions := doRequest(t, router, http.MethodGet, base+"/questions?userId="+user, nil, "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, wantDifficulty, questions["difficulty"])

		status, last = doRequest(t, router, http.MethodPost, base+"/submit",
			map[string]interface{}{"userId": user, "answers": answersFor(t, questions)}, "")
		require.Equal(t, http.StatusOK, status)
	}
	return last
}

func TestMatchFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t, "")

	status, body := doRequest(t, router, http.MethodPost, "/api/match/request", map[string]string{"userId": "alice", "targetId": "bob"}, "")
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "pending", body["status"])

	status, body = doRequest(t, router, http.MethodPost, "/api/match/request", map[string]string{"userId": "bob", "targetId": "alice"}, "")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "matched", body["status"])
	assert.Equal(t, "nick-alice", body["opponent_nickname"])
	matchID := body["match_id"].(string)

	status, body = doRequest(t, router, http.MethodGet, "/api/match/status?userId=alice", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "matched", body["status"])
	assert.Equal(t, matchID, body["match_id"])

	round1 := playRoundOverHTTP(t, router, matchID, 1, "cooperate", "easy")
	assert.Equal(t, true, round1["round_complete"])
	assert.Equal(t, 2.0, round1["current_round"])
	assert.Equal(t, 6.0, round1["player1"].(map[string]interface{})["round_points"])

	status, progress := doRequest(t, router, http.MethodGet, "/api/match/"+matchID+"/progress?userId=alice", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, progress["opponent_joined"])
	assert.Equal(t, "nick-bob", progress["opponent_nickname"])
	assert.Equal(t, false, progress["opponent_submitted_strategy"])

	round2 := playRoundOverHTTP(t, router, matchID, 2, "betray", "hard")
	assert.Equal(t, "finished", round2["match_status"])

	status, results := doRequest(t, router, http.MethodGet, "/api/match/"+matchID+"/results", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "draw", results["winner"])
	assert.Equal(t, 10.0, results["player1"].(map[string]interface{})["score"])
	assert.Equal(t, 10.0, results["player2"].(map[string]interface{})["score"])
	assert.Len(t, results["rounds"], models.RoundsPerMatch)
}

func TestCreateAndJoinOverHTTP(t *testing.T) {
	router := newTestRouter(t, "")

	status, created := doRequest(t, router, http.MethodPost, "/api/match", map[string]string{"userId": "alice"}, "")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "waiting", created["status"])

	status, body := doRequest(t, router, http.MethodPost, "/api/match/join", map[string]string{"userId": "alice"}, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "own match")

	status, joined := doRequest(t, router, http.MethodPost, "/api/match/join", map[string]string{"userId": "bob"}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, created["match_id"], joined["match_id"])
	assert.Equal(t, "ready", joined["status"])
	assert.Equal(t, "bob", joined["player2_id"])

	status, _ = doRequest(t, router, http.MethodPost, "/api/match/join", map[string]string{"userId": "carol"}, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCancelOverHTTP(t *testing.T) {
	router := newTestRouter(t, "")

	status, _ := doRequest(t, router, http.MethodPost, "/api/match/cancel", map[string]string{"userId": "alice"}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, router, http.MethodPost, "/api/match/request", map[string]string{"userId": "alice", "targetId": "bob"}, "")
	require.Equal(t, http.StatusAccepted, status)

	status, _ = doRequest(t, router, http.MethodPost, "/api/match/cancel", map[string]string{"userId": "alice"}, "")
	assert.Equal(t, http.StatusOK, status)

	status, body := doRequest(t, router, http.MethodGet, "/api/match/status?userId=alice", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idle", body["status"])
}

func TestErrorMappingOverHTTP(t *testing.T) {
	router := newTestRouter(t, "")

	status, created := doRequest(t, router, http.MethodPost, "/api/match", map[string]string{"userId": "alice"}, "")
	require.Equal(t, http.StatusCreated, status)
	matchID := created["match_id"].(string)
	status, _ = doRequest(t, router, http.MethodPost, "/api/match/join", map[string]string{"userId": "bob"}, "")
	require.Equal(t, http.StatusOK, status)
	base := "/api/match/" + matchID

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"unknown match", http.MethodGet, "/api/match/missing/progress?userId=alice", nil, http.StatusNotFound},
		{"non-numeric round", http.MethodPost, base + "/choose-strategy/one", map[string]string{"userId": "alice", "strategy": "cooperate"}, http.StatusBadRequest},
		{"invalid strategy", http.MethodPost, base + "/choose-strategy/1", map[string]string{"userId": "alice", "strategy": "defect"}, http.StatusBadRequest},
		{"wrong round", http.MethodPost, base + "/choose-strategy/2", map[string]string{"userId": "alice", "strategy": "cooperate"}, http.StatusConflict},
		{"non-participant", http.MethodPost, base + "/choose-strategy/1", map[string]string{"userId": "carol", "strategy": "cooperate"}, http.StatusForbidden},
		{"unknown body field", http.MethodPost, base + "/submit", `{"userId":"alice","answerz":[]}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, base + "/submit", `{"userId":`, http.StatusBadRequest},
		{"wrong answer count", http.MethodPost, base + "/submit", map[string]interface{}{"userId": "alice", "answers": []string{"x"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, router, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.wantStatus, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestInvalidStateEchoesMatchState(t *testing.T) {
	router := newTestRouter(t, "")

	status, created := doRequest(t, router, http.MethodPost, "/api/match", map[string]string{"userId": "alice"}, "")
	require.Equal(t, http.StatusCreated, status)
	matchID := created["match_id"].(string)

	status, body := doRequest(t, router, http.MethodGet, "/api/match/"+matchID+"/results", nil, "")
	require.Equal(t, http.StatusConflict, status)
	state, ok := body["state"].(map[string]interface{})
	require.True(t, ok, "state must be echoed")
	assert.Equal(t, "waiting", state["match_status"])
	assert.Equal(t, 1.0, state["current_round"])
}

func TestIdentityFromBearerToken(t *testing.T) {
	const secret = "test-secret"
	router := newTestRouter(t, secret)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": "alice"}).SignedString([]byte(secret))
	require.NoError(t, err)

	status, _ := doRequest(t, router, http.MethodPost, "/api/match", map[string]string{"userId": "alice"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, router, http.MethodPost, "/api/match", map[string]string{"userId": "bob"}, token)
	assert.Equal(t, http.StatusForbidden, status)

	status, created := doRequest(t, router, http.MethodPost, "/api/match", map[string]string{}, token)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "alice", created["player1_id"])

	status, _ = doRequest(t, router, http.MethodGet, "/api/match/"+created["match_id"].(string)+"/results", nil, "")
	assert.Equal(t, http.StatusConflict, status, "results stay public")
}
