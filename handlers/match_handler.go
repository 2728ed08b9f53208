package handlers

import (
	"net/http"

	"github.com/Dosada05/quiz-duel/models"
)

type chooseStrategyRequest struct {
	UserID   string          `json:"userId"`
	Strategy models.Strategy `json:"strategy"`
}

type lockQuestionsRequest struct {
	UserID      string   `json:"userId"`
	QuestionIDs []string `json:"questionIds"`
}

type submitAnswersRequest struct {
	UserID  string   `json:"userId"`
	Answers []string `json:"answers"`
	// Round = 0 - текущий раунд.
	Round int `json:"round,omitempty"`
}

func (h *MatchHandler) ChooseStrategy(w http.ResponseWriter, r *http.Request) {
	matchID, err := getMatchIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	round, err := getRoundFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input chooseStrategyRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, input.UserID)
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	match, err := h.matchService.ChooseStrategy(r.Context(), matchID, userID, round, input.Strategy)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, matchView(match), nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) GetQuestions(w http.ResponseWriter, r *http.Request) {
	matchID, err := getMatchIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, r.URL.Query().Get("userId"))
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	questions, err := h.matchService.GetQuestions(r.Context(), matchID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, questions, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) LockQuestions(w http.ResponseWriter, r *http.Request) {
	matchID, err := getMatchIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input lockQuestionsRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, input.UserID)
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	questions, err := h.matchService.LockQuestions(r.Context(), matchID, userID, input.QuestionIDs)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, questions, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	matchID, err := getMatchIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input submitAnswersRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, input.UserID)
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	result, err := h.matchService.SubmitAnswers(r.Context(), matchID, userID, input.Round, input.Answers)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) GetOpponentProgress(w http.ResponseWriter, r *http.Request) {
	matchID, err := getMatchIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, r.URL.Query().Get("userId"))
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	progress, err := h.matchService.GetProgress(r.Context(), matchID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, progress, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) GetMatchResults(w http.ResponseWriter, r *http.Request) {
	matchID, err := getMatchIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	results, err := h.matchService.GetResults(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, results, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
