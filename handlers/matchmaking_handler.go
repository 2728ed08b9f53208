package handlers

import (
	"net/http"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/Dosada05/quiz-duel/services"
)

type MatchHandler struct {
	matchmakingService services.MatchmakingService
	matchService       services.MatchService
}

func NewMatchHandler(mms services.MatchmakingService, ms services.MatchService) *MatchHandler {
	return &MatchHandler{
		matchmakingService: mms,
		matchService:       ms,
	}
}

type userRequest struct {
	UserID string `json:"userId"`
}

type requestMatchRequest struct {
	UserID   string `json:"userId"`
	TargetID string `json:"targetId"`
}

// matchView - краткое представление матча без ответов и стратегий игроков.
func matchView(m *models.Match) jsonResponse {
	return jsonResponse{
		"match_id":      m.ID,
		"status":        m.Status,
		"current_round": m.CurrentRound,
		"player1_id":    m.Player1ID,
		"player2_id":    m.Player2ID,
	}
}

func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var input userRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, input.UserID)
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	match, err := h.matchmakingService.CreateMatch(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, matchView(match), nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) RequestMatch(w http.ResponseWriter, r *http.Request) {
	var input requestMatchRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, input.UserID)
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	result, err := h.matchmakingService.RequestMatch(r.Context(), userID, input.TargetID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusAccepted
	if result.Status == services.RequestStatusMatched {
		status = http.StatusCreated
	}

	if err := writeJSON(w, status, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	var input userRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, input.UserID)
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	if err := h.matchmakingService.CancelMatch(r.Context(), userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "match request cancelled"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) GetMatchStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUserID(r, r.URL.Query().Get("userId"))
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	status, err := h.matchmakingService.GetStatus(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, status, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	var input userRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := actingUserID(r, input.UserID)
	if err != nil {
		respondActingUserError(w, r, err)
		return
	}

	match, err := h.matchmakingService.JoinMatch(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, matchView(match), nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
