package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/Dosada05/quiz-duel/repositories"
)

// QuestionSet - вопросы игрока на текущий раунд, без ключа ответа.
type QuestionSet struct {
	MatchID      string                   `json:"match_id"`
	CurrentRound int                      `json:"current_round"`
	Difficulty   models.Difficulty        `json:"difficulty"`
	Questions    []models.QuestionSummary `json:"questions"`
}

// PlayerRoundOutcome - результат одного игрока в завершённом раунде.
type PlayerRoundOutcome struct {
	UserID      string `json:"user_id"`
	Correct     []bool `json:"correct"`
	RoundPoints int    `json:"round_points"`
	TotalScore  int    `json:"total_score"`
}

type SubmissionResult struct {
	MatchID       string              `json:"match_id"`
	Round         int                 `json:"round"`
	RoundComplete bool                `json:"round_complete"`
	MatchStatus   models.MatchStatus  `json:"match_status"`
	CurrentRound  int                 `json:"current_round"`
	Player1       *PlayerRoundOutcome `json:"player1,omitempty"`
	Player2       *PlayerRoundOutcome `json:"player2,omitempty"`
}

type OpponentProgress struct {
	MatchID                   string             `json:"match_id"`
	MatchStatus               models.MatchStatus `json:"match_status"`
	CurrentRound              int                `json:"current_round"`
	OpponentJoined            bool               `json:"opponent_joined"`
	OpponentID                string             `json:"opponent_id,omitempty"`
	OpponentNickname          string             `json:"opponent_nickname,omitempty"`
	OpponentSubmittedStrategy bool               `json:"opponent_submitted_strategy"`
	OpponentSubmittedAnswers  bool               `json:"opponent_submitted"`
	OpponentScore             *int               `json:"opponent_score,omitempty"`
}

type MatchService interface {
	ChooseStrategy(ctx context.Context, matchID, userID string, round int, strategy models.Strategy) (*models.Match, error)
	GetQuestions(ctx context.Context, matchID, userID string) (*QuestionSet, error)
	LockQuestions(ctx context.Context, matchID, userID string, questionIDs []string) (*QuestionSet, error)
	// SubmitAnswers принимает ответы на текущий раунд; round = 0 означает текущий.
	SubmitAnswers(ctx context.Context, matchID, userID string, round int, answers []string) (*SubmissionResult, error)
	GetProgress(ctx context.Context, matchID, userID string) (*OpponentProgress, error)
	GetResults(ctx context.Context, matchID string) (*MatchResults, error)
}

type matchService struct {
	matches   repositories.MatchRepository
	questions QuestionBank
	users     UserDirectory
	notifier  Notifier
	archiver  ResultArchiver
	metrics   *Metrics
	logger    *slog.Logger

	now func() time.Time
}

// NewMatchService собирает сервис матча. notifier и archiver могут быть nil.
func NewMatchService(
	matches repositories.MatchRepository,
	questions QuestionBank,
	users UserDirectory,
	notifier Notifier,
	archiver ResultArchiver,
	metrics *Metrics,
	logger *slog.Logger,
) MatchService {
	return newMatchService(matches, questions, users, notifier, archiver, metrics, logger)
}

func newMatchService(
	matches repositories.MatchRepository,
	questions QuestionBank,
	users UserDirectory,
	notifier Notifier,
	archiver ResultArchiver,
	metrics *Metrics,
	logger *slog.Logger,
) *matchService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &matchService{
		matches:   matches,
		questions: questions,
		users:     users,
		notifier:  notifier,
		archiver:  archiver,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *matchService) ChooseStrategy(ctx context.Context, matchID, userID string, round int, strategy models.Strategy) (*models.Match, error) {
	if err := validateIDs(matchID, userID); err != nil {
		return nil, err
	}
	if round < 1 || round > models.RoundsPerMatch {
		return nil, ErrInvalidRound
	}
	if !strategy.Valid() {
		return nil, ErrInvalidStrategy
	}

	var slot models.Slot
	updated, err := s.matches.Update(ctx, matchID, func(m *models.Match) error {
		slot = m.SlotOf(userID)
		if slot == models.SlotNone {
			return ErrNotParticipant
		}
		if m.Status != models.MatchStatusReady && m.Status != models.MatchStatusInProgress {
			return newStateError(m, "strategies can only be chosen once both players have joined")
		}
		if round != m.CurrentRound {
			return newStateError(m, fmt.Sprintf("round %d is not the current round", round))
		}

		r := m.Round(round)
		player := r.Player(slot)
		if player.HasStrategy() {
			return ErrStrategyAlreadyChosen
		}
		player.Strategy = strategy

		if r.BothChose() {
			m.Status = models.MatchStatusInProgress
		}
		m.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, translateRepoError("choose strategy", err)
	}

	s.metrics.strategyChosen(round, strategy)
	s.notifier.Publish(updated.ID, EventStrategyChosen, map[string]interface{}{
		"match_id":     updated.ID,
		"player":       slot.String(),
		"round":        round,
		"match_status": updated.Status,
	})
	s.logger.InfoContext(ctx, "Strategy chosen",
		slog.String("match_id", matchID),
		slog.String("user_id", userID),
		slog.Int("round", round),
		slog.String("match_status", string(updated.Status)),
	)
	return updated, nil
}

// GetQuestions выдаёт игроку два вопроса текущего раунда. Первый вызов
// выбирает их из банка и закрепляет за игроком, повторные возвращают те же.
func (s *matchService) GetQuestions(ctx context.Context, matchID, userID string) (*QuestionSet, error) {
	if err := validateIDs(matchID, userID); err != nil {
		return nil, err
	}

	var (
		difficulty models.Difficulty
		issued     []models.QuestionSummary
	)
	updated, err := s.matches.Update(ctx, matchID, func(m *models.Match) error {
		player, d, err := s.playerForQuestions(m, userID)
		if err != nil {
			return err
		}
		difficulty = d
		if player.QuestionsIssued() {
			return nil
		}

		sample, err := s.questions.Sample(ctx, difficulty, models.QuestionsPerRound)
		if err != nil {
			return internalError("sample questions", err)
		}
		if len(sample) < models.QuestionsPerRound {
			return ErrQuestionBankExhausted
		}

		player.QuestionIDs = questionIDs(sample)
		m.UpdatedAt = s.now()
		issued = sample
		return nil
	})
	if err != nil {
		return nil, translateRepoError("get questions", err)
	}

	if issued == nil {
		player := updated.Current().Player(updated.SlotOf(userID))
		issued, err = s.questions.Lookup(ctx, player.QuestionIDs)
		if err != nil {
			return nil, internalError("look up issued questions", err)
		}
	}

	return &QuestionSet{
		MatchID:      updated.ID,
		CurrentRound: updated.CurrentRound,
		Difficulty:   difficulty,
		Questions:    issued,
	}, nil
}

// LockQuestions закрепляет выбранные игроком вопросы вместо случайной выборки.
// Допустимо только до первой выдачи вопросов в раунде.
func (s *matchService) LockQuestions(ctx context.Context, matchID, userID string, ids []string) (*QuestionSet, error) {
	if err := validateIDs(matchID, userID); err != nil {
		return nil, err
	}
	if len(ids) != models.QuestionsPerRound {
		return nil, ErrWrongQuestionCount
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, ErrWrongQuestionCount
		}
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicateQuestion
		}
		seen[id] = struct{}{}
	}

	var (
		difficulty models.Difficulty
		locked     []models.QuestionSummary
	)
	updated, err := s.matches.Update(ctx, matchID, func(m *models.Match) error {
		player, d, err := s.playerForQuestions(m, userID)
		if err != nil {
			return err
		}
		difficulty = d
		if player.QuestionsIssued() {
			return ErrQuestionsAlreadyIssued
		}

		found, err := s.questions.Lookup(ctx, ids)
		if err != nil {
			if errors.Is(err, repositories.ErrQuestionNotFound) {
				return ErrQuestionNotFound
			}
			return internalError("look up questions", err)
		}
		for _, q := range found {
			if q.Difficulty != difficulty {
				return ErrDifficultyMismatch
			}
		}

		player.QuestionIDs = append([]string(nil), ids...)
		m.UpdatedAt = s.now()
		locked = found
		return nil
	})
	if err != nil {
		return nil, translateRepoError("lock questions", err)
	}

	s.logger.InfoContext(ctx, "Questions locked",
		slog.String("match_id", matchID),
		slog.String("user_id", userID),
		slog.Int("round", updated.CurrentRound),
	)
	return &QuestionSet{
		MatchID:      updated.ID,
		CurrentRound: updated.CurrentRound,
		Difficulty:   difficulty,
		Questions:    locked,
	}, nil
}

// playerForQuestions проверяет, что игроку можно выдавать вопросы, и
// возвращает его запись текущего раунда вместе со сложностью.
func (s *matchService) playerForQuestions(m *models.Match, userID string) (*models.PlayerRound, models.Difficulty, error) {
	slot := m.SlotOf(userID)
	if slot == models.SlotNone {
		return nil, "", ErrNotParticipant
	}
	if m.Status != models.MatchStatusInProgress {
		return nil, "", newStateError(m, "questions are available only while the match is in progress")
	}

	difficulty, err := ResolveDifficulty(m, m.CurrentRound, userID)
	if err != nil {
		return nil, "", err
	}

	return m.Current().Player(slot), difficulty, nil
}

func (s *matchService) SubmitAnswers(ctx context.Context, matchID, userID string, round int, answers []string) (*SubmissionResult, error) {
	if err := validateIDs(matchID, userID); err != nil {
		return nil, err
	}
	if round < 0 || round > models.RoundsPerMatch {
		return nil, ErrInvalidRound
	}
	if len(answers) != models.QuestionsPerRound {
		return nil, ErrWrongAnswerCount
	}

	var (
		target   int
		complete bool
	)
	updated, err := s.matches.Update(ctx, matchID, func(m *models.Match) error {
		slot := m.SlotOf(userID)
		if slot == models.SlotNone {
			return ErrNotParticipant
		}

		target = round
		if target == 0 {
			target = m.CurrentRound
		}
		switch {
		case round == 0 && m.Status == models.MatchStatusFinished:
			return newStateError(m, "match is finished")
		case target < m.CurrentRound, m.Status == models.MatchStatusFinished && target <= m.CurrentRound:
			return ErrRoundAlreadyComplete
		case target > m.CurrentRound:
			return newStateError(m, fmt.Sprintf("round %d has not started", target))
		case m.Status != models.MatchStatusInProgress:
			return newStateError(m, "answers are accepted only while the match is in progress")
		}

		r := m.Round(target)
		player := r.Player(slot)
		if player.Submitted() {
			return ErrAnswersAlreadySubmitted
		}
		if !r.BothChose() {
			return newStateError(m, "both strategies must be chosen before answering")
		}
		if !player.QuestionsIssued() {
			return newStateError(m, "questions have not been issued for this round")
		}

		player.Answers = append([]string(nil), answers...)
		now := s.now()
		m.UpdatedAt = now

		if r.BothSubmitted() {
			if err := s.completeRound(ctx, m, r, now); err != nil {
				return err
			}
			complete = true
		}
		return nil
	})
	if err != nil {
		return nil, translateRepoError("submit answers", err)
	}

	result := &SubmissionResult{
		MatchID:       updated.ID,
		Round:         target,
		RoundComplete: complete,
		MatchStatus:   updated.Status,
		CurrentRound:  updated.CurrentRound,
	}

	if !complete {
		s.notifier.Publish(updated.ID, EventAnswersSubmitted, map[string]interface{}{
			"match_id": updated.ID,
			"player":   updated.SlotOf(userID).String(),
			"round":    target,
		})
		return result, nil
	}

	r := updated.Round(target)
	result.Player1 = roundOutcome(updated, r, models.SlotPlayer1)
	result.Player2 = roundOutcome(updated, r, models.SlotPlayer2)

	finished := updated.Status == models.MatchStatusFinished
	s.metrics.roundScored(finished)
	s.notifier.Publish(updated.ID, EventRoundCompleted, result)
	s.logger.InfoContext(ctx, "Round scored",
		slog.String("match_id", updated.ID),
		slog.Int("round", target),
		slog.Int("player1_points", result.Player1.RoundPoints),
		slog.Int("player2_points", result.Player2.RoundPoints),
	)

	if finished {
		s.onFinished(ctx, updated)
	}
	return result, nil
}

// completeRound проверяет ответы обоих игроков, начисляет очки и продвигает
// матч. Выполняется внутри Update, поэтому начисление происходит ровно один раз.
func (s *matchService) completeRound(ctx context.Context, m *models.Match, r *models.Round, now time.Time) error {
	for _, slot := range []models.Slot{models.SlotPlayer1, models.SlotPlayer2} {
		player := r.Player(slot)
		correct := make([]bool, len(player.QuestionIDs))
		for i, questionID := range player.QuestionIDs {
			ok, err := s.checkAnswer(ctx, questionID, player.Answers[i])
			if err != nil {
				return err
			}
			correct[i] = ok
		}
		player.Correct = correct
	}

	p1, p2 := r.Player(models.SlotPlayer1), r.Player(models.SlotPlayer2)
	p1.Points, p2.Points = ScoreRound(p1.Correct, p2.Correct, p1.Strategy, p2.Strategy)
	m.Scores[0] += p1.Points
	m.Scores[1] += p2.Points
	r.Scored = true

	if m.CurrentRound < models.RoundsPerMatch {
		m.CurrentRound++
		return nil
	}
	m.Status = models.MatchStatusFinished
	m.FinishedAt = &now
	return nil
}

func (s *matchService) checkAnswer(ctx context.Context, questionID, answer string) (bool, error) {
	if answer == "" {
		return false, nil
	}
	ok, err := s.questions.CheckAnswer(ctx, questionID, answer)
	if err != nil {
		return false, internalError(fmt.Sprintf("check answer for question %s", questionID), err)
	}
	return ok, nil
}

func (s *matchService) onFinished(ctx context.Context, m *models.Match) {
	results, err := s.buildResults(ctx, m)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to build match results", slog.String("match_id", m.ID), slog.Any("error", err))
		return
	}

	s.notifier.Publish(m.ID, EventMatchFinished, results)

	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, m.ID, results); err != nil {
		s.logger.ErrorContext(ctx, "Failed to archive match results", slog.String("match_id", m.ID), slog.Any("error", err))
	}
}

func (s *matchService) GetProgress(ctx context.Context, matchID, userID string) (*OpponentProgress, error) {
	if err := validateIDs(matchID, userID); err != nil {
		return nil, err
	}

	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, translateRepoError("get match", err)
	}

	slot := m.SlotOf(userID)
	if slot == models.SlotNone {
		return nil, ErrNotParticipant
	}
	opponentSlot := slot.Opponent()
	opponentID := m.PlayerID(opponentSlot)

	progress := &OpponentProgress{
		MatchID:        m.ID,
		MatchStatus:    m.Status,
		CurrentRound:   m.CurrentRound,
		OpponentJoined: opponentID != "",
		OpponentID:     opponentID,
	}
	if opponentID == "" {
		return progress, nil
	}

	if opponent, err := s.users.Resolve(ctx, opponentID); err == nil {
		progress.OpponentNickname = opponent.Nickname
	} else {
		s.logger.WarnContext(ctx, "Failed to resolve opponent nickname", slog.String("user_id", opponentID), slog.Any("error", err))
	}

	current := m.Current().Player(opponentSlot)
	progress.OpponentSubmittedStrategy = current.HasStrategy()
	progress.OpponentSubmittedAnswers = current.Submitted()
	if progress.OpponentSubmittedAnswers {
		score := m.Score(opponentSlot)
		progress.OpponentScore = &score
	}
	return progress, nil
}

func (s *matchService) GetResults(ctx context.Context, matchID string) (*MatchResults, error) {
	if matchID == "" {
		return nil, ErrMatchIDRequired
	}

	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, translateRepoError("get match", err)
	}
	if m.Status != models.MatchStatusFinished {
		return nil, newStateError(m, "match is not finished yet")
	}
	return s.buildResults(ctx, m)
}

func roundOutcome(m *models.Match, r *models.Round, slot models.Slot) *PlayerRoundOutcome {
	player := r.Player(slot)
	return &PlayerRoundOutcome{
		UserID:      m.PlayerID(slot),
		Correct:     append([]bool(nil), player.Correct...),
		RoundPoints: player.Points,
		TotalScore:  m.Score(slot),
	}
}

func questionIDs(questions []models.QuestionSummary) []string {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func validateIDs(matchID, userID string) error {
	if matchID == "" {
		return ErrMatchIDRequired
	}
	if userID == "" {
		return ErrUserIDRequired
	}
	return nil
}

// translateRepoError переводит ошибки хранилища в категории сервиса.
func translateRepoError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrMatchNotFound):
		return ErrMatchNotFound
	case isCategorized(err):
		return err
	default:
		return internalError(op, err)
	}
}
