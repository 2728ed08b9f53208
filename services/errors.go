package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/quiz-duel/models"
)

// Категории ошибок. Транспорт маппит их на HTTP-статусы через errors.Is.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("requested resource not found")
	ErrForbidden      = errors.New("operation not allowed for the current user")
	ErrConflict       = errors.New("conflict")
	ErrInvalidState   = errors.New("invalid match state")
	ErrInternal       = errors.New("internal error")
)

var (
	ErrUserIDRequired       = fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	ErrTargetIDRequired     = fmt.Errorf("%w: target id is required", ErrInvalidRequest)
	ErrMatchIDRequired      = fmt.Errorf("%w: match id is required", ErrInvalidRequest)
	ErrSelfMatch            = fmt.Errorf("%w: cannot request a match with yourself", ErrInvalidRequest)
	ErrInvalidRound         = fmt.Errorf("%w: round must be 1 or 2", ErrInvalidRequest)
	ErrInvalidStrategy      = fmt.Errorf("%w: strategy must be cooperate or betray", ErrInvalidRequest)
	ErrWrongAnswerCount     = fmt.Errorf("%w: exactly %d answers are required", ErrInvalidRequest, models.QuestionsPerRound)
	ErrWrongQuestionCount   = fmt.Errorf("%w: exactly %d question ids are required", ErrInvalidRequest, models.QuestionsPerRound)
	ErrDuplicateQuestion    = fmt.Errorf("%w: question ids must be distinct", ErrInvalidRequest)
	ErrDifficultyMismatch   = fmt.Errorf("%w: question difficulty does not match the opponent's strategy", ErrInvalidRequest)
	ErrNoPendingRequest     = fmt.Errorf("%w: user has no pending match request", ErrInvalidRequest)
	ErrInvalidUserReference = fmt.Errorf("%w: user does not exist", ErrInvalidRequest)

	ErrUserNotFound     = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrTargetNotFound   = fmt.Errorf("%w: target user not found", ErrNotFound)
	ErrMatchNotFound    = fmt.Errorf("%w: match not found", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("%w: question not found", ErrNotFound)
	ErrNoWaitingMatch   = fmt.Errorf("%w: no waiting match to join", ErrNotFound)

	ErrNotParticipant = fmt.Errorf("%w: user is not a participant of this match", ErrForbidden)

	ErrAlreadyQueued           = fmt.Errorf("%w: user already has a pending match request", ErrConflict)
	ErrAlreadyInMatch          = fmt.Errorf("%w: user is already in an unfinished match", ErrConflict)
	ErrCannotJoinOwnMatch      = fmt.Errorf("%w: cannot join your own match", ErrConflict)
	ErrStrategyAlreadyChosen   = fmt.Errorf("%w: strategy already chosen for this round", ErrConflict)
	ErrAnswersAlreadySubmitted = fmt.Errorf("%w: answers already submitted for this round", ErrConflict)
	ErrRoundAlreadyComplete    = fmt.Errorf("%w: round is already complete", ErrConflict)
	ErrQuestionsAlreadyIssued  = fmt.Errorf("%w: questions already issued for this round", ErrConflict)

	ErrQuestionBankExhausted = fmt.Errorf("%w: not enough questions of the required difficulty", ErrInternal)
)

// StateError - операция недопустима в текущем состоянии матча.
// Несёт статус и раунд, чтобы клиент мог синхронизироваться.
type StateError struct {
	Status models.MatchStatus
	Round  int
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s (status %s, round %d)", ErrInvalidState, e.Reason, e.Status, e.Round)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

func newStateError(m *models.Match, reason string) error {
	return &StateError{Status: m.Status, Round: m.CurrentRound, Reason: reason}
}

func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

// isCategorized сообщает, что ошибка уже принадлежит одной из категорий.
func isCategorized(err error) bool {
	for _, category := range []error{ErrInvalidRequest, ErrNotFound, ErrForbidden, ErrConflict, ErrInvalidState, ErrInternal} {
		if errors.Is(err, category) {
			return true
		}
	}
	return false
}
