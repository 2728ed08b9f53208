package services

import (
	"context"

	"github.com/Dosada05/quiz-duel/models"
)

// UserDirectory - внешний сервис учётных записей, только чтение.
type UserDirectory interface {
	Resolve(ctx context.Context, userID string) (*models.User, error)
}

// QuestionBank - внешний банк вопросов.
type QuestionBank interface {
	Sample(ctx context.Context, difficulty models.Difficulty, count int) ([]models.QuestionSummary, error)
	Lookup(ctx context.Context, ids []string) ([]models.QuestionSummary, error)
	CheckAnswer(ctx context.Context, questionID, answer string) (bool, error)
}

// Типы событий матча для подписчиков в реальном времени.
const (
	EventOpponentJoined   = "opponent_joined"
	EventStrategyChosen   = "strategy_chosen"
	EventAnswersSubmitted = "answers_submitted"
	EventRoundCompleted   = "round_completed"
	EventMatchFinished    = "match_finished"
	EventMatchExpired     = "match_expired"
)

// Notifier рассылает события матча. Доставка best-effort.
type Notifier interface {
	Publish(matchID, eventType string, payload interface{})
}

// ResultArchiver сохраняет итог завершённого матча во внешнее хранилище.
type ResultArchiver interface {
	Archive(ctx context.Context, matchID string, document interface{}) error
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, interface{}) {}
