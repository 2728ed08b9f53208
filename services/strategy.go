package services

import (
	"fmt"

	"github.com/Dosada05/quiz-duel/models"
)

// DifficultyFor: сотрудничество соперника даёт лёгкие вопросы, предательство - трудные.
func DifficultyFor(opponentStrategy models.Strategy) (models.Difficulty, bool) {
	switch opponentStrategy {
	case models.StrategyCooperate:
		return models.DifficultyEasy, true
	case models.StrategyBetray:
		return models.DifficultyHard, true
	default:
		return "", false
	}
}

// ResolveDifficulty определяет сложность вопросов игрока в раунде
// по стратегии его соперника.
func ResolveDifficulty(m *models.Match, round int, userID string) (models.Difficulty, error) {
	slot := m.SlotOf(userID)
	if slot == models.SlotNone {
		return "", ErrNotParticipant
	}

	r := m.Round(round)
	if r == nil {
		return "", ErrInvalidRound
	}

	opponent := r.Player(slot.Opponent())
	difficulty, ok := DifficultyFor(opponent.Strategy)
	if !ok {
		return "", newStateError(m, fmt.Sprintf("opponent has not chosen a strategy for round %d", round))
	}
	return difficulty, nil
}
