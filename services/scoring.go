package services

import "github.com/Dosada05/quiz-duel/models"

type strategyPair struct {
	self, opponent models.Strategy
}

// Исходы вопроса по правильности ответов: оба, только свой, только соперника, никто.
const (
	outcomeBoth = iota
	outcomeSelfOnly
	outcomeOpponentOnly
	outcomeNeither
)

// payoffTable[пара стратегий][исход] = {очки себе, очки сопернику}.
var payoffTable = map[strategyPair][4][2]int{
	{models.StrategyCooperate, models.StrategyCooperate}: {{3, 3}, {3, 0}, {0, 3}, {0, 0}},
	{models.StrategyCooperate, models.StrategyBetray}:    {{4, 2}, {6, 0}, {0, 5}, {1, 0}},
	{models.StrategyBetray, models.StrategyCooperate}:    {{2, 4}, {5, 0}, {0, 6}, {0, 1}},
	{models.StrategyBetray, models.StrategyBetray}:       {{2, 2}, {5, 0}, {0, 5}, {0, 0}},
}

func outcomeOf(selfCorrect, opponentCorrect bool) int {
	switch {
	case selfCorrect && opponentCorrect:
		return outcomeBoth
	case selfCorrect:
		return outcomeSelfOnly
	case opponentCorrect:
		return outcomeOpponentOnly
	default:
		return outcomeNeither
	}
}

// Score возвращает очки за один вопрос: (себе, сопернику).
// Неизвестная стратегия даёт (0, 0).
func Score(selfCorrect, opponentCorrect bool, selfStrategy, opponentStrategy models.Strategy) (int, int) {
	row, ok := payoffTable[strategyPair{selfStrategy, opponentStrategy}]
	if !ok {
		return 0, 0
	}
	p := row[outcomeOf(selfCorrect, opponentCorrect)]
	return p[0], p[1]
}

// ScoreRound складывает очки по всем вопросам раунда попарно.
func ScoreRound(selfCorrect, opponentCorrect []bool, selfStrategy, opponentStrategy models.Strategy) (int, int) {
	var self, opponent int
	for i := 0; i < len(selfCorrect) && i < len(opponentCorrect); i++ {
		s, o := Score(selfCorrect[i], opponentCorrect[i], selfStrategy, opponentStrategy)
		self += s
		opponent += o
	}
	return self, opponent
}
