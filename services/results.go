package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/Dosada05/quiz-duel/repositories"
	"golang.org/x/sync/errgroup"
)

const (
	WinnerPlayer1 = "player1"
	WinnerPlayer2 = "player2"
	WinnerDraw    = "draw"
)

type PlayerResult struct {
	Slot     string `json:"slot"`
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
	Score    int    `json:"score"`
}

type RoundPlayerResult struct {
	Strategy   models.Strategy   `json:"strategy"`
	Difficulty models.Difficulty `json:"difficulty"`
	Correct    []bool            `json:"correct"`
	Points     int               `json:"points"`
}

type RoundResult struct {
	Round   int               `json:"round"`
	Player1 RoundPlayerResult `json:"player1"`
	Player2 RoundPlayerResult `json:"player2"`
}

// MatchResults - итог завершённого матча.
type MatchResults struct {
	MatchID    string             `json:"match_id"`
	Status     models.MatchStatus `json:"status"`
	Winner     string             `json:"winner"`
	Player1    PlayerResult       `json:"player1"`
	Player2    PlayerResult       `json:"player2"`
	Rounds     []RoundResult      `json:"rounds"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

func (s *matchService) buildResults(ctx context.Context, m *models.Match) (*MatchResults, error) {
	var nick1, nick2 string

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		nick, err := s.nickname(gCtx, m.Player1ID)
		nick1 = nick
		return err
	})
	g.Go(func() error {
		nick, err := s.nickname(gCtx, m.Player2ID)
		nick2 = nick
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, internalError("resolve player nicknames", err)
	}

	results := &MatchResults{
		MatchID:    m.ID,
		Status:     m.Status,
		Winner:     winnerOf(m),
		Player1:    PlayerResult{Slot: models.SlotPlayer1.String(), UserID: m.Player1ID, Nickname: nick1, Score: m.Scores[0]},
		Player2:    PlayerResult{Slot: models.SlotPlayer2.String(), UserID: m.Player2ID, Nickname: nick2, Score: m.Scores[1]},
		Rounds:     make([]RoundResult, 0, models.RoundsPerMatch),
		FinishedAt: m.FinishedAt,
	}

	for i := range m.Rounds {
		r := &m.Rounds[i]
		if !r.Scored {
			continue
		}
		p1, p2 := r.Player(models.SlotPlayer1), r.Player(models.SlotPlayer2)
		results.Rounds = append(results.Rounds, RoundResult{
			Round:   r.Number,
			Player1: roundPlayerResult(p1, p2.Strategy),
			Player2: roundPlayerResult(p2, p1.Strategy),
		})
	}
	return results, nil
}

// nickname возвращает пустую строку для удалённого пользователя.
func (s *matchService) nickname(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	user, err := s.users.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			s.logger.WarnContext(ctx, "Match player no longer resolves", slog.String("user_id", userID))
			return "", nil
		}
		return "", err
	}
	return user.Nickname, nil
}

func roundPlayerResult(p *models.PlayerRound, opponentStrategy models.Strategy) RoundPlayerResult {
	difficulty, _ := DifficultyFor(opponentStrategy)
	return RoundPlayerResult{
		Strategy:   p.Strategy,
		Difficulty: difficulty,
		Correct:    append([]bool(nil), p.Correct...),
		Points:     p.Points,
	}
}

func winnerOf(m *models.Match) string {
	switch {
	case m.Scores[0] > m.Scores[1]:
		return WinnerPlayer1
	case m.Scores[1] > m.Scores[0]:
		return WinnerPlayer2
	default:
		return WinnerDraw
	}
}
