package models

import "time"

type MatchStatus string

const (
	MatchStatusWaiting    MatchStatus = "waiting"
	MatchStatusReady      MatchStatus = "ready"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusFinished   MatchStatus = "finished"
	MatchStatusExpired    MatchStatus = "expired"
)

// IsTerminal сообщает, что матч больше не может меняться.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusFinished || s == MatchStatusExpired
}

type Strategy string

const (
	StrategyCooperate Strategy = "cooperate"
	StrategyBetray    Strategy = "betray"
)

func (s Strategy) Valid() bool {
	return s == StrategyCooperate || s == StrategyBetray
}

const (
	RoundsPerMatch    = 2
	QuestionsPerRound = 2
)

// Slot - позиция игрока внутри матча.
type Slot int

const (
	SlotNone Slot = iota
	SlotPlayer1
	SlotPlayer2
)

func (s Slot) Opponent() Slot {
	switch s {
	case SlotPlayer1:
		return SlotPlayer2
	case SlotPlayer2:
		return SlotPlayer1
	default:
		return SlotNone
	}
}

func (s Slot) String() string {
	switch s {
	case SlotPlayer1:
		return "player1"
	case SlotPlayer2:
		return "player2"
	default:
		return "none"
	}
}

// PlayerRound хранит всё, что один игрок сделал в одном раунде.
type PlayerRound struct {
	Strategy    Strategy `json:"strategy,omitempty"`
	QuestionIDs []string `json:"question_ids,omitempty"`
	Answers     []string `json:"answers,omitempty"`
	Correct     []bool   `json:"correct,omitempty"`
	Points      int      `json:"points"`
}

func (p *PlayerRound) HasStrategy() bool {
	return p.Strategy != ""
}

func (p *PlayerRound) QuestionsIssued() bool {
	return len(p.QuestionIDs) == QuestionsPerRound
}

func (p *PlayerRound) Submitted() bool {
	return len(p.Answers) == QuestionsPerRound
}

type Round struct {
	Number  int            `json:"number"`
	Players [2]PlayerRound `json:"players"`
	Scored  bool           `json:"scored"`
}

// Player возвращает запись раунда для слота или nil для SlotNone.
func (r *Round) Player(slot Slot) *PlayerRound {
	switch slot {
	case SlotPlayer1:
		return &r.Players[0]
	case SlotPlayer2:
		return &r.Players[1]
	default:
		return nil
	}
}

func (r *Round) BothChose() bool {
	return r.Players[0].HasStrategy() && r.Players[1].HasStrategy()
}

func (r *Round) BothSubmitted() bool {
	return r.Players[0].Submitted() && r.Players[1].Submitted()
}

type Match struct {
	ID           string                `json:"id"`
	Player1ID    string                `json:"player1_id"`
	Player2ID    string                `json:"player2_id,omitempty"`
	Status       MatchStatus           `json:"status"`
	CurrentRound int                   `json:"current_round"`
	Rounds       [RoundsPerMatch]Round `json:"rounds"`
	Scores       [2]int                `json:"scores"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	FinishedAt   *time.Time            `json:"finished_at,omitempty"`
}

// NewMatch создаёт матч в статусе waiting с одним игроком.
func NewMatch(id, player1ID string, now time.Time) *Match {
	m := &Match{
		ID:           id,
		Player1ID:    player1ID,
		Status:       MatchStatusWaiting,
		CurrentRound: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i := range m.Rounds {
		m.Rounds[i].Number = i + 1
	}
	return m
}

func (m *Match) SlotOf(userID string) Slot {
	switch {
	case userID == "":
		return SlotNone
	case m.Player1ID == userID:
		return SlotPlayer1
	case m.Player2ID == userID:
		return SlotPlayer2
	default:
		return SlotNone
	}
}

func (m *Match) PlayerID(slot Slot) string {
	switch slot {
	case SlotPlayer1:
		return m.Player1ID
	case SlotPlayer2:
		return m.Player2ID
	default:
		return ""
	}
}

func (m *Match) Score(slot Slot) int {
	switch slot {
	case SlotPlayer1:
		return m.Scores[0]
	case SlotPlayer2:
		return m.Scores[1]
	default:
		return 0
	}
}

// Round возвращает раунд по номеру (1..RoundsPerMatch) или nil.
func (m *Match) Round(number int) *Round {
	if number < 1 || number > RoundsPerMatch {
		return nil
	}
	return &m.Rounds[number-1]
}

func (m *Match) Current() *Round {
	return m.Round(m.CurrentRound)
}

// Clone делает глубокую копию, чтобы изменения не утекали в хранилище.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	for i := range c.Rounds {
		for j := range c.Rounds[i].Players {
			p := &c.Rounds[i].Players[j]
			p.QuestionIDs = cloneSlice(p.QuestionIDs)
			p.Answers = cloneSlice(p.Answers)
			p.Correct = cloneSlice(p.Correct)
		}
	}
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
