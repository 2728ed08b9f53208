package models

import "time"

type User struct {
	UserID             string    `json:"user_id" yaml:"user_id"`
	Nickname           string    `json:"nickname" yaml:"nickname"`
	TotalScore         int       `json:"total_score" yaml:"total_score"`
	QuestionsCompleted int       `json:"questions_completed" yaml:"questions_completed"`
	CreatedAt          time.Time `json:"created_at" yaml:"-"`
}

// QueueEntry - открытый запрос на матч с конкретным соперником.
type QueueEntry struct {
	UserID      string    `json:"user_id"`
	TargetID    string    `json:"target_id"`
	RequestedAt time.Time `json:"requested_at"`
}
