package models

import "strings"

type Difficulty string

const (
	DifficultyEasy Difficulty = "easy"
	DifficultyHard Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyHard
}

type QuestionType string

const (
	QuestionTypeSingle   QuestionType = "single"
	QuestionTypeMultiple QuestionType = "multiple"
	QuestionTypeBoolean  QuestionType = "boolean"
)

// QuestionSummary - то, что видит игрок: без ключа ответа.
type QuestionSummary struct {
	ID         string       `json:"id" yaml:"id"`
	Text       string       `json:"question_text" yaml:"question_text"`
	Options    []string     `json:"options" yaml:"options"`
	Type       QuestionType `json:"type" yaml:"type"`
	Difficulty Difficulty   `json:"difficulty" yaml:"difficulty"`
}

type Question struct {
	QuestionSummary `yaml:",inline"`
	Answer          []string `json:"-" yaml:"answer"`
	Explanation     string   `json:"explanation,omitempty" yaml:"explanation"`
}

// Accepts проверяет ответ по ключу. Пустой ответ всегда неверный.
func (q *Question) Accepts(answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}
	for _, accepted := range q.Answer {
		if strings.TrimSpace(accepted) == answer {
			return true
		}
	}
	return false
}
