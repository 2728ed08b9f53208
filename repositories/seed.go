package repositories

import (
	"context"
	"fmt"
	"os"

	"github.com/Dosada05/quiz-duel/models"
	"gopkg.in/yaml.v3"
)

// Seed - начальные данные: игроки и банк вопросов.
type Seed struct {
	Users     []models.User     `yaml:"users"`
	Questions []models.Question `yaml:"questions"`
}

// LoadSeed читает YAML-файл с пользователями и вопросами и проверяет его.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	userIDs := make(map[string]struct{}, len(s.Users))
	for i, u := range s.Users {
		if u.UserID == "" || u.Nickname == "" {
			return fmt.Errorf("user #%d: user_id and nickname are required", i+1)
		}
		if _, dup := userIDs[u.UserID]; dup {
			return fmt.Errorf("user %s is listed twice", u.UserID)
		}
		userIDs[u.UserID] = struct{}{}
	}

	questionIDs := make(map[string]struct{}, len(s.Questions))
	for i, q := range s.Questions {
		if q.ID == "" || q.Text == "" {
			return fmt.Errorf("question #%d: id and question_text are required", i+1)
		}
		if _, dup := questionIDs[q.ID]; dup {
			return fmt.Errorf("question %s is listed twice", q.ID)
		}
		questionIDs[q.ID] = struct{}{}
		if !q.Difficulty.Valid() {
			return fmt.Errorf("question %s: unknown difficulty %q", q.ID, q.Difficulty)
		}
		if len(q.Answer) == 0 {
			return fmt.Errorf("question %s: answer is required", q.ID)
		}
		if q.Type == "" {
			s.Questions[i].Type = models.QuestionTypeSingle
		}
	}
	return nil
}

// Apply записывает данные сида в хранилища.
func (s *Seed) Apply(ctx context.Context, users UserRepository, questions QuestionRepository) error {
	for i := range s.Users {
		if err := users.Upsert(ctx, &s.Users[i]); err != nil {
			return fmt.Errorf("seed user %s: %w", s.Users[i].UserID, err)
		}
	}
	for i := range s.Questions {
		if err := questions.Upsert(ctx, &s.Questions[i]); err != nil {
			return fmt.Errorf("seed question %s: %w", s.Questions[i].ID, err)
		}
	}
	return nil
}
