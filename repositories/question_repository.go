package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/lib/pq"
)

var ErrQuestionNotFound = errors.New("question not found")

type QuestionRepository interface {
	// Sample возвращает до count случайных вопросов заданной сложности.
	Sample(ctx context.Context, difficulty models.Difficulty, count int) ([]models.QuestionSummary, error)
	// Lookup возвращает вопросы в порядке ids или ErrQuestionNotFound.
	Lookup(ctx context.Context, ids []string) ([]models.QuestionSummary, error)
	CheckAnswer(ctx context.Context, questionID, answer string) (bool, error)
	Upsert(ctx context.Context, question *models.Question) error
}

type postgresQuestionRepository struct {
	db *sql.DB
}

func NewPostgresQuestionRepository(db *sql.DB) QuestionRepository {
	return &postgresQuestionRepository{db: db}
}

func (r *postgresQuestionRepository) Sample(ctx context.Context, difficulty models.Difficulty, count int) ([]models.QuestionSummary, error) {
	query := `
		SELECT id, question_text, options, type, difficulty
		FROM questions
		WHERE difficulty = $1
		ORDER BY random()
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, difficulty, count)
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s questions: %w", difficulty, err)
	}
	defer rows.Close()

	return scanQuestionSummaries(rows)
}

func (r *postgresQuestionRepository) Lookup(ctx context.Context, ids []string) ([]models.QuestionSummary, error) {
	query := `
		SELECT id, question_text, options, type, difficulty
		FROM questions
		WHERE id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to look up questions: %w", err)
	}
	defer rows.Close()

	found, err := scanQuestionSummaries(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(found, ids)
}

func (r *postgresQuestionRepository) CheckAnswer(ctx context.Context, questionID, answer string) (bool, error) {
	var question models.Question
	err := r.db.QueryRowContext(ctx, `SELECT answer FROM questions WHERE id = $1`, questionID).
		Scan(pq.Array(&question.Answer))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrQuestionNotFound
		}
		return false, fmt.Errorf("failed to load answer key for question %s: %w", questionID, err)
	}
	return question.Accepts(answer), nil
}

func (r *postgresQuestionRepository) Upsert(ctx context.Context, q *models.Question) error {
	query := `
		INSERT INTO questions (id, question_text, options, answer, type, difficulty, explanation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET question_text = EXCLUDED.question_text,
		    options = EXCLUDED.options,
		    answer = EXCLUDED.answer,
		    type = EXCLUDED.type,
		    difficulty = EXCLUDED.difficulty,
		    explanation = EXCLUDED.explanation`

	_, err := r.db.ExecContext(ctx, query,
		q.ID,
		q.Text,
		pq.Array(q.Options),
		pq.Array(q.Answer),
		q.Type,
		q.Difficulty,
		q.Explanation,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert question %s: %w", q.ID, err)
	}
	return nil
}

func scanQuestionSummaries(rows *sql.Rows) ([]models.QuestionSummary, error) {
	questions := make([]models.QuestionSummary, 0)
	for rows.Next() {
		var q models.QuestionSummary
		if err := rows.Scan(&q.ID, &q.Text, pq.Array(&q.Options), &q.Type, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}
	return questions, nil
}

func orderByIDs(found []models.QuestionSummary, ids []string) ([]models.QuestionSummary, error) {
	byID := make(map[string]models.QuestionSummary, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}

	ordered := make([]models.QuestionSummary, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
		}
		ordered = append(ordered, q)
	}
	return ordered, nil
}

type memoryQuestionRepository struct {
	mu        sync.RWMutex
	questions map[string]models.Question
}

func NewMemoryQuestionRepository() QuestionRepository {
	return &memoryQuestionRepository{questions: make(map[string]models.Question)}
}

func (r *memoryQuestionRepository) Sample(_ context.Context, difficulty models.Difficulty, count int) ([]models.QuestionSummary, error) {
	r.mu.RLock()
	pool := make([]models.QuestionSummary, 0)
	for _, q := range r.questions {
		if q.Difficulty == difficulty {
			pool = append(pool, summaryOf(q))
		}
	}
	r.mu.RUnlock()

	// Стабильный порядок перед перемешиванием, чтобы выборка зависела только от rand.
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	if len(pool) > count {
		pool = pool[:count]
	}
	return pool, nil
}

func (r *memoryQuestionRepository) Lookup(_ context.Context, ids []string) ([]models.QuestionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := make([]models.QuestionSummary, 0, len(ids))
	for _, id := range ids {
		if q, ok := r.questions[id]; ok {
			found = append(found, summaryOf(q))
		}
	}
	return orderByIDs(found, ids)
}

func (r *memoryQuestionRepository) CheckAnswer(_ context.Context, questionID, answer string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questions[questionID]
	if !ok {
		return false, ErrQuestionNotFound
	}
	return q.Accepts(answer), nil
}

func (r *memoryQuestionRepository) Upsert(_ context.Context, q *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *q
	stored.Options = append([]string(nil), q.Options...)
	stored.Answer = append([]string(nil), q.Answer...)
	r.questions[q.ID] = stored
	return nil
}

func summaryOf(q models.Question) models.QuestionSummary {
	s := q.QuestionSummary
	s.Options = append([]string(nil), q.Options...)
	return s
}
