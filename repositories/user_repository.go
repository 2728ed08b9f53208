package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/lib/pq"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserNicknameConflict = errors.New("user nickname conflict")
)

type UserRepository interface {
	Resolve(ctx context.Context, userID string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) Resolve(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT user_id, nickname, total_score, questions_completed, created_at
		FROM users
		WHERE user_id = $1`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID,
		&user.Nickname,
		&user.TotalScore,
		&user.QuestionsCompleted,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user by id %s: %w", userID, err)
	}
	return user, nil
}

func (r *postgresUserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (user_id, nickname, total_score, questions_completed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET nickname = EXCLUDED.nickname,
		    total_score = EXCLUDED.total_score,
		    questions_completed = EXCLUDED.questions_completed
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.UserID,
		user.Nickname,
		user.TotalScore,
		user.QuestionsCompleted,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && pqErr.Constraint == "users_nickname_key" {
			return ErrUserNicknameConflict
		}
		return fmt.Errorf("failed to upsert user %s: %w", user.UserID, err)
	}
	return nil
}

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: make(map[string]models.User)}
}

func (r *memoryUserRepository) Resolve(_ context.Context, userID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (r *memoryUserRepository) Upsert(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.users {
		if id != user.UserID && existing.Nickname == user.Nickname {
			return ErrUserNicknameConflict
		}
	}

	if existing, ok := r.users[user.UserID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.users[user.UserID] = *user
	return nil
}
