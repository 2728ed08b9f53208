package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/quiz-duel/models"
)

var (
	ErrQueueEntryNotFound = errors.New("queue entry not found")
	ErrQueueEntryConflict = errors.New("user already has a pending match request")
)

type QueueRepository interface {
	Get(ctx context.Context, userID string) (*models.QueueEntry, error)
	Insert(ctx context.Context, entry *models.QueueEntry) error
	Delete(ctx context.Context, userID string) error
	// ClaimReciprocal атомарно снимает заявку waiterID, если она всё ещё нацелена на requesterID,
	// и удаляет заявку requesterID, если она есть. Без встречной заявки - ErrQueueEntryNotFound.
	ClaimReciprocal(ctx context.Context, waiterID, requesterID string) error
	Count(ctx context.Context) (int, error)
	ListBefore(ctx context.Context, before time.Time) ([]*models.QueueEntry, error)
}

type postgresQueueRepository struct {
	db *sql.DB
}

func NewPostgresQueueRepository(db *sql.DB) QueueRepository {
	return &postgresQueueRepository{db: db}
}

func (r *postgresQueueRepository) Get(ctx context.Context, userID string) (*models.QueueEntry, error) {
	query := `SELECT user_id, target_id, requested_at FROM matchmaking_queue WHERE user_id = $1`

	entry := &models.QueueEntry{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&entry.UserID, &entry.TargetID, &entry.RequestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan queue entry for user %s: %w", userID, err)
	}
	return entry, nil
}

func (r *postgresQueueRepository) Insert(ctx context.Context, entry *models.QueueEntry) error {
	query := `INSERT INTO matchmaking_queue (user_id, target_id, requested_at) VALUES ($1, $2, $3)`

	_, err := r.db.ExecContext(ctx, query, entry.UserID, entry.TargetID, entry.RequestedAt)
	if err != nil {
		if code, ok := pqErrorCode(err); ok && code == pqUniqueViolation {
			return ErrQueueEntryConflict
		}
		return fmt.Errorf("failed to insert queue entry for user %s: %w", entry.UserID, err)
	}
	return nil
}

func (r *postgresQueueRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM matchmaking_queue WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry for user %s: %w", userID, err)
	}
	return checkAffectedRows(result, ErrQueueEntryNotFound)
}

func (r *postgresQueueRepository) ClaimReciprocal(ctx context.Context, waiterID, requesterID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for queue claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Блокировка строки ожидающего сериализует конкурентные попытки забрать одну заявку.
	var target string
	err = tx.QueryRowContext(ctx,
		`SELECT target_id FROM matchmaking_queue WHERE user_id = $1 FOR UPDATE`, waiterID,
	).Scan(&target)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQueueEntryNotFound
		}
		return fmt.Errorf("failed to lock queue entry for user %s: %w", waiterID, err)
	}
	if target != requesterID {
		return ErrQueueEntryNotFound
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM matchmaking_queue WHERE user_id = $1 AND target_id = $2`, waiterID, requesterID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry for user %s: %w", waiterID, err)
	}
	if err := checkAffectedRows(result, ErrQueueEntryNotFound); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM matchmaking_queue WHERE user_id = $1`, requesterID); err != nil {
		return fmt.Errorf("failed to delete queue entry for user %s: %w", requesterID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue claim: %w", err)
	}
	return nil
}

func (r *postgresQueueRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matchmaking_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

func (r *postgresQueueRepository) ListBefore(ctx context.Context, before time.Time) ([]*models.QueueEntry, error) {
	query := `
		SELECT user_id, target_id, requested_at
		FROM matchmaking_queue
		WHERE requested_at < $1
		ORDER BY requested_at ASC`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale queue entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.QueueEntry, 0)
	for rows.Next() {
		var entry models.QueueEntry
		if err := rows.Scan(&entry.UserID, &entry.TargetID, &entry.RequestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry row: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue rows: %w", err)
	}
	return entries, nil
}

type memoryQueueRepository struct {
	mu      sync.Mutex
	entries map[string]models.QueueEntry
}

func NewMemoryQueueRepository() QueueRepository {
	return &memoryQueueRepository{entries: make(map[string]models.QueueEntry)}
}

func (r *memoryQueueRepository) Get(_ context.Context, userID string) (*models.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok {
		return nil, ErrQueueEntryNotFound
	}
	return &entry, nil
}

func (r *memoryQueueRepository) Insert(_ context.Context, entry *models.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.UserID]; exists {
		return ErrQueueEntryConflict
	}
	r.entries[entry.UserID] = *entry
	return nil
}

func (r *memoryQueueRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[userID]; !exists {
		return ErrQueueEntryNotFound
	}
	delete(r.entries, userID)
	return nil
}

func (r *memoryQueueRepository) ClaimReciprocal(_ context.Context, waiterID, requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	waiting, ok := r.entries[waiterID]
	if !ok || waiting.TargetID != requesterID {
		return ErrQueueEntryNotFound
	}
	delete(r.entries, waiterID)
	delete(r.entries, requesterID)
	return nil
}

func (r *memoryQueueRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), nil
}

func (r *memoryQueueRepository) ListBefore(_ context.Context, before time.Time) ([]*models.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*models.QueueEntry, 0)
	for _, e := range r.entries {
		if e.RequestedAt.Before(before) {
			entry := e
			entries = append(entries, &entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RequestedAt.Before(entries[j].RequestedAt)
	})
	return entries, nil
}
