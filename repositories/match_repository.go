package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound      = errors.New("match not found")
	ErrMatchConflict      = errors.New("match with this id already exists")
	ErrMatchPlayerInvalid = errors.New("match player does not exist")
)

// UpdateFunc меняет матч внутри критической секции.
// Ошибка отменяет изменения и возвращается из Update как есть.
type UpdateFunc func(match *models.Match) error

type MatchRepository interface {
	Create(ctx context.Context, match *models.Match) error
	GetByID(ctx context.Context, id string) (*models.Match, error)
	// Update выполняет fn атомарно относительно других Update того же матча
	// и возвращает сохранённое состояние.
	Update(ctx context.Context, id string, fn UpdateFunc) (*models.Match, error)
	FindUnfinishedByPlayer(ctx context.Context, userID string) (*models.Match, error)
	ListWaiting(ctx context.Context, limit int) ([]*models.Match, error)
	ListStale(ctx context.Context, statuses []models.MatchStatus, before time.Time) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, player1_id, player2_id, status, current_round, rounds,
	player1_score, player2_score, created_at, updated_at, finished_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*models.Match, error) {
	var (
		match     models.Match
		player2ID sql.NullString
		rounds    []byte
	)

	err := row.Scan(
		&match.ID,
		&match.Player1ID,
		&player2ID,
		&match.Status,
		&match.CurrentRound,
		&rounds,
		&match.Scores[0],
		&match.Scores[1],
		&match.CreatedAt,
		&match.UpdatedAt,
		&match.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	match.Player2ID = player2ID.String
	if err := json.Unmarshal(rounds, &match.Rounds); err != nil {
		return nil, fmt.Errorf("failed to decode rounds of match %s: %w", match.ID, err)
	}
	return &match, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, match *models.Match) error {
	rounds, err := json.Marshal(match.Rounds)
	if err != nil {
		return fmt.Errorf("failed to encode rounds of match %s: %w", match.ID, err)
	}

	query := `
		INSERT INTO matches
			(id, player1_id, player2_id, status, current_round, rounds,
			 player1_score, player2_score, created_at, updated_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		match.ID,
		match.Player1ID,
		nullString(match.Player2ID),
		match.Status,
		match.CurrentRound,
		rounds,
		match.Scores[0],
		match.Scores[1],
		match.CreatedAt,
		match.UpdatedAt,
		match.FinishedAt,
	)
	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id string) (*models.Match, error) {
	return r.getByID(ctx, r.db, id, false)
}

func (r *postgresMatchRepository) getByID(ctx context.Context, exec SQLExecutor, id string, forUpdate bool) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	match, err := scanMatch(exec.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %s: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Match, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for match %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	match, err := r.getByID(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	if err := fn(match); err != nil {
		return nil, err
	}

	if err := r.save(ctx, tx, match); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit match %s: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) save(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	rounds, err := json.Marshal(match.Rounds)
	if err != nil {
		return fmt.Errorf("failed to encode rounds of match %s: %w", match.ID, err)
	}

	query := `
		UPDATE matches
		SET player2_id = $2, status = $3, current_round = $4, rounds = $5,
		    player1_score = $6, player2_score = $7, updated_at = $8, finished_at = $9
		WHERE id = $1`

	result, err := exec.ExecContext(ctx, query,
		match.ID,
		nullString(match.Player2ID),
		match.Status,
		match.CurrentRound,
		rounds,
		match.Scores[0],
		match.Scores[1],
		match.UpdatedAt,
		match.FinishedAt,
	)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) FindUnfinishedByPlayer(ctx context.Context, userID string) (*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE (player1_id = $1 OR player2_id = $1)
		  AND status NOT IN ('finished', 'expired')
		ORDER BY created_at DESC
		LIMIT 1`

	match, err := scanMatch(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to find unfinished match for user %s: %w", userID, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListWaiting(ctx context.Context, limit int) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = 'waiting' AND player2_id IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1`

	return r.list(ctx, query, limit)
}

func (r *postgresMatchRepository) ListStale(ctx context.Context, statuses []models.MatchStatus, before time.Time) ([]*models.Match, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC`

	return r.list(ctx, query, pq.Array(values), before)
}

func (r *postgresMatchRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if code, ok := pqErrorCode(err); ok {
		switch code {
		case pqUniqueViolation:
			return ErrMatchConflict
		case pqForeignKeyViolation:
			return ErrMatchPlayerInvalid
		}
	}
	return fmt.Errorf("match database error: %w", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
