package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/quiz-duel/models"
)

// memoryMatchRepository держит матчи в процессе. Update сериализуется
// замком конкретного матча, fn работает с копией.
type memoryMatchRepository struct {
	mu      sync.RWMutex
	matches map[string]*models.Match
	locks   map[string]*sync.Mutex
}

func NewMemoryMatchRepository() MatchRepository {
	return &memoryMatchRepository{
		matches: make(map[string]*models.Match),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *memoryMatchRepository) Create(_ context.Context, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.matches[match.ID]; exists {
		return ErrMatchConflict
	}
	r.matches[match.ID] = match.Clone()
	r.locks[match.ID] = &sync.Mutex{}
	return nil
}

func (r *memoryMatchRepository) GetByID(_ context.Context, id string) (*models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	match, ok := r.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return match.Clone(), nil
}

func (r *memoryMatchRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Match, error) {
	r.mu.RLock()
	lock, ok := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrMatchNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(working); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.matches[id] = working.Clone()
	r.mu.Unlock()

	return working, nil
}

func (r *memoryMatchRepository) FindUnfinishedByPlayer(_ context.Context, userID string) (*models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.Match
	for _, m := range r.matches {
		if m.Status.IsTerminal() || m.SlotOf(userID) == models.SlotNone {
			continue
		}
		if found == nil || m.CreatedAt.After(found.CreatedAt) {
			found = m
		}
	}
	if found == nil {
		return nil, ErrMatchNotFound
	}
	return found.Clone(), nil
}

func (r *memoryMatchRepository) ListWaiting(_ context.Context, limit int) ([]*models.Match, error) {
	waiting := r.filter(func(m *models.Match) bool {
		return m.Status == models.MatchStatusWaiting && m.Player2ID == ""
	})

	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].CreatedAt.Equal(waiting[j].CreatedAt) {
			return waiting[i].ID < waiting[j].ID
		}
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})

	if limit > 0 && len(waiting) > limit {
		waiting = waiting[:limit]
	}
	return waiting, nil
}

func (r *memoryMatchRepository) ListStale(_ context.Context, statuses []models.MatchStatus, before time.Time) ([]*models.Match, error) {
	stale := r.filter(func(m *models.Match) bool {
		return slices.Contains(statuses, m.Status) && m.UpdatedAt.Before(before)
	})

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	return stale, nil
}

func (r *memoryMatchRepository) filter(keep func(*models.Match) bool) []*models.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Match, 0)
	for _, m := range r.matches {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	return out
}
