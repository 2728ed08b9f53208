package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/quiz-duel/models"
	"github.com/Dosada05/quiz-duel/repositories"
	"github.com/google/uuid"
)

// joinCandidateLimit - сколько ожидающих матчей просматривает JoinMatch за раз.
const joinCandidateLimit = 50

const (
	RequestStatusPending = "pending"
	RequestStatusMatched = "matched"

	PlayerStatusIdle    = "idle"
	PlayerStatusWaiting = "waiting"
	PlayerStatusMatched = "matched"
)

type MatchRequestResult struct {
	Status           string `json:"status"`
	TargetID         string `json:"target_id,omitempty"`
	MatchID          string `json:"match_id,omitempty"`
	Opponent         string `json:"opponent,omitempty"`
	OpponentNickname string `json:"opponent_nickname,omitempty"`
}

// PlayerStatus - ответ getStatus: idle, waiting (заявка или свой открытый матч) или matched.
type PlayerStatus struct {
	Status      string             `json:"status"`
	TargetID    string             `json:"target_id,omitempty"`
	QueueTimeMs int64              `json:"queue_time_ms,omitempty"`
	MatchID     string             `json:"match_id,omitempty"`
	MatchStatus models.MatchStatus `json:"match_status,omitempty"`
	Opponent    string             `json:"opponent,omitempty"`
	StartTime   *time.Time         `json:"start_time,omitempty"`
	DurationMs  int64              `json:"duration_ms,omitempty"`
}

// ExpiryReport - итог одного прохода очистки.
type ExpiryReport struct {
	QueueEntries int `json:"queue_entries"`
	Matches      int `json:"matches"`
}

type MatchmakingService interface {
	CreateMatch(ctx context.Context, creatorID string) (*models.Match, error)
	RequestMatch(ctx context.Context, userID, targetID string) (*MatchRequestResult, error)
	CancelMatch(ctx context.Context, userID string) error
	GetStatus(ctx context.Context, userID string) (*PlayerStatus, error)
	JoinMatch(ctx context.Context, userID string) (*models.Match, error)
	ExpireStale(ctx context.Context, ttl time.Duration) (*ExpiryReport, error)
}

// errMatchTaken - кандидат уже изменился между выборкой и Update.
var errMatchTaken = errors.New("match no longer available")

// errNoReciprocal - у цели нет встречной заявки на этого пользователя.
var errNoReciprocal = errors.New("no reciprocal queue entry")

type matchmakingService struct {
	// mu сериализует все изменения членства: очередь, создание и вход в матч.
	mu sync.Mutex

	matches  repositories.MatchRepository
	queue    repositories.QueueRepository
	users    UserDirectory
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewMatchmakingService(
	matches repositories.MatchRepository,
	queue repositories.QueueRepository,
	users UserDirectory,
	notifier Notifier,
	metrics *Metrics,
	logger *slog.Logger,
) MatchmakingService {
	return newMatchmakingService(matches, queue, users, notifier, metrics, logger)
}

func newMatchmakingService(
	matches repositories.MatchRepository,
	queue repositories.QueueRepository,
	users UserDirectory,
	notifier Notifier,
	metrics *Metrics,
	logger *slog.Logger,
) *matchmakingService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &matchmakingService{
		matches:  matches,
		queue:    queue,
		users:    users,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

func (s *matchmakingService) CreateMatch(ctx context.Context, creatorID string) (*models.Match, error) {
	if creatorID == "" {
		return nil, ErrUserIDRequired
	}
	if _, err := resolveUser(ctx, s.users, creatorID, ErrUserNotFound); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ensureIdle(ctx, creatorID); err != nil {
		return nil, err
	}

	match := models.NewMatch(s.newID(), creatorID, s.now())
	if err := s.matches.Create(ctx, match); err != nil {
		return nil, s.createError(err)
	}

	s.metrics.matchCreated("create")
	s.logger.InfoContext(ctx, "Match created", slog.String("match_id", match.ID), slog.String("creator_id", creatorID))
	return match, nil
}

func (s *matchmakingService) RequestMatch(ctx context.Context, userID, targetID string) (*MatchRequestResult, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if targetID == "" {
		return nil, ErrTargetIDRequired
	}
	if userID == targetID {
		return nil, ErrSelfMatch
	}

	if _, err := resolveUser(ctx, s.users, userID, ErrUserNotFound); err != nil {
		return nil, err
	}
	target, err := resolveUser(ctx, s.users, targetID, ErrTargetNotFound)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ensureIdle(ctx, userID); err != nil {
		return nil, err
	}

	match, err := s.pairMutual(ctx, targetID, userID)
	switch {
	case err == nil:
		return &MatchRequestResult{
			Status:           RequestStatusMatched,
			TargetID:         targetID,
			MatchID:          match.ID,
			Opponent:         targetID,
			OpponentNickname: target.Nickname,
		}, nil
	case !errors.Is(err, errNoReciprocal):
		return nil, err
	}

	entry := &models.QueueEntry{UserID: userID, TargetID: targetID, RequestedAt: s.now()}
	if err := s.queue.Insert(ctx, entry); err != nil {
		if errors.Is(err, repositories.ErrQueueEntryConflict) {
			return nil, ErrAlreadyQueued
		}
		return nil, internalError("insert queue entry", err)
	}
	s.refreshQueueGauge(ctx)

	s.logger.InfoContext(ctx, "Match requested", slog.String("user_id", userID), slog.String("target_id", targetID))
	return &MatchRequestResult{Status: RequestStatusPending, TargetID: targetID}, nil
}

// pairMutual забирает встречную заявку firstID и создаёт готовый матч.
// Первым игроком становится тот, кто подал заявку раньше. Вызывается под s.mu.
// Без встречной заявки возвращает errNoReciprocal.
func (s *matchmakingService) pairMutual(ctx context.Context, firstID, secondID string) (*models.Match, error) {
	if err := s.queue.ClaimReciprocal(ctx, firstID, secondID); err != nil {
		if errors.Is(err, repositories.ErrQueueEntryNotFound) {
			return nil, errNoReciprocal
		}
		return nil, internalError("claim reciprocal queue entry", err)
	}

	match := models.NewMatch(s.newID(), firstID, s.now())
	match.Player2ID = secondID
	match.Status = models.MatchStatusReady

	if err := s.matches.Create(ctx, match); err != nil {
		return nil, s.createError(err)
	}

	s.refreshQueueGauge(ctx)
	s.metrics.matchCreated("mutual")
	s.logger.InfoContext(ctx, "Mutual match created",
		slog.String("match_id", match.ID),
		slog.String("player1_id", firstID),
		slog.String("player2_id", secondID),
	)
	return match, nil
}

func (s *matchmakingService) CancelMatch(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queue.Delete(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrQueueEntryNotFound) {
			return ErrNoPendingRequest
		}
		return internalError("delete queue entry", err)
	}
	s.refreshQueueGauge(ctx)

	s.logger.InfoContext(ctx, "Match request cancelled", slog.String("user_id", userID))
	return nil
}

func (s *matchmakingService) GetStatus(ctx context.Context, userID string) (*PlayerStatus, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	now := s.now()

	entry, err := s.queue.Get(ctx, userID)
	switch {
	case err == nil:
		return &PlayerStatus{
			Status:      PlayerStatusWaiting,
			TargetID:    entry.TargetID,
			QueueTimeMs: now.Sub(entry.RequestedAt).Milliseconds(),
		}, nil
	case !errors.Is(err, repositories.ErrQueueEntryNotFound):
		return nil, internalError("get queue entry", err)
	}

	match, err := s.matches.FindUnfinishedByPlayer(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return &PlayerStatus{Status: PlayerStatusIdle}, nil
		}
		return nil, internalError("find unfinished match", err)
	}

	if match.Status == models.MatchStatusWaiting {
		return &PlayerStatus{
			Status:      PlayerStatusWaiting,
			MatchID:     match.ID,
			MatchStatus: match.Status,
			QueueTimeMs: now.Sub(match.CreatedAt).Milliseconds(),
		}, nil
	}

	start := match.CreatedAt
	return &PlayerStatus{
		Status:      PlayerStatusMatched,
		MatchID:     match.ID,
		MatchStatus: match.Status,
		Opponent:    match.PlayerID(match.SlotOf(userID).Opponent()),
		StartTime:   &start,
		DurationMs:  now.Sub(start).Milliseconds(),
	}, nil
}

func (s *matchmakingService) JoinMatch(ctx context.Context, userID string) (*models.Match, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if _, err := resolveUser(ctx, s.users, userID, ErrUserNotFound); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, err := s.ensureIdle(ctx, userID); err != nil {
		if current != nil && current.Status == models.MatchStatusWaiting && current.Player1ID == userID {
			return nil, ErrCannotJoinOwnMatch
		}
		return nil, err
	}

	candidates, err := s.matches.ListWaiting(ctx, joinCandidateLimit)
	if err != nil {
		return nil, internalError("list waiting matches", err)
	}

	for _, candidate := range candidates {
		if candidate.Player1ID == userID {
			continue
		}

		joined, err := s.matches.Update(ctx, candidate.ID, func(m *models.Match) error {
			if m.Status != models.MatchStatusWaiting || m.Player2ID != "" {
				return errMatchTaken
			}
			m.Player2ID = userID
			m.Status = models.MatchStatusReady
			m.UpdatedAt = s.now()
			return nil
		})
		if errors.Is(err, errMatchTaken) || errors.Is(err, repositories.ErrMatchNotFound) {
			continue
		}
		if err != nil {
			return nil, internalError("join match", err)
		}

		s.notifier.Publish(joined.ID, EventOpponentJoined, map[string]interface{}{
			"match_id":     joined.ID,
			"player2_id":   userID,
			"match_status": joined.Status,
		})
		s.logger.InfoContext(ctx, "Match joined", slog.String("match_id", joined.ID), slog.String("user_id", userID))
		return joined, nil
	}

	return nil, ErrNoWaitingMatch
}

func (s *matchmakingService) ExpireStale(ctx context.Context, ttl time.Duration) (*ExpiryReport, error) {
	report := &ExpiryReport{}
	if ttl <= 0 {
		return report, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-ttl)

	entries, err := s.queue.ListBefore(ctx, cutoff)
	if err != nil {
		return nil, internalError("list stale queue entries", err)
	}
	for _, entry := range entries {
		if err := s.queue.Delete(ctx, entry.UserID); err != nil && !errors.Is(err, repositories.ErrQueueEntryNotFound) {
			return nil, internalError("delete stale queue entry", err)
		}
		report.QueueEntries++
	}

	stale, err := s.matches.ListStale(ctx, []models.MatchStatus{models.MatchStatusWaiting, models.MatchStatusReady}, cutoff)
	if err != nil {
		return nil, internalError("list stale matches", err)
	}
	for _, candidate := range stale {
		expired, err := s.matches.Update(ctx, candidate.ID, func(m *models.Match) error {
			if (m.Status != models.MatchStatusWaiting && m.Status != models.MatchStatusReady) || !m.UpdatedAt.Before(cutoff) {
				return errMatchTaken
			}
			m.Status = models.MatchStatusExpired
			m.UpdatedAt = now
			return nil
		})
		if errors.Is(err, errMatchTaken) {
			continue
		}
		if err != nil {
			return nil, internalError("expire match", err)
		}

		report.Matches++
		s.metrics.matchExpired()
		s.notifier.Publish(expired.ID, EventMatchExpired, map[string]interface{}{
			"match_id":     expired.ID,
			"match_status": expired.Status,
		})
	}

	s.refreshQueueGauge(ctx)
	if report.QueueEntries > 0 || report.Matches > 0 {
		s.logger.InfoContext(ctx, "Expired stale matchmaking state",
			slog.Int("queue_entries", report.QueueEntries),
			slog.Int("matches", report.Matches),
		)
	}
	return report, nil
}

// ensureIdle проверяет, что у пользователя нет заявки и незавершённого матча.
// Найденный матч возвращается вместе с ошибкой.
func (s *matchmakingService) ensureIdle(ctx context.Context, userID string) (*models.Match, error) {
	_, err := s.queue.Get(ctx, userID)
	switch {
	case err == nil:
		return nil, ErrAlreadyQueued
	case !errors.Is(err, repositories.ErrQueueEntryNotFound):
		return nil, internalError("get queue entry", err)
	}

	match, err := s.matches.FindUnfinishedByPlayer(ctx, userID)
	switch {
	case err == nil:
		return match, ErrAlreadyInMatch
	case !errors.Is(err, repositories.ErrMatchNotFound):
		return nil, internalError("find unfinished match", err)
	}
	return nil, nil
}

func (s *matchmakingService) createError(err error) error {
	if errors.Is(err, repositories.ErrMatchPlayerInvalid) {
		return ErrInvalidUserReference
	}
	return internalError("create match", err)
}

func (s *matchmakingService) refreshQueueGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	count, err := s.queue.Count(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to count queue entries", slog.Any("error", err))
		return
	}
	s.metrics.setQueueEntries(count)
}

func resolveUser(ctx context.Context, users UserDirectory, userID string, notFound error) (*models.User, error) {
	user, err := users.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, notFound
		}
		return nil, internalError("resolve user", err)
	}
	return user, nil
}
