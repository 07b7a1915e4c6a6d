// Package matchservice is the orchestration layer binding the Queue
// Store, Player Store, Game Session Manager, and Event Fan-Out into the
// single boundary the transport and bus ingestion paths call through —
// generalized from the teacher's internal/service.LeaderboardService,
// which played the same role gluing internal/redis and internal/postgres
// to internal/handler and internal/websocket.
package matchservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/matchcore/matchcore/internal/domain"
	"github.com/matchcore/matchcore/internal/kafka"
)

// PlayerLookup is the Player Store boundary the service reads a joining
// player's display name and rating from.
type PlayerLookup interface {
	Get(ctx context.Context, id string) (*domain.Player, error)
	Leaderboard(ctx context.Context, mode string, limit int) ([]domain.LeaderboardEntry, error)
	Create(ctx context.Context, name string, primaryMode domain.Mode) (*domain.Player, error)
}

// QueueStore is the Queue Store boundary.
type QueueStore interface {
	Enqueue(ctx context.Context, entry domain.QueueEntry) error
	Dequeue(ctx context.Context, mode domain.Mode, playerID string) error
	DequeueBySessionTag(ctx context.Context, tag string) ([]domain.Mode, error)
}

// SessionManager is the Game Session Manager boundary.
type SessionManager interface {
	Get(matchID string) (*domain.Match, bool)
	HandleAction(ctx context.Context, matchID, sessionTag, action string, payload json.RawMessage) error
}

// Notifier is the Event Fan-Out boundary the service emits transport/bus
// notifications through.
type Notifier interface {
	QueueJoined(ctx context.Context, sessionTag string, mode domain.Mode, playerID string)
	QueueLeft(ctx context.Context, sessionTag string, mode domain.Mode, playerID string)
}

// Service implements transport.Handler (WebSocket dispatch) and
// kafka.JoinHandler (bulk ingestion), the two inbound edges of the core
// loop.
type Service struct {
	players  PlayerLookup
	queue    QueueStore
	sessions SessionManager
	notifier Notifier
	logger   *slog.Logger
}

// New creates the match service.
func New(players PlayerLookup, queue QueueStore, sessions SessionManager, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{players: players, queue: queue, sessions: sessions, notifier: notifier, logger: logger}
}

// JoinQueue resolves playerID's current rating and enqueues it under
// mode, tagged with sessionTag for later delivery and cancellation.
func (s *Service) JoinQueue(ctx context.Context, sessionTag, playerID string, mode domain.Mode, prefs domain.Preferences) error {
	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return fmt.Errorf("resolving player for join_queue: %w", err)
	}

	entry := domain.QueueEntry{
		PlayerID:    player.ID,
		PlayerName:  player.Name,
		Mode:        mode,
		Rating:      player.RatingFor(mode),
		SessionTag:  sessionTag,
		Preferences: prefs,
		JoinedAt:    time.Now(),
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		return fmt.Errorf("enqueueing: %w", err)
	}

	s.notifier.QueueJoined(ctx, sessionTag, mode, playerID)
	return nil
}

// LeaveQueue cancels playerID's mode queue entry.
func (s *Service) LeaveQueue(ctx context.Context, sessionTag, playerID string, mode domain.Mode) error {
	if err := s.queue.Dequeue(ctx, mode, playerID); err != nil {
		return fmt.Errorf("dequeueing: %w", err)
	}
	s.notifier.QueueLeft(ctx, sessionTag, mode, playerID)
	return nil
}

// GameAction forwards an in-match action to the Game Session Manager,
// which silently drops it if sessionTag is not a participant of matchID
// or the match is not active.
func (s *Service) GameAction(ctx context.Context, sessionTag, matchID, action string, payload json.RawMessage) error {
	return s.sessions.HandleAction(ctx, matchID, sessionTag, action, payload)
}

// Disconnect cancels every queue entry sessionTag holds across all
// modes. In-flight matches are untouched — a disconnected participant
// is still addressable again if they reconnect with the same tag is not
// supported; the match simply stops delivering to that tag.
func (s *Service) Disconnect(ctx context.Context, sessionTag string) {
	modes, err := s.queue.DequeueBySessionTag(ctx, sessionTag)
	if err != nil {
		s.logger.Warn("failed to cancel queue entries on disconnect", "session_tag", sessionTag, "error", err)
		return
	}
	if len(modes) > 0 {
		s.logger.Debug("cancelled queue entries on disconnect", "session_tag", sessionTag, "modes", modes)
	}
}

// EnqueueBatch implements kafka.JoinHandler: it enqueues a batch of
// bus-ingested joins directly from their wire fields, bypassing the
// Player Store lookup the WebSocket path needs since the ingest message
// already carries name and rating.
func (s *Service) EnqueueBatch(ctx context.Context, joins []kafka.JoinMessage) error {
	now := time.Now()
	for _, join := range joins {
		entry := domain.QueueEntry{
			PlayerID:    join.PlayerID,
			PlayerName:  join.PlayerName,
			Mode:        join.Mode,
			Rating:      join.Rating,
			SessionTag:  join.SessionTag,
			Preferences: join.Preferences,
			JoinedAt:    now,
		}
		if err := s.queue.Enqueue(ctx, entry); err != nil {
			s.logger.Error("failed to enqueue ingested join", "player_id", join.PlayerID, "error", err)
			continue
		}
		s.notifier.QueueJoined(ctx, join.SessionTag, join.Mode, join.PlayerID)
	}
	return nil
}

// Player returns a player by id, for the REST API.
func (s *Service) Player(ctx context.Context, id string) (*domain.Player, error) {
	return s.players.Get(ctx, id)
}

// CreatePlayer allocates a new player, for the REST API.
func (s *Service) CreatePlayer(ctx context.Context, name string, primaryMode domain.Mode) (*domain.Player, error) {
	return s.players.Create(ctx, name, primaryMode)
}

// Leaderboard reads mode's top limit entries, for the REST API.
func (s *Service) Leaderboard(ctx context.Context, mode string, limit int) ([]domain.LeaderboardEntry, error) {
	return s.players.Leaderboard(ctx, mode, limit)
}

// Match returns a tracked match by id, for the REST API.
func (s *Service) Match(matchID string) (*domain.Match, bool) {
	return s.sessions.Get(matchID)
}
