// Package eventbus is the Event Fan-Out of §4.6: a thin translator from
// engine/session lifecycle events to transport sends over participant
// session tags, and to durable, best-effort publishes on the bus. It is
// the only component that talks to both internal/transport and
// internal/kafka.
package eventbus

import (
	"context"
	"log/slog"

	"github.com/matchcore/matchcore/internal/config"
	"github.com/matchcore/matchcore/internal/domain"
	"github.com/matchcore/matchcore/internal/kafka"
	"github.com/matchcore/matchcore/internal/transport"
)

// Bus routing keys, per §4.6/§6.
const (
	RoutingQueueJoin     = "matchmaking.queue.join"
	RoutingQueueLeave    = "matchmaking.queue.leave"
	RoutingMatchCreated  = "matchmaking.match.created"
	RoutingGameStarted   = "game.started"
	RoutingGameEnded     = "game.ended"
	RoutingRatingUpdated = "player.rating.updated"
)

// FanOut is the Event Fan-Out.
type FanOut struct {
	hub      *transport.Hub
	producer *kafka.Producer
	topics   *config.KafkaConfig
	logger   *slog.Logger
}

// New creates a Fan-Out wired to the transport hub and bus producer.
func New(hub *transport.Hub, producer *kafka.Producer, topics *config.KafkaConfig, logger *slog.Logger) *FanOut {
	return &FanOut{hub: hub, producer: producer, topics: topics, logger: logger}
}

// QueueJoined delivers queue_joined to sessionTag and publishes the
// matchmaking.queue.join routing key.
func (f *FanOut) QueueJoined(ctx context.Context, sessionTag string, mode domain.Mode, playerID string) {
	f.hub.SendToTag(sessionTag, transport.NewAck(transport.EventQueueJoined, string(mode)))
	f.producer.Publish(ctx, f.topics.BusMatchmakingTopic, RoutingQueueJoin, map[string]string{
		"playerId": playerID, "mode": string(mode),
	})
}

// QueueLeft delivers queue_left to sessionTag and publishes the
// matchmaking.queue.leave routing key.
func (f *FanOut) QueueLeft(ctx context.Context, sessionTag string, mode domain.Mode, playerID string) {
	f.hub.SendToTag(sessionTag, transport.NewAck(transport.EventQueueLeft, string(mode)))
	f.producer.Publish(ctx, f.topics.BusMatchmakingTopic, RoutingQueueLeave, map[string]string{
		"playerId": playerID, "mode": string(mode),
	})
}

// MatchFound delivers match_found to every participant of m and
// publishes matchmaking.match.created. This must only be called after
// the Matchmaking Engine has dequeued m's participants, preserving the
// happens-before chain between queue_joined and match_found.
func (f *FanOut) MatchFound(ctx context.Context, m *domain.Match) {
	f.hub.SendToTags(m.SessionTags(), transport.NewMatchFound(m))
	f.producer.Publish(ctx, f.topics.BusMatchmakingTopic, RoutingMatchCreated, map[string]interface{}{
		"matchId": m.MatchID, "mode": string(m.Mode), "participants": len(m.Participants),
	})
}

// GameStarted delivers a game_update announcing the active transition
// and publishes game.started.
func (f *FanOut) GameStarted(ctx context.Context, m *domain.Match) {
	f.hub.SendToTags(m.SessionTags(), transport.NewGameUpdate(m.MatchID, map[string]string{"type": "game_started"}))
	f.producer.Publish(ctx, f.topics.BusGameEventsTopic, RoutingGameStarted, map[string]interface{}{
		"matchId": m.MatchID, "mode": string(m.Mode),
	})
}

// GameUpdate relays an in-game action to m's participants without
// touching the bus — broadcast ordering within a match matters here;
// out-of-process notification does not need every action relayed.
func (f *FanOut) GameUpdate(tags []string, matchID string, data interface{}) {
	f.hub.SendToTags(tags, transport.NewGameUpdate(matchID, data))
}

// GameEnded delivers the settlement to m's participants and publishes
// game.ended.
func (f *FanOut) GameEnded(ctx context.Context, m *domain.Match) {
	f.hub.SendToTags(m.SessionTags(), transport.NewGameUpdate(m.MatchID, map[string]interface{}{
		"type": "game_ended", "result": m.Result,
	}))
	f.producer.Publish(ctx, f.topics.BusGameEventsTopic, RoutingGameEnded, map[string]interface{}{
		"matchId": m.MatchID, "mode": string(m.Mode), "result": m.Result,
	})
}

// RatingUpdated publishes player.rating.updated for an out-of-process
// leaderboard/notification consumer. There is no direct transport
// delivery for this event — it is bus-only.
func (f *FanOut) RatingUpdated(ctx context.Context, playerID string, mode domain.Mode, newRating int) {
	f.producer.Publish(ctx, f.topics.BusGameEventsTopic, RoutingRatingUpdated, map[string]interface{}{
		"playerId": playerID, "mode": string(mode), "rating": newRating,
	})
}
