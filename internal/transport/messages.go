package transport

import (
	"encoding/json"
	"time"

	"github.com/matchcore/matchcore/internal/domain"
)

// Inbound event type names, per §6's transport contract.
const (
	EventJoinQueue  = "join_queue"
	EventLeaveQueue = "leave_queue"
	EventGameAction = "game_action"
)

// Outbound event type names.
const (
	EventQueueJoined = "queue_joined"
	EventQueueLeft   = "queue_left"
	EventMatchFound  = "match_found"
	EventGameUpdate  = "game_update"
	EventError       = "error"
)

// ClientMessage is one inbound transport event, decoded in two passes:
// the envelope first, then Payload re-decoded per Type.
type ClientMessage struct {
	Type        string          `json:"type"`
	PlayerID    string          `json:"playerId,omitempty"`
	GameMode    string          `json:"gameMode,omitempty"`
	Preferences domain.Preferences `json:"preferences,omitempty"`
	GameID      string          `json:"gameId,omitempty"`
	Action      string          `json:"action,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is one outbound transport event.
type ServerMessage struct {
	Type      string      `json:"type"`
	GameID    string      `json:"gameId,omitempty"`
	GameMode  string      `json:"gameMode,omitempty"`
	Players   []MatchPlayer `json:"players,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MatchPlayer is the participant summary sent in match_found, per §6.
type MatchPlayer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// NewMatchFound builds the match_found payload delivered only to m's
// participants.
func NewMatchFound(m *domain.Match) ServerMessage {
	players := make([]MatchPlayer, len(m.Participants))
	for i, p := range m.Participants {
		players[i] = MatchPlayer{ID: p.ID, Username: p.Name, Rating: p.Rating}
	}
	return ServerMessage{
		Type:      EventMatchFound,
		GameID:    m.MatchID,
		GameMode:  string(m.Mode),
		Players:   players,
		Timestamp: time.Now(),
	}
}

// NewGameUpdate wraps data as a game_update event for matchID.
func NewGameUpdate(matchID string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:      EventGameUpdate,
		GameID:    matchID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewAck builds a bare acknowledgement event (queue_joined, queue_left).
func NewAck(eventType, gameMode string) ServerMessage {
	return ServerMessage{Type: eventType, GameMode: gameMode, Timestamp: time.Now()}
}

// NewError builds a per-sender error event.
func NewError(message string) ServerMessage {
	return ServerMessage{Type: EventError, Message: message, Timestamp: time.Now()}
}
