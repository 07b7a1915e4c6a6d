// Package session is the Game Session Manager of §4.5: owns Match
// records from creation through settlement, dispatches in-game actions,
// and drives the starting -> active -> finished -> evicted state
// machine on its own timers.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/matchcore/matchcore/internal/domain"
	"github.com/matchcore/matchcore/internal/rating"
)

// MatchStore is the durable persistence the manager writes through on
// every lifecycle transition.
type MatchStore interface {
	SetMatch(ctx context.Context, m *domain.Match) error
	DeleteMatch(ctx context.Context, id string) error
}

// Rater applies a settlement's rating update. Implemented by
// internal/playerstore.Store.
type Rater interface {
	UpdateRating(ctx context.Context, id string, mode domain.Mode, opponentRating int, outcome rating.Outcome, matchID string) (*domain.Player, error)
}

// Notifier is the Event Fan-Out boundary the manager emits lifecycle
// events through.
type Notifier interface {
	GameStarted(ctx context.Context, m *domain.Match)
	GameUpdate(tags []string, matchID string, data interface{})
	GameEnded(ctx context.Context, m *domain.Match)
	RatingUpdated(ctx context.Context, playerID string, mode domain.Mode, newRating int)
}

// Manager is the Game Session Manager. The in-memory matches map is the
// only shared mutable core structure it holds: entries are immutable
// *domain.Match snapshots replaced wholesale under the mutex, never
// mutated in place.
type Manager struct {
	mu      sync.Mutex
	matches map[string]*domain.Match
	actors  map[string]chan func()
	timers  map[string]*time.Timer

	store      MatchStore
	rater      Rater
	notifier   Notifier
	startDelay time.Duration
	evictDelay time.Duration
	logger     *slog.Logger
}

// New creates a Game Session Manager.
func New(store MatchStore, rater Rater, notifier Notifier, startDelay, evictDelay time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		matches:    make(map[string]*domain.Match),
		actors:     make(map[string]chan func()),
		timers:     make(map[string]*time.Timer),
		store:      store,
		rater:      rater,
		notifier:   notifier,
		startDelay: startDelay,
		evictDelay: evictDelay,
		logger:     logger,
	}
}

// Create persists a new match with status starting, keeps a hot
// in-memory reference, schedules the start timer, and returns. The
// participants slice is frozen in the order given.
func (m *Manager) Create(ctx context.Context, matchID string, participants []domain.Participant, mode domain.Mode) (*domain.Match, error) {
	cfg := domain.ConfigFor(mode)
	if cfg == nil {
		return nil, fmt.Errorf("unknown mode %q: %w", mode, domain.ErrInvalidInput)
	}

	frozen := make([]domain.Participant, len(participants))
	copy(frozen, participants)

	match := &domain.Match{
		MatchID:      matchID,
		Participants: frozen,
		Mode:         mode,
		Config:       cfg,
		CreatedAt:    time.Now(),
		Status:       domain.StatusStarting,
	}

	if err := m.store.SetMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("persisting match: %w", err)
	}

	actorCh := make(chan func(), 64)
	go runActor(actorCh)

	m.mu.Lock()
	m.matches[matchID] = match
	m.actors[matchID] = actorCh
	m.timers[matchID] = time.AfterFunc(m.startDelay, func() {
		if err := m.start(context.Background(), matchID); err != nil {
			m.logger.Error("failed to auto-start match", "match_id", matchID, "error", err)
		}
	})
	m.mu.Unlock()

	return match, nil
}

// start transitions starting -> active. No-op if the match is already
// active or finished, or no longer tracked (Conflict, per §7, is
// treated as a no-op).
func (m *Manager) start(ctx context.Context, matchID string) error {
	m.mu.Lock()
	match, ok := m.matches[matchID]
	if !ok || match.Status != domain.StatusStarting {
		m.mu.Unlock()
		return nil
	}
	now := time.Now()
	updated := *match
	updated.Status = domain.StatusActive
	updated.StartedAt = &now
	m.matches[matchID] = &updated
	m.mu.Unlock()

	if err := m.store.SetMatch(ctx, &updated); err != nil {
		return fmt.Errorf("persisting started match: %w", err)
	}
	m.notifier.GameStarted(ctx, &updated)
	return nil
}

// Get returns the in-memory match, or false if it is unknown or has
// already been evicted.
func (m *Manager) Get(matchID string) (*domain.Match, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[matchID]
	return match, ok
}

// Snapshot returns every match currently tracked in memory, used by the
// sync worker's periodic durability pass.
func (m *Manager) Snapshot() []*domain.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Match, 0, len(m.matches))
	for _, match := range m.matches {
		out = append(out, match)
	}
	return out
}

// HandleAction routes one client action to matchID's serialized actor.
// Per §4.5, an inactive match, an unknown match, or a sessionTag that
// is not among the match's participants is a silent drop — no
// client-visible error.
func (m *Manager) HandleAction(ctx context.Context, matchID, sessionTag, action string, payload json.RawMessage) error {
	m.mu.Lock()
	match, ok := m.matches[matchID]
	actorCh := m.actors[matchID]
	m.mu.Unlock()

	if !ok || match.Status != domain.StatusActive {
		return nil
	}
	participant := match.ParticipantByTag(sessionTag)
	if participant == nil {
		return nil
	}

	select {
	case actorCh <- func() { m.dispatchAction(ctx, matchID, participant, action, payload) }:
	default:
		m.logger.Warn("match actor queue full, dropping action", "match_id", matchID, "action", action)
	}
	return nil
}

// dispatchAction runs on matchID's actor goroutine, so actions within
// one match are totally ordered regardless of which transport worker
// accepted them.
func (m *Manager) dispatchAction(ctx context.Context, matchID string, participant *domain.Participant, action string, payload json.RawMessage) {
	match, ok := m.Get(matchID)
	if !ok || match.Status != domain.StatusActive {
		return
	}

	switch match.Mode {
	case domain.ModeChess:
		m.dispatchChessAction(ctx, match, participant, action, payload)
	case domain.ModeFPS:
		m.dispatchFPSAction(match, participant, action, payload)
	default:
		m.logger.Debug("action dropped for mode with no dispatch table", "mode", match.Mode, "action", action)
	}
}

func (m *Manager) dispatchChessAction(ctx context.Context, match *domain.Match, participant *domain.Participant, action string, payload json.RawMessage) {
	switch action {
	case "move":
		var move map[string]interface{}
		json.Unmarshal(payload, &move)
		data := map[string]interface{}{
			"type":      "move",
			"playerId":  participant.ID,
			"move":      move,
			"timestamp": time.Now(),
		}
		m.notifier.GameUpdate(match.SessionTags(), match.MatchID, data)

	case "resign":
		var winner *string
		for _, p := range match.Participants {
			if p.ID != participant.ID {
				id := p.ID
				winner = &id
				break
			}
		}
		if err := m.End(ctx, match.MatchID, winner, domain.ReasonResignation); err != nil {
			m.logger.Error("failed to settle resignation", "match_id", match.MatchID, "error", err)
		}

	default:
		m.logger.Debug("unknown chess action dropped", "action", action)
	}
}

func (m *Manager) dispatchFPSAction(match *domain.Match, participant *domain.Participant, action string, payload json.RawMessage) {
	switch action {
	case "position_update":
		var fields map[string]interface{}
		json.Unmarshal(payload, &fields)
		data := map[string]interface{}{
			"type":      "player_position",
			"playerId":  participant.ID,
			"timestamp": time.Now(),
		}
		for k, v := range fields {
			data[k] = v
		}
		m.notifier.GameUpdate(match.SessionTags(), match.MatchID, data)

	case "shoot":
		var fields map[string]interface{}
		json.Unmarshal(payload, &fields)
		data := map[string]interface{}{
			"type":      "player_shoot",
			"playerId":  participant.ID,
			"timestamp": time.Now(),
		}
		for k, v := range fields {
			data[k] = v
		}
		m.notifier.GameUpdate(match.SessionTags(), match.MatchID, data)

	default:
		m.logger.Debug("unknown fps action dropped", "action", action)
	}
}

// End settles matchID: sets status finished, records the result, and —
// for a two-player chess match — applies ratings pairwise through the
// Rater. End on a match that is not active (still starting, or already
// finished) is a no-op.
func (m *Manager) End(ctx context.Context, matchID string, winnerID *string, reason domain.Reason) error {
	m.mu.Lock()
	match, ok := m.matches[matchID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if match.Status != domain.StatusActive {
		m.mu.Unlock()
		return nil
	}

	now := time.Now()
	updated := *match
	updated.Status = domain.StatusFinished
	updated.EndedAt = &now
	updated.Result = &domain.Result{WinnerID: winnerID, Reason: reason}
	m.matches[matchID] = &updated
	m.mu.Unlock()

	if err := m.store.SetMatch(ctx, &updated); err != nil {
		return fmt.Errorf("persisting ended match: %w", err)
	}

	if domain.IsRated(updated.Mode) && len(updated.Participants) == 2 {
		m.settleRatings(ctx, &updated)
	}

	m.notifier.GameEnded(ctx, &updated)

	m.mu.Lock()
	m.timers[matchID] = time.AfterFunc(m.evictDelay, func() {
		m.evict(matchID)
	})
	m.mu.Unlock()

	return nil
}

func (m *Manager) settleRatings(ctx context.Context, match *domain.Match) {
	a, b := match.Participants[0], match.Participants[1]
	outcomeA, outcomeB := rating.Draw, rating.Draw
	if match.Result.WinnerID != nil {
		if *match.Result.WinnerID == a.ID {
			outcomeA, outcomeB = rating.Win, rating.Loss
		} else {
			outcomeA, outcomeB = rating.Loss, rating.Win
		}
	}

	if updated, err := m.rater.UpdateRating(ctx, a.ID, match.Mode, b.Rating, outcomeA, match.MatchID); err != nil {
		m.logger.Error("failed to settle rating", "player_id", a.ID, "match_id", match.MatchID, "error", err)
	} else {
		m.notifier.RatingUpdated(ctx, a.ID, match.Mode, updated.RatingFor(match.Mode))
	}

	if updated, err := m.rater.UpdateRating(ctx, b.ID, match.Mode, a.Rating, outcomeB, match.MatchID); err != nil {
		m.logger.Error("failed to settle rating", "player_id", b.ID, "match_id", match.MatchID, "error", err)
	} else {
		m.notifier.RatingUpdated(ctx, b.ID, match.Mode, updated.RatingFor(match.Mode))
	}
}

// evict drops matchID's hot reference and actor once the post-finish
// cool-down has elapsed.
func (m *Manager) evict(matchID string) {
	m.mu.Lock()
	delete(m.matches, matchID)
	if actorCh, ok := m.actors[matchID]; ok {
		close(actorCh)
		delete(m.actors, matchID)
	}
	delete(m.timers, matchID)
	m.mu.Unlock()

	if err := m.store.DeleteMatch(context.Background(), matchID); err != nil {
		m.logger.Warn("failed to delete evicted match", "match_id", matchID, "error", err)
	}
}

// runActor drains one match's action queue serially until its channel
// is closed at eviction.
func runActor(ch chan func()) {
	for fn := range ch {
		fn()
	}
}
