package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/matchcore/matchcore/internal/domain"
	"github.com/matchcore/matchcore/internal/rating"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMatchStore struct {
	mu      sync.Mutex
	saved   map[string]*domain.Match
	deleted map[string]bool
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{saved: make(map[string]*domain.Match), deleted: make(map[string]bool)}
}

func (f *fakeMatchStore) SetMatch(ctx context.Context, m *domain.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyM := *m
	f.saved[m.MatchID] = &copyM
	return nil
}

func (f *fakeMatchStore) DeleteMatch(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[id] = true
	return nil
}

type fakeRater struct {
	mu      sync.Mutex
	updates []string
}

func (f *fakeRater) UpdateRating(ctx context.Context, id string, mode domain.Mode, opponentRating int, outcome rating.Outcome, matchID string) (*domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id+":"+string(outcome))
	player := domain.NewPlayer(id, id, time.Now())
	update, _ := rating.Calculate(domain.DefaultRating, opponentRating, outcome, rating.DefaultKFactor)
	player.Ratings[mode] = update.NewRating
	return player, nil
}

type fakeSessionNotifier struct {
	mu        sync.Mutex
	started   []*domain.Match
	ended     []*domain.Match
	updates   []string
	ratingUps []string
}

func (f *fakeSessionNotifier) GameStarted(ctx context.Context, m *domain.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, m)
}

func (f *fakeSessionNotifier) GameUpdate(tags []string, matchID string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, matchID)
}

func (f *fakeSessionNotifier) GameEnded(ctx context.Context, m *domain.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, m)
}

func (f *fakeSessionNotifier) RatingUpdated(ctx context.Context, playerID string, mode domain.Mode, newRating int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratingUps = append(f.ratingUps, playerID)
}

func chessParticipants() []domain.Participant {
	return []domain.Participant{
		{ID: "alice", Name: "alice", Rating: 1000, SessionTag: "tag-alice"},
		{ID: "bob", Name: "bob", Rating: 1200, SessionTag: "tag-bob"},
	}
}

func TestCreateStartsInStartingStatus(t *testing.T) {
	store, notifier := newFakeMatchStore(), &fakeSessionNotifier{}
	mgr := New(store, &fakeRater{}, notifier, time.Hour, time.Hour, discardLogger())

	m, err := mgr.Create(context.Background(), "m1", chessParticipants(), domain.ModeChess)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if m.Status != domain.StatusStarting {
		t.Errorf("Status = %s, want starting", m.Status)
	}
	if m.Config == nil || m.Config.Mode != domain.ModeChess {
		t.Error("expected the shared chess ModeConfig to be attached")
	}
}

func TestStartTransitionsToActiveAndNotifies(t *testing.T) {
	store, notifier := newFakeMatchStore(), &fakeSessionNotifier{}
	mgr := New(store, &fakeRater{}, notifier, time.Hour, time.Hour, discardLogger())

	ctx := context.Background()
	if _, err := mgr.Create(ctx, "m1", chessParticipants(), domain.ModeChess); err != nil {
		t.Fatal(err)
	}
	if err := mgr.start(ctx, "m1"); err != nil {
		t.Fatalf("start() error = %v", err)
	}

	m, ok := mgr.Get("m1")
	if !ok || m.Status != domain.StatusActive {
		t.Fatalf("match status = %v, want active", m)
	}
	if m.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}
	if len(notifier.started) != 1 {
		t.Errorf("GameStarted called %d times, want 1", len(notifier.started))
	}
}

func TestStartIsNoOpOnceActive(t *testing.T) {
	store, notifier := newFakeMatchStore(), &fakeSessionNotifier{}
	mgr := New(store, &fakeRater{}, notifier, time.Hour, time.Hour, discardLogger())
	ctx := context.Background()

	mgr.Create(ctx, "m1", chessParticipants(), domain.ModeChess)
	mgr.start(ctx, "m1")
	mgr.start(ctx, "m1")

	if len(notifier.started) != 1 {
		t.Errorf("GameStarted called %d times on a double start, want 1", len(notifier.started))
	}
}

func TestHandleActionDropsForNonParticipant(t *testing.T) {
	store, notifier := newFakeMatchStore(), &fakeSessionNotifier{}
	mgr := New(store, &fakeRater{}, notifier, time.Hour, time.Hour, discardLogger())
	ctx := context.Background()

	mgr.Create(ctx, "m1", chessParticipants(), domain.ModeChess)
	mgr.start(ctx, "m1")

	if err := mgr.HandleAction(ctx, "m1", "not-a-participant", "move", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("HandleAction() error = %v, want silent drop", err)
	}
	time.Sleep(20 * time.Millisecond)
	if len(notifier.updates) != 0 {
		t.Errorf("GameUpdate called %d times for a non-participant action, want 0", len(notifier.updates))
	}
}

func TestHandleActionDropsWhenMatchInactive(t *testing.T) {
	store, notifier := newFakeMatchStore(), &fakeSessionNotifier{}
	mgr := New(store, &fakeRater{}, notifier, time.Hour, time.Hour, discardLogger())
	ctx := context.Background()

	mgr.Create(ctx, "m1", chessParticipants(), domain.ModeChess)
	// never started: still "starting", not "active"

	if err := mgr.HandleAction(ctx, "m1", "tag-alice", "move", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("HandleAction() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if len(notifier.updates) != 0 {
		t.Errorf("GameUpdate called for a match that never started, want 0")
	}
}

func TestMoveBroadcastsGameUpdate(t *testing.T) {
	store, notifier := newFakeMatchStore(), &fakeSessionNotifier{}
	mgr := New(store, &fakeRater{}, notifier, time.Hour, time.Hour, discardLogger())
	ctx := context.Background()

	mgr.Create(ctx, "m1", chessParticipants(), domain.ModeChess)
	mgr.start(ctx, "m1")

	if err := mgr.HandleAction(ctx, "m1", "tag-alice", "move", json.RawMessage(`{"from":"e2","to":"e4"}`)); err != nil {
		t.Fatalf("HandleAction() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(notifier.updates) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(notifier.updates) != 1 {
		t.Fatalf("GameUpdate called %d times, want 1", len(notifier.updates))
	}
}

func TestResignSettlesRatingsAndSchedulesEviction(t *testing.T) {
	store := newFakeMatchStore()
	notifier := &fakeSessionNotifier{}
	rater := &fakeRater{}
	mgr := New(store, rater, notifier, time.Hour, 10*time.Millisecond, discardLogger())
	ctx := context.Background()

	mgr.Create(ctx, "m1", chessParticipants(), domain.ModeChess)
	mgr.start(ctx, "m1")

	if err := mgr.HandleAction(ctx, "m1", "tag-alice", "resign", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("HandleAction() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(notifier.ended) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(notifier.ended) != 1 {
		t.Fatalf("GameEnded called %d times, want 1", len(notifier.ended))
	}

	m, _ := mgr.Get("m1")
	if m.Status != domain.StatusFinished {
		t.Fatalf("Status = %s, want finished", m.Status)
	}
	if m.Result == nil || m.Result.WinnerID == nil || *m.Result.WinnerID != "bob" {
		t.Fatalf("expected bob to win on alice's resignation, got %+v", m.Result)
	}
	if len(rater.updates) != 2 {
		t.Errorf("UpdateRating called %d times, want 2 (once per participant)", len(rater.updates))
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := mgr.Get("m1"); ok {
		t.Error("expected the match to be evicted after the eviction delay")
	}
	store.mu.Lock()
	evicted := store.deleted["m1"]
	store.mu.Unlock()
	if !evicted {
		t.Error("expected DeleteMatch to be called on eviction")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	store, notifier := newFakeMatchStore(), &fakeSessionNotifier{}
	mgr := New(store, &fakeRater{}, notifier, time.Hour, time.Hour, discardLogger())
	ctx := context.Background()

	mgr.Create(ctx, "m1", chessParticipants(), domain.ModeChess)
	mgr.start(ctx, "m1")

	winner := "alice"
	if err := mgr.End(ctx, "m1", &winner, domain.ReasonCompleted); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := mgr.End(ctx, "m1", &winner, domain.ReasonCompleted); err != nil {
		t.Fatalf("second End() error = %v", err)
	}
	if len(notifier.ended) != 1 {
		t.Errorf("GameEnded called %d times across two End() calls, want 1", len(notifier.ended))
	}
}
