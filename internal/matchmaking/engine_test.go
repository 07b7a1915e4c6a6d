package matchmaking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/matchcore/matchcore/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueueStore struct {
	mu      sync.Mutex
	entries map[domain.Mode][]domain.QueueEntry
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{entries: make(map[domain.Mode][]domain.QueueEntry)}
}

func (f *fakeQueueStore) Snapshot(ctx context.Context, mode domain.Mode) ([]domain.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.QueueEntry, len(f.entries[mode]))
	copy(out, f.entries[mode])
	return out, nil
}

func (f *fakeQueueStore) Remove(ctx context.Context, mode domain.Mode, group []domain.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := make(map[string]bool, len(group))
	for _, g := range group {
		removed[g.PlayerID] = true
	}
	var kept []domain.QueueEntry
	for _, e := range f.entries[mode] {
		if !removed[e.PlayerID] {
			kept = append(kept, e)
		}
	}
	f.entries[mode] = kept
	return nil
}

func (f *fakeQueueStore) add(entry domain.QueueEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.Mode] = append(f.entries[entry.Mode], entry)
}

type fakeSessionCreator struct {
	mu      sync.Mutex
	created []*domain.Match
	fail    bool
}

func (f *fakeSessionCreator) Create(ctx context.Context, matchID string, participants []domain.Participant, mode domain.Mode) (*domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, domain.ErrTransientBackend
	}
	m := &domain.Match{MatchID: matchID, Participants: participants, Mode: mode, Status: domain.StatusStarting}
	f.created = append(f.created, m)
	return m, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	found []*domain.Match
}

func (f *fakeNotifier) MatchFound(ctx context.Context, m *domain.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.found = append(f.found, m)
}

func chessEntry(id string, rating int, joinedAgo time.Duration) domain.QueueEntry {
	return domain.QueueEntry{
		PlayerID:   id,
		PlayerName: id,
		Mode:       domain.ModeChess,
		Rating:     rating,
		SessionTag: id + "-tag",
		JoinedAt:   time.Now().Add(-joinedAgo),
	}
}

func newTestEngine(queue QueueStore, sessions SessionCreator, notifier Notifier) *Engine {
	return New(queue, sessions, notifier, 2*time.Second, 100, 30, 10*time.Second, discardLogger())
}

func TestTickCommitsCompatiblePair(t *testing.T) {
	queue := newFakeQueueStore()
	queue.add(chessEntry("a", 1000, 5*time.Second))
	queue.add(chessEntry("b", 1050, 3*time.Second))

	sessions := &fakeSessionCreator{}
	notifier := &fakeNotifier{}
	engine := newTestEngine(queue, sessions, notifier)

	engine.tick(context.Background(), domain.ModeChess)

	if len(sessions.created) != 1 {
		t.Fatalf("created = %d matches, want 1", len(sessions.created))
	}
	if len(notifier.found) != 1 {
		t.Fatalf("notified = %d matches, want 1", len(notifier.found))
	}
	remaining, _ := queue.Snapshot(context.Background(), domain.ModeChess)
	if len(remaining) != 0 {
		t.Fatalf("queue still has %d entries after commit, want 0", len(remaining))
	}
}

func TestTickLeavesIncompatiblePairQueued(t *testing.T) {
	queue := newFakeQueueStore()
	queue.add(chessEntry("a", 1000, time.Second))
	queue.add(chessEntry("b", 1500, time.Second))

	sessions := &fakeSessionCreator{}
	notifier := &fakeNotifier{}
	engine := newTestEngine(queue, sessions, notifier)

	engine.tick(context.Background(), domain.ModeChess)

	if len(sessions.created) != 0 {
		t.Fatalf("created = %d matches, want 0", len(sessions.created))
	}
	remaining, _ := queue.Snapshot(context.Background(), domain.ModeChess)
	if len(remaining) != 2 {
		t.Fatalf("queue has %d entries, want 2 untouched", len(remaining))
	}
}

func TestTickRestoresGroupOnSessionCreateFailure(t *testing.T) {
	queue := newFakeQueueStore()
	queue.add(chessEntry("a", 1000, time.Second))
	queue.add(chessEntry("b", 1010, time.Second))

	sessions := &fakeSessionCreator{fail: true}
	notifier := &fakeNotifier{}
	engine := newTestEngine(queue, sessions, notifier)

	engine.tick(context.Background(), domain.ModeChess)

	if len(notifier.found) != 0 {
		t.Fatalf("notified %d matches on a failed create, want 0", len(notifier.found))
	}
	remaining, _ := queue.Snapshot(context.Background(), domain.ModeChess)
	if len(remaining) != 2 {
		t.Fatalf("queue has %d entries after a failed create, want both restored", len(remaining))
	}
}

func TestCompatibleRelaxesWithWaitTime(t *testing.T) {
	queue := newFakeQueueStore()
	sessions := &fakeSessionCreator{}
	notifier := &fakeNotifier{}
	engine := newTestEngine(queue, sessions, notifier)

	now := time.Now()
	fresh := domain.QueueEntry{Rating: 1000, JoinedAt: now}
	farApart := domain.QueueEntry{Rating: 1150, JoinedAt: now}
	if engine.compatible(fresh, farApart, domain.ModeChess, now) {
		t.Error("expected a 150-point gap to be incompatible with no wait relaxation (base gate is 100)")
	}

	waited := domain.QueueEntry{Rating: 1150, JoinedAt: now.Add(-20 * time.Second)}
	if !engine.compatible(fresh, waited, domain.ModeChess, now) {
		t.Error("expected a 150-point gap to become compatible after 20s of relaxation (100 + 2*30 = 160)")
	}
}

func TestCompatibleIsSymmetric(t *testing.T) {
	queue := newFakeQueueStore()
	engine := newTestEngine(queue, &fakeSessionCreator{}, &fakeNotifier{})

	now := time.Now()
	a := domain.QueueEntry{Rating: 1000, JoinedAt: now.Add(-5 * time.Second)}
	b := domain.QueueEntry{Rating: 1090, JoinedAt: now.Add(-30 * time.Second)}

	if engine.compatible(a, b, domain.ModeChess, now) != engine.compatible(b, a, domain.ModeChess, now) {
		t.Error("compatible() is not symmetric")
	}
}

func TestCompatibleFPSRegionGate(t *testing.T) {
	queue := newFakeQueueStore()
	engine := newTestEngine(queue, &fakeSessionCreator{}, &fakeNotifier{})

	now := time.Now()
	na := domain.QueueEntry{Rating: 1000, JoinedAt: now, Preferences: domain.Preferences{Region: "eu"}}
	nb := domain.QueueEntry{Rating: 1000, JoinedAt: now, Preferences: domain.Preferences{Region: "us"}}
	if engine.compatible(na, nb, domain.ModeFPS, now) {
		t.Error("expected mismatched fps regions to be incompatible")
	}

	nc := domain.QueueEntry{Rating: 1000, JoinedAt: now, Preferences: domain.Preferences{Region: "eu"}}
	if !engine.compatible(na, nc, domain.ModeFPS, now) {
		t.Error("expected matching fps regions to be compatible")
	}
}

func TestStatsReflectsQueueDepthAndEmittedMatches(t *testing.T) {
	queue := newFakeQueueStore()
	queue.add(chessEntry("a", 1000, time.Second))
	queue.add(chessEntry("b", 1010, time.Second))
	queue.add(chessEntry("c", 1000, time.Second))

	sessions := &fakeSessionCreator{}
	notifier := &fakeNotifier{}
	engine := newTestEngine(queue, sessions, notifier)

	engine.tick(context.Background(), domain.ModeChess)

	stats := engine.Stats()[domain.ModeChess]
	if stats.PlayersInQueue != 3 {
		t.Errorf("PlayersInQueue = %d, want 3 (snapshot taken before the commit)", stats.PlayersInQueue)
	}
	if len(sessions.created) != 1 {
		t.Fatalf("created = %d, want 1", len(sessions.created))
	}
	if stats.AverageWaitTime <= 0 {
		t.Errorf("AverageWaitTime = %v, want > 0 after an emitted match", stats.AverageWaitTime)
	}
}
