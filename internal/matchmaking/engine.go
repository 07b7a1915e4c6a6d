// Package matchmaking is the Matchmaking Engine of §4.4: one tick per
// mode, greedy FIFO-fair grouping under a compatibility predicate that
// relaxes with wait time, and atomic match emission.
package matchmaking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matchcore/matchcore/internal/domain"
)

// QueueStore is the subset of the Queue Store the engine needs: a
// per-tick snapshot and an atomic multi-remove for a committed group.
type QueueStore interface {
	Snapshot(ctx context.Context, mode domain.Mode) ([]domain.QueueEntry, error)
	Remove(ctx context.Context, mode domain.Mode, group []domain.QueueEntry) error
}

// SessionCreator is the Game Session Manager boundary the engine calls
// to instantiate a committed group as a match.
type SessionCreator interface {
	Create(ctx context.Context, matchID string, participants []domain.Participant, mode domain.Mode) (*domain.Match, error)
}

// Notifier is the Event Fan-Out boundary the engine emits match_found
// through.
type Notifier interface {
	MatchFound(ctx context.Context, m *domain.Match)
}

// ModeStats is the per-mode queue snapshot the /api/queue/status
// collaborator reads.
type ModeStats struct {
	PlayersInQueue     int
	AverageWaitTime    time.Duration
	EstimatedMatchTime time.Duration
}

type modeCounters struct {
	playersInQueue int
	totalWait      time.Duration
	matchesEmitted int
}

// Engine is the Matchmaking Engine. Modes tick independently and share
// no mutable state except the stats map, which is mutex-protected.
type Engine struct {
	queue    QueueStore
	sessions SessionCreator
	notifier Notifier
	logger   *slog.Logger

	tickInterval time.Duration
	baseDiff     int
	diffStep     int
	diffStepEvery time.Duration

	statsMu sync.Mutex
	stats   map[domain.Mode]*modeCounters
}

// New creates a Matchmaking Engine.
func New(queue QueueStore, sessions SessionCreator, notifier Notifier, tickInterval time.Duration, baseDiff, diffStep int, diffStepEvery time.Duration, logger *slog.Logger) *Engine {
	stats := make(map[domain.Mode]*modeCounters, len(domain.AllModes()))
	for _, mode := range domain.AllModes() {
		stats[mode] = &modeCounters{}
	}
	return &Engine{
		queue:         queue,
		sessions:      sessions,
		notifier:      notifier,
		logger:        logger,
		tickInterval:  tickInterval,
		baseDiff:      baseDiff,
		diffStep:      diffStep,
		diffStepEvery: diffStepEvery,
		stats:         stats,
	}
}

// Run starts one independent ticking goroutine per mode. It blocks
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, mode := range domain.AllModes() {
		wg.Add(1)
		go func(mode domain.Mode) {
			defer wg.Done()
			e.runMode(ctx, mode)
		}(mode)
	}
	wg.Wait()
}

func (e *Engine) runMode(ctx context.Context, mode domain.Mode) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, mode)
		}
	}
}

// tick performs one scan-group-emit cycle for mode. A snapshot failure
// is a TransientBackend: it is logged and the tick is skipped, leaving
// the queue untouched for the next tick to retry.
func (e *Engine) tick(ctx context.Context, mode domain.Mode) {
	entries, err := e.queue.Snapshot(ctx, mode)
	if err != nil {
		e.logger.Warn("skipping tick after snapshot failure", "mode", mode, "error", err)
		return
	}

	e.statsMu.Lock()
	e.stats[mode].playersInQueue = len(entries)
	e.statsMu.Unlock()

	need := domain.PlayersPerMatch(mode)
	if need == 0 || len(entries) < need {
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})

	now := time.Now()
	used := make(map[string]bool, len(entries))

	for i, seed := range entries {
		if used[seed.PlayerID] {
			continue
		}

		group := []domain.QueueEntry{seed}
		for j := i + 1; j < len(entries) && len(group) < need; j++ {
			candidate := entries[j]
			if used[candidate.PlayerID] {
				continue
			}
			if e.compatible(seed, candidate, mode, now) {
				group = append(group, candidate)
			}
		}

		if len(group) != need {
			continue
		}

		for _, g := range group {
			used[g.PlayerID] = true
		}

		if !e.commit(ctx, mode, group, now) {
			for _, g := range group {
				used[g.PlayerID] = false
			}
		}
	}
}

// commit asks the Session Manager to create a match for group, and on
// success dequeues the group and emits match_found. A session create
// failure leaves the group untouched in the queue for re-evaluation. A
// dequeue failure is logged and match_found is not emitted, so no client
// sees match_found while still queued.
func (e *Engine) commit(ctx context.Context, mode domain.Mode, group []domain.QueueEntry, now time.Time) bool {
	matchID := uuid.New().String()
	participants := make([]domain.Participant, len(group))
	for i, entry := range group {
		participants[i] = domain.Participant{
			ID:         entry.PlayerID,
			Name:       entry.PlayerName,
			Rating:     entry.Rating,
			SessionTag: entry.SessionTag,
		}
	}

	match, err := e.sessions.Create(ctx, matchID, participants, mode)
	if err != nil {
		e.logger.Error("session create failed, leaving group enqueued", "mode", mode, "match_id", matchID, "error", err)
		return false
	}

	if err := e.queue.Remove(ctx, mode, group); err != nil {
		e.logger.Error("failed to dequeue committed group", "mode", mode, "match_id", matchID, "error", err)
		return true
	}

	e.recordMatch(mode, group, now)
	e.notifier.MatchFound(ctx, match)
	return true
}

func (e *Engine) recordMatch(mode domain.Mode, group []domain.QueueEntry, now time.Time) {
	var total time.Duration
	for _, g := range group {
		total += now.Sub(g.JoinedAt)
	}
	avgWait := total / time.Duration(len(group))

	e.statsMu.Lock()
	c := e.stats[mode]
	c.totalWait += avgWait
	c.matchesEmitted++
	e.statsMu.Unlock()
}

// compatible implements the §4.4 predicate: symmetric, reflexive, not
// transitive, and the sole relaxation mechanism is the dynamic rating
// gate widening with the longer-waiting side's wait time.
func (e *Engine) compatible(a, b domain.QueueEntry, mode domain.Mode, now time.Time) bool {
	waitA := now.Sub(a.JoinedAt)
	waitB := now.Sub(b.JoinedAt)
	maxWait := waitA
	if waitB > maxWait {
		maxWait = waitB
	}
	steps := int(maxWait / e.diffStepEvery)
	maxDiff := e.baseDiff + e.diffStep*steps

	diff := a.Rating - b.Rating
	if diff < 0 {
		diff = -diff
	}
	if diff > maxDiff {
		return false
	}

	switch mode {
	case domain.ModeFPS:
		if a.Preferences.Region != "" && b.Preferences.Region != "" && a.Preferences.Region != b.Preferences.Region {
			return false
		}
	case domain.ModeChess:
		if a.Preferences.TimeControl != "" && b.Preferences.TimeControl != "" && a.Preferences.TimeControl != b.Preferences.TimeControl {
			return false
		}
	}
	return true
}

// Stats returns a snapshot of every mode's queue statistics for the
// /api/queue/status collaborator endpoint.
func (e *Engine) Stats() map[domain.Mode]ModeStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	out := make(map[domain.Mode]ModeStats, len(e.stats))
	for mode, c := range e.stats {
		s := ModeStats{PlayersInQueue: c.playersInQueue}
		if c.matchesEmitted > 0 {
			s.AverageWaitTime = c.totalWait / time.Duration(c.matchesEmitted)
			s.EstimatedMatchTime = s.AverageWaitTime
		} else {
			s.EstimatedMatchTime = e.tickInterval
		}
		out[mode] = s
	}
	return out
}
