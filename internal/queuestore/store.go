// Package queuestore is the Queue Store of §4.3: the exclusive owner of
// per-mode queue entries. It is a thin domain-facing wrapper over the
// Redis key conventions in internal/redis — no other package touches a
// queue key directly.
package queuestore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matchcore/matchcore/internal/domain"
	"github.com/matchcore/matchcore/internal/redis"
)

// Store is the Queue Store. Enqueue is idempotent on (playerId, mode):
// a second enqueue for the same pair supersedes the first, so the
// at-most-one-entry invariant never needs an explicit existence check.
type Store struct {
	redis  *redis.Store
	logger *slog.Logger
}

// New wraps a Redis store as a Queue Store.
func New(redisStore *redis.Store, logger *slog.Logger) *Store {
	return &Store{redis: redisStore, logger: logger}
}

// Enqueue inserts or supersedes entry in its mode's queue.
func (s *Store) Enqueue(ctx context.Context, entry domain.QueueEntry) error {
	if err := s.redis.EnqueueEntry(ctx, entry); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Dequeue removes playerID's entry from mode's queue. No-op if absent.
func (s *Store) Dequeue(ctx context.Context, mode domain.Mode, playerID string) error {
	if err := s.redis.DequeueEntry(ctx, string(mode), playerID); err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}
	return nil
}

// DequeueBySessionTag cancels every queue entry carrying tag, across all
// modes, used on client disconnect.
func (s *Store) DequeueBySessionTag(ctx context.Context, tag string) ([]domain.Mode, error) {
	modes, err := s.redis.FindEntryModes(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("finding entries for tag: %w", err)
	}

	var cancelled []domain.Mode
	for _, mode := range modes {
		entries, err := s.redis.SnapshotQueue(ctx, mode)
		if err != nil {
			return cancelled, fmt.Errorf("snapshotting %s queue: %w", mode, err)
		}
		for _, e := range entries {
			if e.SessionTag != tag {
				continue
			}
			if err := s.redis.DequeueEntry(ctx, mode, e.PlayerID); err != nil {
				return cancelled, fmt.Errorf("dequeuing on disconnect: %w", err)
			}
			cancelled = append(cancelled, domain.Mode(mode))
		}
	}
	return cancelled, nil
}

// Snapshot returns every entry currently queued for mode. Callers must
// tolerate concurrent modification between this read and any later
// Remove on the same entries.
func (s *Store) Snapshot(ctx context.Context, mode domain.Mode) ([]domain.QueueEntry, error) {
	entries, err := s.redis.SnapshotQueue(ctx, string(mode))
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return entries, nil
}

// Remove atomically removes every entry in group from mode's queue,
// used to dequeue a committed match group in lockstep with its
// emission.
func (s *Store) Remove(ctx context.Context, mode domain.Mode, group []domain.QueueEntry) error {
	if len(group) == 0 {
		return nil
	}
	ids := make([]string, len(group))
	for i, e := range group {
		ids[i] = e.PlayerID
	}
	if err := s.redis.RemoveEntries(ctx, string(mode), ids); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}
