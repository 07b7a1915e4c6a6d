package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matchcore/matchcore/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EnqueueEntry stores entry's body at queue:<mode>:entry:<playerId> and
// indexes playerId by rating in the mode's sorted set, per the design
// note that keeps identity (the ZSET member) decoupled from the body —
// this makes a single-player remove O(log n) instead of a full-set scan.
// Enqueue is idempotent: a second call for the same (playerId, mode)
// overwrites the first. Every call refreshes the queue set's TTL.
func (s *Store) EnqueueEntry(ctx context.Context, entry domain.QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling queue entry: %w", err)
	}

	mode := string(entry.Mode)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, queueEntryKey(mode, entry.PlayerID), data, 0)
	pipe.ZAdd(ctx, queueKey(mode), redis.Z{Score: float64(entry.Rating), Member: entry.PlayerID})
	pipe.Expire(ctx, queueKey(mode), s.cfg.QueueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueuing entry: %w", err)
	}
	return nil
}

// DequeueEntry removes the unique entry for playerID in mode. A no-op if
// absent.
func (s *Store) DequeueEntry(ctx context.Context, mode, playerID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, queueKey(mode), playerID)
	pipe.Del(ctx, queueEntryKey(mode, playerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dequeuing entry: %w", err)
	}
	return nil
}

// SnapshotQueue returns every entry currently queued for mode. Callers
// must tolerate concurrent modification: the ZSET scan and the entry
// body reads are not one atomic operation.
func (s *Store) SnapshotQueue(ctx context.Context, mode string) ([]domain.QueueEntry, error) {
	playerIDs, err := s.client.ZRange(ctx, queueKey(mode), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	if len(playerIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(playerIDs))
	for i, id := range playerIDs {
		keys[i] = queueEntryKey(mode, id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading queue entries: %w", err)
	}

	entries := make([]domain.QueueEntry, 0, len(values))
	for _, v := range values {
		if v == nil {
			// Entry body was removed between the ZSET scan
			// and this read; the caller's next tick will see it gone.
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var entry domain.QueueEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RemoveEntries atomically removes every listed (mode, playerId) pair.
// Used by the Matchmaking Engine to dequeue a committed group in lockstep
// with match emission.
func (s *Store) RemoveEntries(ctx context.Context, mode string, playerIDs []string) error {
	if len(playerIDs) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	members := make([]interface{}, len(playerIDs))
	for i, id := range playerIDs {
		members[i] = id
	}
	pipe.ZRem(ctx, queueKey(mode), members...)
	for _, id := range playerIDs {
		pipe.Del(ctx, queueEntryKey(mode, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing entries: %w", err)
	}
	return nil
}

// FindEntryModes scans every mode's queue for an entry whose SessionTag
// matches tag, used to cancel queue entries on client disconnect. It
// returns the modes in which a matching entry was found.
func (s *Store) FindEntryModes(ctx context.Context, tag string) ([]string, error) {
	var matched []string
	for _, mode := range domain.AllModes() {
		entries, err := s.SnapshotQueue(ctx, string(mode))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.SessionTag == tag {
				matched = append(matched, string(mode))
				break
			}
		}
	}
	return matched, nil
}
