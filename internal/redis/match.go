package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matchcore/matchcore/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// SetMatch persists m under game:<id> with the 2h TTL from the
// persistence contract. Called on every lifecycle transition, not just
// creation, so a reader never sees a stale status.
func (s *Store) SetMatch(ctx context.Context, m *domain.Match) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling match: %w", err)
	}
	if err := s.client.Set(ctx, matchKey(m.MatchID), data, s.cfg.MatchTTL).Err(); err != nil {
		return fmt.Errorf("setting match: %w", err)
	}
	return nil
}

// GetMatch loads a match by id. Returns domain.ErrNotFound if absent
// (including after natural TTL expiry post-eviction).
func (s *Store) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	data, err := s.client.Get(ctx, matchKey(id)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, fmt.Errorf("match %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}
	var m domain.Match
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling match: %w", err)
	}
	return &m, nil
}

// DeleteMatch removes a match's persisted record immediately, used by
// the eviction timer rather than waiting out the TTL.
func (s *Store) DeleteMatch(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, matchKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting match: %w", err)
	}
	return nil
}
