package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matchcore/matchcore/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SetPlayer persists p under player:<id> with the sliding TTL, and
// refreshes the TTL even if the value was unchanged — every write
// renews it, per the player ownership contract.
func (s *Store) SetPlayer(ctx context.Context, p *domain.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling player: %w", err)
	}
	if err := s.client.Set(ctx, playerKey(p.ID), data, s.cfg.PlayerTTL).Err(); err != nil {
		return fmt.Errorf("setting player: %w", err)
	}
	return nil
}

// GetPlayer loads a player by id. Returns domain.ErrNotFound if absent.
func (s *Store) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	data, err := s.client.Get(ctx, playerKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("player %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	var p domain.Player
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling player: %w", err)
	}
	return &p, nil
}

// UpsertLeaderboard sets playerID's score in the mode (or "global")
// leaderboard sorted set.
func (s *Store) UpsertLeaderboard(ctx context.Context, mode, playerID string, rating int) error {
	err := s.client.ZAdd(ctx, leaderboardKey(mode), redis.Z{
		Score:  float64(rating),
		Member: playerID,
	}).Err()
	if err != nil {
		return fmt.Errorf("upserting leaderboard: %w", err)
	}
	return nil
}

// LeaderboardEntries reads the top limit entries of the mode (or
// "global") leaderboard, descending by rating, joined with cached player
// names and game counts from the player records.
func (s *Store) LeaderboardEntries(ctx context.Context, mode string, limit int) ([]domain.LeaderboardEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey(mode), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(results))
	rank := 0
	var prevScore float64
	for i, z := range results {
		if i == 0 || z.Score != prevScore {
			rank++
			prevScore = z.Score
		}
		playerID, _ := z.Member.(string)
		entry := domain.LeaderboardEntry{
			Rank:     rank,
			PlayerID: playerID,
			Rating:   int(z.Score),
		}
		if p, err := s.GetPlayer(ctx, playerID); err == nil {
			entry.Name = p.Name
			entry.GamesPlayed = p.Counters.GamesPlayed
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
