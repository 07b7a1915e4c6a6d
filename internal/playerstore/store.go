// Package playerstore is the Player Store of §4.2. It owns player
// records and leaderboards exclusively, unifying the Redis hot path
// (live reads, leaderboard ordering) with the Postgres durable copy the
// sync worker reconciles from on recovery.
package playerstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/matchcore/matchcore/internal/domain"
	"github.com/matchcore/matchcore/internal/postgres"
	"github.com/matchcore/matchcore/internal/rating"
	"github.com/matchcore/matchcore/internal/redis"
)

// minNameLen is the shortest display name Create accepts.
const minNameLen = 2

// Store is the Player Store.
type Store struct {
	redis    *redis.Store
	postgres *postgres.Repository
	kFactor  int
	logger   *slog.Logger
}

// New creates a Player Store backed by redis for the hot path and
// postgres for durability.
func New(redisStore *redis.Store, repo *postgres.Repository, kFactor int, logger *slog.Logger) *Store {
	if kFactor <= 0 {
		kFactor = rating.DefaultKFactor
	}
	return &Store{redis: redisStore, postgres: repo, kFactor: kFactor, logger: logger}
}

// Create allocates a fresh player, initializes every mode rating to
// domain.DefaultRating, and inserts it into leaderboard:global scored
// by its primaryMode rating.
func (s *Store) Create(ctx context.Context, name string, primaryMode domain.Mode) (*domain.Player, error) {
	if !isValidName(name) {
		return nil, fmt.Errorf("name must be at least %d printable characters: %w", minNameLen, domain.ErrInvalidInput)
	}
	if !domain.IsValidMode(primaryMode) {
		return nil, fmt.Errorf("unknown mode %q: %w", primaryMode, domain.ErrInvalidInput)
	}

	now := time.Now()
	player := domain.NewPlayer(uuid.New().String(), name, now)

	if err := s.redis.SetPlayer(ctx, player); err != nil {
		return nil, fmt.Errorf("persisting player: %w", err)
	}
	if err := s.redis.UpsertLeaderboard(ctx, domain.GlobalLeaderboard, player.ID, player.RatingFor(primaryMode)); err != nil {
		return nil, fmt.Errorf("indexing into global leaderboard: %w", err)
	}
	if err := s.postgres.UpsertPlayer(ctx, player); err != nil {
		s.logger.Warn("failed to persist player durably", "player_id", player.ID, "error", err)
	}

	return player, nil
}

// Get loads a player by id, falling back to the durable store and
// rehydrating Redis if the hot copy has expired.
func (s *Store) Get(ctx context.Context, id string) (*domain.Player, error) {
	player, err := s.redis.GetPlayer(ctx, id)
	if err == nil {
		return player, nil
	}
	if !domain.IsNotFound(err) {
		return nil, fmt.Errorf("getting player: %w", err)
	}

	player, dbErr := s.postgres.GetPlayer(ctx, id)
	if dbErr != nil {
		return nil, dbErr
	}
	if setErr := s.redis.SetPlayer(ctx, player); setErr != nil {
		s.logger.Warn("failed to rehydrate redis from durable store", "player_id", id, "error", setErr)
	}
	return player, nil
}

// UpdateRating applies the Rating Calculator for one side of a
// settled game, increments the matching counter exactly once, refreshes
// lastActive, persists, and upserts leaderboard:<mode>.
func (s *Store) UpdateRating(ctx context.Context, id string, mode domain.Mode, opponentRating int, outcome rating.Outcome, matchID string) (*domain.Player, error) {
	player, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	update, err := rating.Calculate(player.RatingFor(mode), opponentRating, outcome, s.kFactor)
	if err != nil {
		return nil, err
	}

	if player.Ratings == nil {
		player.Ratings = make(map[domain.Mode]int, len(domain.AllModes()))
	}
	player.Ratings[mode] = update.NewRating
	switch outcome {
	case rating.Win:
		player.Counters.Wins++
	case rating.Loss:
		player.Counters.Losses++
	case rating.Draw:
		player.Counters.Draws++
	}
	player.Counters.GamesPlayed = player.Counters.Wins + player.Counters.Losses + player.Counters.Draws
	player.LastActive = time.Now()

	if err := s.redis.SetPlayer(ctx, player); err != nil {
		return nil, fmt.Errorf("persisting updated player: %w", err)
	}
	if err := s.redis.UpsertLeaderboard(ctx, string(mode), player.ID, update.NewRating); err != nil {
		return nil, fmt.Errorf("upserting mode leaderboard: %w", err)
	}
	if err := s.postgres.UpsertPlayer(ctx, player); err != nil {
		s.logger.Warn("failed to persist updated player durably", "player_id", id, "error", err)
	}

	event := domain.RatingEvent{
		PlayerID:       id,
		Mode:           mode,
		MatchID:        matchID,
		OpponentRating: opponentRating,
		Outcome:        string(outcome),
		Delta:          update.Delta,
		NewRating:      update.NewRating,
		CreatedAt:      player.LastActive,
	}
	if err := s.postgres.RecordRatingEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record rating event", "player_id", id, "error", err)
	}

	return player, nil
}

// Leaderboard reads mode's (or domain.GlobalLeaderboard's) top limit
// entries, descending by rating with 1-based dense rank.
func (s *Store) Leaderboard(ctx context.Context, mode string, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.redis.LeaderboardEntries(ctx, mode, limit)
	if err != nil {
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}
	return entries, nil
}

func isValidName(name string) bool {
	count := 0
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
		count++
	}
	return count >= minNameLen
}
