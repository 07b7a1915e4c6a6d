// Package redis provides the hot-path key-value and sorted-set store the
// Player Store, Queue Store, and Game Session Manager are built on. No
// other package in this module talks to Redis directly.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matchcore/matchcore/internal/config"
	"github.com/redis/go-redis/v9"
)

// Store wraps a go-redis client with the key conventions from the
// persistence contract: player:<id>, queue:<mode>[:entry:<playerId>],
// game:<id>, leaderboard:<mode|global>.
type Store struct {
	client *redis.Client
	cfg    *config.RedisConfig
	logger *slog.Logger
}

// New creates a Store and verifies connectivity. A failure here is Fatal
// per the error taxonomy: the caller should abort startup.
func New(cfg *config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Store{client: client, cfg: cfg, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying go-redis client for packages that need
// pipelining primitives the Store does not wrap directly.
func (s *Store) Client() *redis.Client {
	return s.client
}

func playerKey(id string) string {
	return fmt.Sprintf("player:%s", id)
}

func queueKey(mode string) string {
	return fmt.Sprintf("queue:%s", mode)
}

func queueEntryKey(mode, playerID string) string {
	return fmt.Sprintf("queue:%s:entry:%s", mode, playerID)
}

func matchKey(id string) string {
	return fmt.Sprintf("game:%s", id)
}

func leaderboardKey(mode string) string {
	return fmt.Sprintf("leaderboard:%s", mode)
}
