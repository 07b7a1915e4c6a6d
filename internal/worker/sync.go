// Package worker runs the durability reconciliation loop, generalized
// from the teacher's internal/worker.SyncWorker from Redis<->Postgres
// leaderboard sync to matchcore's player-recovery-on-boot and
// match-durability-on-tick responsibilities.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/matchcore/matchcore/internal/config"
	"github.com/matchcore/matchcore/internal/domain"
	"github.com/matchcore/matchcore/internal/postgres"
	"github.com/matchcore/matchcore/internal/redis"
)

// MatchSource is the Game Session Manager boundary the worker reads
// in-memory matches from for its periodic durability pass.
type MatchSource interface {
	Snapshot() []*domain.Match
}

// SyncWorker reconciles the hot Redis path with the durable Postgres
// copy: on boot it recovers players into Redis, and on a ticker it
// durably persists the Session Manager's live matches.
type SyncWorker struct {
	redis    *redis.Store
	postgres *postgres.Repository
	matches  MatchSource
	cfg      *config.SyncConfig
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
	running bool
}

// NewSyncWorker creates a sync worker.
func NewSyncWorker(redisStore *redis.Store, repo *postgres.Repository, matches MatchSource, cfg *config.SyncConfig, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		redis:    redisStore,
		postgres: repo,
		matches:  matches,
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// RecoverPlayers rehydrates Redis from every durable player record,
// meant to be called once at startup before the HTTP server accepts
// traffic.
func (w *SyncWorker) RecoverPlayers(ctx context.Context) error {
	players, err := w.postgres.ListPlayers(ctx)
	if err != nil {
		return err
	}
	for _, p := range players {
		if err := w.redis.SetPlayer(ctx, p); err != nil {
			w.logger.Warn("failed to recover player into redis", "player_id", p.ID, "error", err)
			continue
		}
		for mode, r := range p.Ratings {
			key := string(mode)
			if err := w.redis.UpsertLeaderboard(ctx, key, p.ID, r); err != nil {
				w.logger.Warn("failed to recover leaderboard entry", "player_id", p.ID, "mode", mode, "error", err)
			}
		}
	}
	w.logger.Info("recovered players from durable store", "count", len(players))
	return nil
}

// Start begins the periodic match-durability loop.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.cfg.Interval)
	go w.run(ctx)
	return nil
}

// Stop halts the loop and waits for it to drain.
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.syncMatches(ctx)
		}
	}
}

// syncMatches persists the matches the Session Manager holds in memory at
// the time of the pass to Postgres in batches. A match that is created
// and evicted between two passes is never written.
func (w *SyncWorker) syncMatches(ctx context.Context) {
	start := time.Now()
	matches := w.matches.Snapshot()
	if len(matches) == 0 {
		return
	}

	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	synced := 0
	for i := 0; i < len(matches); i += batchSize {
		end := i + batchSize
		if end > len(matches) {
			end = len(matches)
		}
		if err := w.postgres.BatchUpsertMatches(ctx, matches[i:end]); err != nil {
			w.logger.Error("failed to sync match batch", "error", err, "batch_size", end-i)
			continue
		}
		synced += end - i
	}

	w.logger.Info("match sync cycle completed", "duration", time.Since(start), "synced", synced, "total", len(matches))
}
