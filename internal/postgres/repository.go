// Package postgres provides the durable system of record backing the
// Player Store and Game Session Manager. Redis stays the hot path for
// queue scans and live leaderboard reads; this package is the durable
// copy the sync worker reconciles from on recovery.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matchcore/matchcore/internal/config"
	"github.com/matchcore/matchcore/internal/domain"
)

// Repository provides PostgreSQL-based data access for players,
// matches, and rating events.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{pool: pool, logger: logger}, nil
}

// Close closes the database connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes the repository's schema migrations.
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			ratings JSONB NOT NULL,
			games_played INT NOT NULL DEFAULT 0,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			draws INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_active TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			match_id VARCHAR(64) PRIMARY KEY,
			mode VARCHAR(20) NOT NULL,
			participants JSONB NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			result JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS rating_events (
			id BIGSERIAL PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			mode VARCHAR(20) NOT NULL,
			match_id VARCHAR(64) NOT NULL,
			opponent_rating INT NOT NULL,
			outcome VARCHAR(10) NOT NULL,
			delta INT NOT NULL,
			new_rating INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`,
		`CREATE INDEX IF NOT EXISTS idx_rating_events_player ON rating_events(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertPlayer writes p's durable copy. Called alongside every Redis
// write so Postgres never falls behind the hot path by more than one
// write latency.
func (r *Repository) UpsertPlayer(ctx context.Context, p *domain.Player) error {
	ratings, err := json.Marshal(p.Ratings)
	if err != nil {
		return fmt.Errorf("marshaling ratings: %w", err)
	}

	query := `
		INSERT INTO players (id, name, ratings, games_played, wins, losses, draws, created_at, last_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			ratings = EXCLUDED.ratings,
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			last_active = EXCLUDED.last_active
	`
	_, err = r.pool.Exec(ctx, query,
		p.ID, p.Name, ratings,
		p.Counters.GamesPlayed, p.Counters.Wins, p.Counters.Losses, p.Counters.Draws,
		p.CreatedAt, p.LastActive,
	)
	if err != nil {
		return fmt.Errorf("upserting player: %w", err)
	}
	return nil
}

// GetPlayer loads a player's durable record, used to rehydrate Redis
// after a TTL expiry or on cold start.
func (r *Repository) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	query := `
		SELECT id, name, ratings, games_played, wins, losses, draws, created_at, last_active
		FROM players WHERE id = $1
	`
	var p domain.Player
	var ratings []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &ratings,
		&p.Counters.GamesPlayed, &p.Counters.Wins, &p.Counters.Losses, &p.Counters.Draws,
		&p.CreatedAt, &p.LastActive,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("player %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	if err := json.Unmarshal(ratings, &p.Ratings); err != nil {
		return nil, fmt.Errorf("unmarshaling ratings: %w", err)
	}
	return &p, nil
}

// ListPlayers returns every durable player record, used by the sync
// worker to rehydrate Redis on startup.
func (r *Repository) ListPlayers(ctx context.Context) ([]*domain.Player, error) {
	query := `
		SELECT id, name, ratings, games_played, wins, losses, draws, created_at, last_active
		FROM players
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var players []*domain.Player
	for rows.Next() {
		var p domain.Player
		var ratings []byte
		if err := rows.Scan(
			&p.ID, &p.Name, &ratings,
			&p.Counters.GamesPlayed, &p.Counters.Wins, &p.Counters.Losses, &p.Counters.Draws,
			&p.CreatedAt, &p.LastActive,
		); err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		if err := json.Unmarshal(ratings, &p.Ratings); err != nil {
			return nil, fmt.Errorf("unmarshaling ratings: %w", err)
		}
		players = append(players, &p)
	}
	return players, rows.Err()
}

// UpsertMatch writes m's durable copy in a single statement. The Session
// Manager's lifecycle transitions write only to Redis; durable match rows
// are written by the sync worker through BatchUpsertMatches.
func (r *Repository) UpsertMatch(ctx context.Context, m *domain.Match) error {
	participants, err := json.Marshal(m.Participants)
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}
	var result []byte
	if m.Result != nil {
		result, err = json.Marshal(m.Result)
		if err != nil {
			return fmt.Errorf("marshaling result: %w", err)
		}
	}

	query := `
		INSERT INTO matches (match_id, mode, participants, status, created_at, started_at, ended_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			result = EXCLUDED.result
	`
	_, err = r.pool.Exec(ctx, query,
		m.MatchID, string(m.Mode), participants, string(m.Status),
		m.CreatedAt, m.StartedAt, m.EndedAt, result,
	)
	if err != nil {
		return fmt.Errorf("upserting match: %w", err)
	}
	return nil
}

// GetMatch loads a match's durable record. The REST match lookup reads
// only the Session Manager's in-memory copy and does not fall back to
// this record after eviction.
func (r *Repository) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	query := `
		SELECT match_id, mode, participants, status, created_at, started_at, ended_at, result
		FROM matches WHERE match_id = $1
	`
	var m domain.Match
	var mode string
	var participants, result []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.MatchID, &mode, &participants, &m.Status,
		&m.CreatedAt, &m.StartedAt, &m.EndedAt, &result,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("match %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}
	m.Mode = domain.Mode(mode)
	m.Config = domain.ConfigFor(m.Mode)
	if err := json.Unmarshal(participants, &m.Participants); err != nil {
		return nil, fmt.Errorf("unmarshaling participants: %w", err)
	}
	if len(result) > 0 {
		var res domain.Result
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("unmarshaling result: %w", err)
		}
		m.Result = &res
	}
	return &m, nil
}

// RecordRatingEvent appends the audit row for one settlement delta.
func (r *Repository) RecordRatingEvent(ctx context.Context, event domain.RatingEvent) error {
	query := `
		INSERT INTO rating_events (player_id, mode, match_id, opponent_rating, outcome, delta, new_rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		event.PlayerID, string(event.Mode), event.MatchID,
		event.OpponentRating, event.Outcome, event.Delta, event.NewRating, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording rating event: %w", err)
	}
	return nil
}

// RecentRatingEvents returns a player's most recent rating history,
// newest first — the audit trail a caller reads to verify a
// settlement's delta symmetry.
func (r *Repository) RecentRatingEvents(ctx context.Context, playerID string, limit int) ([]domain.RatingEvent, error) {
	query := `
		SELECT player_id, mode, match_id, opponent_rating, outcome, delta, new_rating, created_at
		FROM rating_events WHERE player_id = $1
		ORDER BY created_at DESC LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing rating events: %w", err)
	}
	defer rows.Close()

	var events []domain.RatingEvent
	for rows.Next() {
		var e domain.RatingEvent
		var mode string
		if err := rows.Scan(&e.PlayerID, &mode, &e.MatchID, &e.OpponentRating, &e.Outcome, &e.Delta, &e.NewRating, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning rating event: %w", err)
		}
		e.Mode = domain.Mode(mode)
		events = append(events, e)
	}
	return events, rows.Err()
}

// BatchUpsertMatches durably persists a batch of matches, whatever their
// status, in one round trip, used by the sync worker's periodic
// reconciliation pass.
func (r *Repository) BatchUpsertMatches(ctx context.Context, matches []*domain.Match) error {
	if len(matches) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range matches {
		participants, err := json.Marshal(m.Participants)
		if err != nil {
			return fmt.Errorf("marshaling participants: %w", err)
		}
		var result []byte
		if m.Result != nil {
			result, err = json.Marshal(m.Result)
			if err != nil {
				return fmt.Errorf("marshaling result: %w", err)
			}
		}
		batch.Queue(`
			INSERT INTO matches (match_id, mode, participants, status, created_at, started_at, ended_at, result)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (match_id) DO UPDATE SET
				status = EXCLUDED.status, started_at = EXCLUDED.started_at,
				ended_at = EXCLUDED.ended_at, result = EXCLUDED.result
		`, m.MatchID, string(m.Mode), participants, string(m.Status), m.CreatedAt, m.StartedAt, m.EndedAt, result)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range matches {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch upserting matches: %w", err)
		}
	}
	return nil
}
