package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Session     SessionConfig     `yaml:"session"`
	RateCalc    RateCalcConfig    `yaml:"rate_calc"`
	Sync        SyncConfig        `yaml:"sync"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	PlayerTTL time.Duration `yaml:"player_ttl"`
	QueueTTL  time.Duration `yaml:"queue_ttl"`
	MatchTTL  time.Duration `yaml:"match_ttl"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration. Brokers are shared
// by the ingestion consumer and the bus publisher; GroupID names the
// ingestion consumer group; IngestTopic
// carries bulk queue-join submissions, BusMatchmakingTopic and
// BusGameEventsTopic carry the Event Fan-Out's out-of-process
// notifications.
type KafkaConfig struct {
	Brokers            []string      `yaml:"brokers"`
	IngestTopic        string        `yaml:"ingest_topic"`
	BusMatchmakingTopic string       `yaml:"bus_matchmaking_topic"`
	BusGameEventsTopic string        `yaml:"bus_game_events_topic"`
	GroupID            string        `yaml:"group_id"`
	Enabled            bool          `yaml:"enabled"`
	BatchSize          int           `yaml:"batch_size"`
	BatchTimeout       time.Duration `yaml:"batch_timeout"`
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
}

// MatchmakingConfig tunes the per-mode tick and compatibility gates.
type MatchmakingConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	BaseRatingDiff      int           `yaml:"base_rating_diff"`
	RatingDiffStep      int           `yaml:"rating_diff_step"`
	RatingDiffStepEvery time.Duration `yaml:"rating_diff_step_every"`
}

// SessionConfig tunes the Game Session Manager's timers.
type SessionConfig struct {
	StartDelay     time.Duration `yaml:"start_delay"`
	EvictionDelay  time.Duration `yaml:"eviction_delay"`
}

// RateCalcConfig configures the Rating Calculator's default k-factor.
type RateCalcConfig struct {
	KFactor int `yaml:"k_factor"`
}

// SyncConfig holds the durability sync worker configuration (periodic
// persistence of the Session Manager's in-memory matches to Postgres)
type SyncConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Enabled   bool          `yaml:"enabled"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.PlayerTTL == 0 {
		c.Redis.PlayerTTL = 24 * time.Hour
	}
	if c.Redis.QueueTTL == 0 {
		c.Redis.QueueTTL = time.Hour
	}
	if c.Redis.MatchTTL == 0 {
		c.Redis.MatchTTL = 2 * time.Hour
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.IngestTopic == "" {
		c.Kafka.IngestTopic = "matchmaking-joins"
	}
	if c.Kafka.BusMatchmakingTopic == "" {
		c.Kafka.BusMatchmakingTopic = "matchmaking"
	}
	if c.Kafka.BusGameEventsTopic == "" {
		c.Kafka.BusGameEventsTopic = "game_events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "matchmaking-ingest-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 10
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 3 * time.Second
	}

	// Matchmaking defaults
	if c.Matchmaking.TickInterval == 0 {
		c.Matchmaking.TickInterval = 2000 * time.Millisecond
	}
	if c.Matchmaking.BaseRatingDiff == 0 {
		c.Matchmaking.BaseRatingDiff = 100
	}
	if c.Matchmaking.RatingDiffStep == 0 {
		c.Matchmaking.RatingDiffStep = 30
	}
	if c.Matchmaking.RatingDiffStepEvery == 0 {
		c.Matchmaking.RatingDiffStepEvery = 10 * time.Second
	}

	// Session defaults
	if c.Session.StartDelay == 0 {
		c.Session.StartDelay = 5 * time.Second
	}
	if c.Session.EvictionDelay == 0 {
		c.Session.EvictionDelay = 60 * time.Second
	}

	// Rating calculator defaults
	if c.RateCalc.KFactor == 0 {
		c.RateCalc.KFactor = 32
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 500
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	return cfg
}
