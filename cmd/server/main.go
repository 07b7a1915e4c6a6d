package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matchcore/matchcore/internal/config"
	"github.com/matchcore/matchcore/internal/eventbus"
	"github.com/matchcore/matchcore/internal/handler"
	"github.com/matchcore/matchcore/internal/kafka"
	"github.com/matchcore/matchcore/internal/matchmaking"
	"github.com/matchcore/matchcore/internal/matchservice"
	"github.com/matchcore/matchcore/internal/playerstore"
	"github.com/matchcore/matchcore/internal/postgres"
	"github.com/matchcore/matchcore/internal/queuestore"
	"github.com/matchcore/matchcore/internal/redis"
	"github.com/matchcore/matchcore/internal/session"
	"github.com/matchcore/matchcore/internal/transport"
	"github.com/matchcore/matchcore/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to redis", "addr", cfg.Redis.Addr)
	redisStore, err := redis.New(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()

	logger.Info("connecting to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer postgresRepo.Close()

	if err := postgresRepo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	playerStore := playerstore.New(redisStore, postgresRepo, cfg.RateCalc.KFactor, logger)
	queueStore := queuestore.New(redisStore, logger)

	hub := transport.NewHub(logger)
	go hub.Run()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info("connecting to bus", "brokers", cfg.Kafka.Brokers)
		producer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Error("failed to connect to bus", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
	}

	fanout := eventbus.New(hub, producer, &cfg.Kafka, logger)

	sessionMgr := session.New(redisStore, playerStore, fanout, cfg.Session.StartDelay, cfg.Session.EvictionDelay, logger)

	matchSvc := matchservice.New(playerStore, queueStore, sessionMgr, fanout, logger)

	engine := matchmaking.New(
		queueStore, sessionMgr, fanout,
		cfg.Matchmaking.TickInterval,
		cfg.Matchmaking.BaseRatingDiff,
		cfg.Matchmaking.RatingDiffStep,
		cfg.Matchmaking.RatingDiffStepEvery,
		logger,
	)
	go engine.Run(ctx)

	syncWorker := worker.NewSyncWorker(redisStore, postgresRepo, sessionMgr, &cfg.Sync, logger)
	if err := syncWorker.RecoverPlayers(ctx); err != nil {
		logger.Warn("failed to recover players from durable store", "error", err)
	}
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing bus ingest consumer", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.IngestTopic)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, matchSvc, logger)
		if err != nil {
			logger.Warn("failed to create bus ingest consumer, continuing without it", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start bus ingest consumer, continuing without it", "error", err)
			kafkaConsumer = nil
		}
	}

	httpHandler := handler.NewHandler(matchSvc, engine, hub, matchSvc, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Server.Port)
		logger.Info("websocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	hub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop bus ingest consumer", "error", err)
		}
	}

	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
