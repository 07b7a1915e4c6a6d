// Package kafka provides the publish-subscribe bus of §4.6/§6: durable
// topic exchanges carrying persistent, JSON-encoded out-of-process
// notifications, and a batched ingestion path for bulk queue joins.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/matchcore/matchcore/internal/config"
)

// BusMessage is the envelope carried on every bus publish, keyed by its
// routing key so consumers can filter without decoding the body.
type BusMessage struct {
	RoutingKey string      `json:"routingKey"`
	Payload    interface{} `json:"payload"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Producer publishes Event Fan-Out notifications to the matchmaking and
// game_events topics. Publish failures are logged and swallowed per the
// error taxonomy's TransientBackend rule for the bus: loss never blocks
// the core loop.
type Producer struct {
	cfg      *config.KafkaConfig
	producer sarama.AsyncProducer
	logger   *slog.Logger
}

// NewProducer dials brokers up to RetryAttempts times (default 10),
// sleeping a fixed RetryDelay (default 3s) after each failed attempt —
// the one place in the core that retries, since bus connect is a Fatal
// startup failure if it never succeeds.
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Compression = sarama.CompressionSnappy
	saramaCfg.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaCfg.Producer.Flush.Messages = cfg.BatchSize
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true

	var producer sarama.AsyncProducer
	var err error
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 10
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		producer, err = sarama.NewAsyncProducer(cfg.Brokers, saramaCfg)
		if err == nil {
			break
		}
		logger.Warn("bus connect attempt failed", "attempt", attempt, "error", err)
		time.Sleep(delay)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to bus after %d attempts: %w", attempts, err)
	}

	p := &Producer{cfg: cfg, producer: producer, logger: logger}
	go p.drain()
	return p, nil
}

// drain discards producer acks and logs producer-level errors; the
// core never blocks on or retries an individual publish.
func (p *Producer) drain() {
	for {
		select {
		case _, ok := <-p.producer.Successes():
			if !ok {
				return
			}
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			p.logger.Warn("bus publish failed", "error", err)
		}
	}
}

// Publish sends payload to topic, keyed by routingKey for ordering and
// consumer-side filtering. Best-effort: marshal failures and a full
// producer input queue are logged, never surfaced to the caller.
func (p *Producer) Publish(ctx context.Context, topic, routingKey string, payload interface{}) {
	if p == nil {
		return
	}
	data, err := json.Marshal(BusMessage{RoutingKey: routingKey, Payload: payload, Timestamp: time.Now()})
	if err != nil {
		p.logger.Error("failed to marshal bus message", "routing_key", routingKey, "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(routingKey),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case p.producer.Input() <- msg:
	case <-ctx.Done():
	default:
		p.logger.Warn("bus producer input full, dropping message", "routing_key", routingKey)
	}
}

// Close flushes and closes the underlying producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
