package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/matchcore/matchcore/internal/config"
	"github.com/matchcore/matchcore/internal/domain"
)

// JoinMessage is the bulk-ingestion wire format for a queue join,
// carried on the ingest topic by the loadgen CLI and any other
// high-volume producer that should not pay the per-request HTTP/WS
// round trip.
type JoinMessage struct {
	PlayerID    string             `json:"playerId"`
	PlayerName  string             `json:"playerName"`
	Rating      int                `json:"rating"`
	Mode        domain.Mode        `json:"mode"`
	Preferences domain.Preferences `json:"preferences"`
	SessionTag  string             `json:"sessionTag"`
}

// JoinHandler processes a batch of ingested queue joins. Implemented by
// the match service.
type JoinHandler interface {
	EnqueueBatch(ctx context.Context, joins []JoinMessage) error
}

// Consumer consumes queue-join messages from the ingest topic in
// batches, generalized from the teacher's score-submission consumer.
type Consumer struct {
	cfg           *config.KafkaConfig
	handler       JoinHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a Kafka consumer group reader for the ingest
// topic.
func NewConsumer(cfg *config.KafkaConfig, handler JoinHandler, logger *slog.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V3_0_0_0
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaCfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		cfg:           cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming in the background and blocks until the first
// session is ready.
func (c *Consumer) Start() error {
	c.logger.Info("starting bus ingest consumer", "brokers", c.cfg.Brokers, "topic", c.cfg.IngestTopic, "group_id", c.cfg.GroupID)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{consumer: c, ready: c.ready}
			if err := c.consumerGroup.Consume(c.ctx, []string{c.cfg.IngestTopic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer group", "error", err)
			}
			if c.ctx.Err() != nil {
				return
			}
			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.Info("bus ingest consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully shuts the consumer down.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping bus ingest consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.cfg
	batch := make([]JoinMessage, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.consumer.handler.EnqueueBatch(ctx, batch); err != nil {
			h.consumer.logger.Error("failed to process join batch", "error", err, "batch_size", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			flush()
			return nil

		case <-batchTimer.C:
			flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}

			var join JoinMessage
			if err := json.Unmarshal(message.Value, &join); err != nil {
				h.consumer.logger.Warn("failed to unmarshal join message", "error", err, "offset", message.Offset)
				session.MarkMessage(message, "")
				continue
			}
			if join.PlayerID == "" || !domain.IsValidMode(join.Mode) {
				h.consumer.logger.Warn("invalid join message", "player_id", join.PlayerID, "mode", join.Mode)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, join)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
