// Command loadgen is a standalone dev tool that publishes synthetic
// join_queue ingestion messages to the bus, adapted from the teacher's
// cmd/kafka-producer score-submission generator. It exists to manually
// exercise the matchmaking tick against a running server; it is not a
// load-test harness.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/matchcore/matchcore/internal/domain"
)

type joinMessage struct {
	PlayerID    string             `json:"playerId"`
	PlayerName  string             `json:"playerName"`
	Rating      int                `json:"rating"`
	Mode        domain.Mode        `json:"mode"`
	Preferences domain.Preferences `json:"preferences"`
	SessionTag  string             `json:"sessionTag"`
}

var namePrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func playerName(idx int) string {
	prefix := namePrefixes[idx%len(namePrefixes)]
	suffix := idx/len(namePrefixes) + 1
	return fmt.Sprintf("%s%d", prefix, suffix)
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "matchmaking-joins", "ingest topic")
	mode := flag.String("mode", "chess", "game mode to join (fps|chess|moba|rts)")
	totalPlayers := flag.Int("players", 200, "total synthetic players to join")
	joinsPerSecond := flag.Int("rate", 20, "join messages per second")
	duration := flag.Duration("duration", 0, "duration to run (0 = until player count reached)")
	flag.Parse()

	gameMode := domain.Mode(*mode)
	if !domain.IsValidMode(gameMode) {
		log.Fatalf("unknown mode %q", *mode)
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("matchcore loadgen")
	fmt.Printf("  brokers: %s\n", *brokers)
	fmt.Printf("  topic:   %s\n", *topic)
	fmt.Printf("  mode:    %s\n", *mode)
	fmt.Printf("  players: %d at %d/sec\n", *totalPlayers, *joinsPerSecond)

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Flush.Messages = 100
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, cfg)
	if err != nil {
		log.Fatalf("failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	send := func(msg joinMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("failed to marshal join message: %v", err)
			return
		}
		kmsg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(msg.PlayerID),
			Value: sarama.ByteEncoder(data),
		}
		select {
		case producer.Input() <- kmsg:
		case <-done:
		}
	}

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	interval := time.Second / time.Duration(*joinsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	sent := 0
	for {
		select {
		case <-sigChan:
			fmt.Println("\nshutting down...")
			close(done)
			producer.AsyncClose()
			wg.Wait()
			fmt.Printf("sent: %d, errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
			return

		case <-ticker.C:
			if sent >= *totalPlayers && *duration == 0 {
				fmt.Println("\nplayer count reached, shutting down...")
				close(done)
				producer.AsyncClose()
				wg.Wait()
				fmt.Printf("sent: %d, errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
				return
			}
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nduration reached, shutting down...")
				close(done)
				producer.AsyncClose()
				wg.Wait()
				fmt.Printf("sent: %d, errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
				return
			}

			idx := sent % *totalPlayers
			msg := joinMessage{
				PlayerID:   uuid.New().String(),
				PlayerName: playerName(idx),
				Rating:     domain.DefaultRating + rand.Intn(400) - 200,
				Mode:       gameMode,
				SessionTag: uuid.New().String(),
			}
			send(msg)
			sent++

		case <-statsTicker.C:
			fmt.Printf("[%s] sent: %d | success: %d | errors: %d\n",
				time.Now().Format("15:04:05"), sent, atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
		}
	}
}
