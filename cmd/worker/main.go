// Worker runs the background maintenance loops: sweeping expired sessions and
// ephemeral tokens, and relaying auth telemetry events from Kafka to Loki.
// The relay only runs when KAFKA_BROKERS and LOKI_URL are both set.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"stocktrack/backend/internal/config"
	"stocktrack/backend/internal/db"
	sessionrepo "stocktrack/backend/internal/session/repository"
	"stocktrack/backend/internal/sweeper"
	"stocktrack/backend/internal/telemetry/loki"
	tokenrepo "stocktrack/backend/internal/token/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: db: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := sessionrepo.NewPostgresRepository(database)
	tokens := tokenrepo.NewPostgresRepository(database)
	sw := sweeper.New(sessions, tokens, cfg.SweepIntervalDuration())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()

	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 && cfg.LokiURL != "" {
		go relayEvents(ctx, brokers, cfg.TelemetryKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)
	} else {
		log.Println("worker: telemetry relay disabled (KAFKA_BROKERS or LOKI_URL unset)")
	}

	<-ctx.Done()
	log.Println("worker: shutting down...")
	<-done
	log.Println("worker: stopped")
}

// relayEvents consumes auth telemetry events from Kafka and pushes each one to
// Loki. Push failures are logged and the message is skipped; the stream is
// observability data, not a system of record.
func relayEvents(ctx context.Context, brokers []string, topic, groupID, lokiURL string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	log.Printf("worker: consuming from %s (group %s), pushing to %s", topic, groupID, lokiURL)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker: kafka read error: %v", err)
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := loki.PushEventJSON(pushCtx, lokiURL, msg.Value); err != nil {
			log.Printf("worker: loki push failed: %v", err)
		}
		cancel()
	}
}
