// Command ingest loads complaint events into the store.
//
// Usage:
//
//	go run ./cmd/ingest -csv data/complaints.csv
//	go run ./cmd/ingest -kafka            # consume KAFKA_TOPIC until interrupted
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/config"
	"github.com/mbd888/muletrace/internal/ingest"
	"github.com/mbd888/muletrace/internal/logging"
)

func main() {
	csvPath := flag.String("csv", "", "CSV file of complaints to load")
	fromKafka := flag.Bool("kafka", false, "consume complaint events from Kafka")
	flag.Parse()

	if (*csvPath == "") == !*fromKafka {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := complaints.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = db.Close() }()
	svc := complaints.NewService(complaints.NewPostgresStore(db), logger)

	if *csvPath != "" {
		loadCSV(ctx, svc, *csvPath, logger)
		return
	}

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS environment variable is required")
	}
	reader := ingest.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer func() { _ = reader.Close() }()

	stats, err := ingest.NewConsumer(reader, svc, logger).Run(ctx)
	logger.Info("consumer stopped",
		"received", stats.Received, "stored", stats.Stored, "invalid", stats.Invalid)
	if err != nil {
		log.Fatalf("Consumer failed: %v", err)
	}
}

func loadCSV(ctx context.Context, svc *complaints.Service, path string, logger *slog.Logger) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		log.Fatalf("Failed to open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	events, err := complaints.ReadCSV(f)
	if err != nil {
		log.Fatalf("Failed to parse %s: %v", path, err)
	}
	n, err := svc.Ingest(ctx, "csv", events)
	if err != nil {
		log.Fatalf("Failed to store complaints: %v", err)
	}
	logger.Info("complaints loaded", "file", path, "rows", n)
}
