// Command train fits the next-location model on every stored complaint and
// writes the model and encoder artifacts.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./cmd/train
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/config"
	"github.com/mbd888/muletrace/internal/logging"
	"github.com/mbd888/muletrace/internal/model"
	"github.com/mbd888/muletrace/internal/training"
)

const spotChecks = 3

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	db, err := complaints.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = db.Close() }()

	paths := training.Paths{Model: cfg.ModelPath, Encoder: cfg.EncoderPath}
	run, err := training.Train(ctx, complaints.NewPostgresStore(db), paths, model.DefaultConfig(), logger)
	if errors.Is(err, training.ErrNoTrainingData) {
		log.Fatal("No account has two or more complaints; load data with cmd/ingest first")
	}
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	training.PrintExample(os.Stdout, run)
	training.PrintReport(os.Stdout, run.Report, spotChecks)
}
