// Command verify scores the saved model artifacts against the stored
// complaint history without retraining.
package main

import (
	"context"
	"log"
	"os"

	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/config"
	"github.com/mbd888/muletrace/internal/training"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	ctx := context.Background()
	db, err := complaints.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = db.Close() }()

	paths := training.Paths{Model: cfg.ModelPath, Encoder: cfg.EncoderPath}
	rep, err := training.Verify(ctx, complaints.NewPostgresStore(db), paths)
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	training.PrintReport(os.Stdout, rep, 3)
}
