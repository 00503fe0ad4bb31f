// Command reset reopens every frozen complaint so a demo can run again.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/config"
	"github.com/mbd888/muletrace/internal/logging"
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

	svc := complaints.NewService(complaints.NewPostgresStore(db), logging.New(cfg.LogLevel, cfg.LogFormat))
	n, err := svc.Reset(ctx)
	if err != nil {
		log.Fatalf("Reset failed: %v", err)
	}
	fmt.Printf("Reset %d complaint rows to Open\n", n)
}
