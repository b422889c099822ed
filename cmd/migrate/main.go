package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/tableadmin/internal/core/config"
	"github.com/vietddude/tableadmin/internal/infra/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	down := flag.Bool("down", false, "Roll back the most recent migration")
	flag.Parse()

	_ = godotenv.Load()
	stylelog.InitDefault(&tint.Options{Level: slog.LevelInfo, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("database.url is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	if *down {
		err = postgres.Rollback(ctx, db)
	} else {
		err = postgres.Migrate(ctx, db)
	}
	if err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}

	v, err := postgres.SchemaVersion(ctx, db)
	if err != nil {
		slog.Error("Failed to read schema version", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Schema at version %d\n", v)
}
