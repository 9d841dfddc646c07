package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/finance-sync/internal/config"
	"github.com/dvloznov/finance-sync/internal/infra/sqlite"
	"github.com/dvloznov/finance-sync/internal/logger"
)

func main() {
	configFile := flag.String("config", "", "Optional config file (yaml, json, toml or env)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DATABASE_PATH)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	// Open applies every pending migration.
	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("database_path", cfg.DatabasePath).Msg("Migration failed")
	}
	defer store.Close()

	applied, err := store.AppliedMigrations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read applied migrations")
	}

	fmt.Printf("Database %s is up to date:\n", cfg.DatabasePath)
	for _, m := range applied {
		fmt.Printf("  %04d_%s  applied %s by %s\n", m.Version, m.Name, m.AppliedAt.Format(time.RFC3339), m.AppliedBy)
	}
}
