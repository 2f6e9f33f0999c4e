package main

import (
	"database/sql"
	"flag"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"predictive-league/internal/config"
	"predictive-league/internal/logging"
)

const schemaTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func main() {
	dir := flag.String("dir", "migrations", "directory of .sql migrations applied in name order")
	flag.Parse()

	logging.Init(logging.Options{LogLevel: zerolog.InfoLevel, Type: logging.ConsoleLogger})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Root.Fatal().Err(err).Msg("failed to load config")
	}

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		logging.Root.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logging.Root.Fatal().Err(err).Msg("failed to ping database")
	}

	if _, err := db.Exec(schemaTable); err != nil {
		logging.Root.Fatal().Err(err).Msg("failed to create schema_migrations")
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		logging.Root.Fatal().Err(err).Msg("failed to list migrations")
	}
	sort.Strings(files)

	applied := 0
	for _, path := range files {
		name := filepath.Base(path)

		var exists bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			logging.Root.Fatal().Err(err).Str("migration", name).Msg("failed to check migration")
		}
		if exists {
			continue
		}

		sqlBytes, err := os.ReadFile(path)
		if err != nil {
			logging.Root.Fatal().Err(err).Str("migration", name).Msg("failed to read migration file")
		}

		tx, err := db.Begin()
		if err != nil {
			logging.Root.Fatal().Err(err).Msg("failed to begin transaction")
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			logging.Root.Fatal().Err(err).Str("migration", name).Msg("failed to apply migration")
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			logging.Root.Fatal().Err(err).Str("migration", name).Msg("failed to record migration")
		}
		if err := tx.Commit(); err != nil {
			logging.Root.Fatal().Err(err).Str("migration", name).Msg("failed to commit migration")
		}

		applied++
		logging.Root.Info().Str("migration", name).Msg("migration applied")
	}

	logging.Root.Info().Int("applied", applied).Int("total", len(files)).Msg("migrations complete")
}
