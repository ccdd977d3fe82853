package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/careloop/clinic-scheduler/internal/db"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "migrate").Logger()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	log.Info().Msg("schema applied")
}
