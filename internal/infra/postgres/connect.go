package postgres

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vogiaan1904/realtime-gateway/config"
	pkgPostgres "github.com/vogiaan1904/realtime-gateway/pkg/postgres"
)

func Connect(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := pkgPostgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	log.Println("Connected to Postgres.")

	return pool, nil
}

func Disconnect(pool *pgxpool.Pool) {
	if pool == nil {
		return
	}

	pool.Close()

	log.Println("Connection to Postgres closed.")
}
