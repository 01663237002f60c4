// Package database owns the PostgreSQL pool, transactions with retry,
// SQLSTATE classification and schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/config"
)

const (
	connectAttempts = 5
	pingTimeout     = 5 * time.Second
)

// NewConnection opens the pool and waits until the server answers. The ping
// is retried a few times so the API can start alongside its database.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	delay := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		if attempt == connectAttempts || ctx.Err() != nil {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("database not ready")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		delay *= 2
	}

	db.Close()
	return nil, fmt.Errorf("ping database: %w", err)
}
