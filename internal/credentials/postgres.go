package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

const credentialsDDL = `
CREATE TABLE IF NOT EXISTS credentials (
    id         TEXT PRIMARY KEY,
    secret     TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresResolver resolves secrets from a credentials table.
type PostgresResolver struct {
	db *sql.DB
}

// NewPostgresResolver connects via the pgx stdlib driver and ensures
// the credentials table exists.
func NewPostgresResolver(ctx context.Context, databaseURL string) (*PostgresResolver, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, credentialsDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	log.Info().Msg("Postgres credential resolver ready")
	return &PostgresResolver{db: db}, nil
}

func (r *PostgresResolver) Kind() string { return "postgres" }

func (r *PostgresResolver) Resolve(ctx context.Context, credentialID string) (*models.Secret, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT secret FROM credentials WHERE id = $1`, credentialID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, missingError(credentialID)
	}
	if err != nil {
		return nil, fmt.Errorf("query credential %s: %w", credentialID, err)
	}

	return &models.Secret{
		ID:         credentialID,
		Value:      value,
		ResolvedAt: time.Now(),
		Backend:    r.Kind(),
	}, nil
}

func (r *PostgresResolver) HealthCheck(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Store upserts a secret.
func (r *PostgresResolver) Store(ctx context.Context, credentialID, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (id, secret, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET secret = EXCLUDED.secret, updated_at = now()`,
		credentialID, value)
	if err != nil {
		return fmt.Errorf("store credential %s: %w", credentialID, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresResolver) Close() error { return r.db.Close() }
