// Package database provides the PostgreSQL persistence layer for the payout
// ledger. The schema carries the accounting invariants: a unique index on
// (opportunity, unit, client, distribution version) is the distribution
// idempotency key, and every aggregate update runs in the same transaction
// as the record write it derives from.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger.With().Str("component", "database").Logger()}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS opportunities (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			value_cents BIGINT NOT NULL DEFAULT 0,
			total_paid_cents BIGINT NOT NULL DEFAULT 0,
			total_scheduled_cents BIGINT NOT NULL DEFAULT 0,
			value_payment_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_tenant ON opportunities(tenant_id)`,

		`CREATE TABLE IF NOT EXISTS opportunity_members (
			id TEXT PRIMARY KEY,
			opportunity_id TEXT NOT NULL REFERENCES opportunities(id),
			client_id TEXT NOT NULL,
			role VARCHAR(50) NOT NULL DEFAULT '',
			default_split_bp BIGINT NOT NULL DEFAULT 0,
			default_payout_delay_days INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			total_earned_cents BIGINT NOT NULL DEFAULT 0,
			total_pending_cents BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (opportunity_id, client_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_client ON opportunity_members(client_id)`,

		`CREATE TABLE IF NOT EXISTS payment_units (
			id TEXT PRIMARY KEY,
			opportunity_id TEXT NOT NULL REFERENCES opportunities(id),
			unit_type VARCHAR(10) NOT NULL,
			schedule_index INT NOT NULL DEFAULT 0,
			amount_cents BIGINT NOT NULL,
			due_date TIMESTAMPTZ,
			received_date TIMESTAMPTZ,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			member_splits JSONB,
			distribution_version INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_units_opportunity ON payment_units(opportunity_id, status)`,

		`CREATE TABLE IF NOT EXISTS payout_records (
			id TEXT PRIMARY KEY,
			opportunity_id TEXT NOT NULL REFERENCES opportunities(id),
			payment_unit_id TEXT NOT NULL REFERENCES payment_units(id),
			client_id TEXT NOT NULL,
			distribution_version INT NOT NULL,
			split_bp BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			payout_delay_days INT NOT NULL DEFAULT 0,
			payout_date TIMESTAMPTZ NOT NULL,
			paid_out_date TIMESTAMPTZ,
			status VARCHAR(20) NOT NULL,
			superseded BOOLEAN NOT NULL DEFAULT FALSE,
			transaction_id TEXT,
			notes TEXT NOT NULL DEFAULT '',
			retry_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (opportunity_id, payment_unit_id, client_id, distribution_version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_member ON payout_records(client_id, payout_date)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_opportunity ON payout_records(opportunity_id, payout_date)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_transaction ON payout_records(transaction_id) WHERE transaction_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_due ON payout_records(payout_date) WHERE status = 'PENDING'`,

		`CREATE TABLE IF NOT EXISTS staff_users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'staff',
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("statements", len(migrations)).Msg("database migrations completed")
	return nil
}
