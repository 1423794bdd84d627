// Package database wraps the PostgreSQL connection pool and owns the
// embedded schema migrations.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		if err := db.runMigration(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) runMigration(ctx context.Context, m migration) error {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
		m.version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check migration %d: %w", m.version, err)
	}

	if exists {
		return nil
	}

	_, err = db.Pool.Exec(ctx, m.sql)
	if err != nil {
		return fmt.Errorf("failed to run migration %d: %w", m.version, err)
	}

	_, err = db.Pool.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)",
		m.version,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}

	return nil
}

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
			-- =============================================================================
			-- ACCOUNTS
			-- =============================================================================

			CREATE TABLE accounts (
				id UUID PRIMARY KEY,
				secret_api_key TEXT NOT NULL UNIQUE,
				public_jwt_key TEXT,
				webhook_url TEXT,
				webhook_key TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE TABLE account_integrations (
				account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				provider TEXT NOT NULL,
				client_id TEXT NOT NULL,
				client_secret TEXT NOT NULL,
				redirect_uri TEXT NOT NULL,
				PRIMARY KEY (account_id, provider)
			);

			-- =============================================================================
			-- USERS
			-- =============================================================================

			CREATE TABLE users (
				id UUID PRIMARY KEY,
				account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				external_id TEXT,
				metadata JSONB NOT NULL DEFAULT '{}',
				UNIQUE (account_id, external_id)
			);

			CREATE INDEX idx_users_account ON users(account_id);
			CREATE INDEX idx_users_metadata ON users USING GIN (metadata);

			CREATE TABLE user_integrations (
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				provider TEXT NOT NULL,
				access_token TEXT NOT NULL,
				refresh_token TEXT NOT NULL,
				token_expires BIGINT NOT NULL DEFAULT 0,
				PRIMARY KEY (user_id, provider)
			);

			-- =============================================================================
			-- CALENDARS
			-- =============================================================================

			CREATE TABLE calendars (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				name TEXT,
				key TEXT,
				timezone TEXT NOT NULL DEFAULT 'UTC',
				week_start TEXT NOT NULL DEFAULT 'mon',
				metadata JSONB NOT NULL DEFAULT '{}'
			);

			CREATE INDEX idx_calendars_user ON calendars(user_id);
			CREATE INDEX idx_calendars_metadata ON calendars USING GIN (metadata);

			-- =============================================================================
			-- SCHEDULES
			-- =============================================================================

			CREATE TABLE schedules (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				rules JSONB NOT NULL DEFAULT '[]',
				timezone TEXT NOT NULL DEFAULT 'UTC',
				metadata JSONB NOT NULL DEFAULT '{}'
			);

			CREATE INDEX idx_schedules_user ON schedules(user_id);

			-- =============================================================================
			-- SERVICES
			-- =============================================================================

			CREATE TABLE services (
				id UUID PRIMARY KEY,
				account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				multi_person JSONB NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}'
			);

			CREATE TABLE service_users (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				service_id UUID NOT NULL REFERENCES services(id) ON DELETE CASCADE,
				availability JSONB NOT NULL,
				buffer_before BIGINT NOT NULL DEFAULT 0,
				buffer_after BIGINT NOT NULL DEFAULT 0,
				closest_booking_time BIGINT NOT NULL DEFAULT 0,
				furthest_booking_time BIGINT,
				busy_calendars JSONB NOT NULL DEFAULT '[]',
				UNIQUE (service_id, user_id)
			);

			CREATE INDEX idx_service_users_user ON service_users(user_id);

			CREATE TABLE service_reservations (
				service_id UUID NOT NULL REFERENCES services(id) ON DELETE CASCADE,
				slot_start TIMESTAMPTZ NOT NULL,
				count INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (service_id, slot_start)
			);

			-- =============================================================================
			-- EVENTS
			-- =============================================================================

			CREATE TABLE calendar_events (
				id UUID PRIMARY KEY,
				account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				calendar_id UUID NOT NULL REFERENCES calendars(id) ON DELETE CASCADE,
				external_id TEXT,
				external_parent_id TEXT,
				group_id UUID,
				title TEXT,
				description TEXT,
				event_type TEXT,
				location TEXT,
				status TEXT NOT NULL DEFAULT 'tentative',
				all_day BOOLEAN NOT NULL DEFAULT false,
				start_time TIMESTAMPTZ NOT NULL,
				duration BIGINT NOT NULL DEFAULT 0,
				end_time TIMESTAMPTZ NOT NULL,
				busy BOOLEAN NOT NULL DEFAULT false,
				created TIMESTAMPTZ NOT NULL,
				updated TIMESTAMPTZ NOT NULL,
				recurrence JSONB,
				recurring_until TIMESTAMPTZ,
				exdates TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
				recurring_event_id UUID REFERENCES calendar_events(id) ON DELETE CASCADE,
				original_start_time TIMESTAMPTZ,
				reminders JSONB NOT NULL DEFAULT '[]',
				service_id UUID REFERENCES services(id) ON DELETE SET NULL,
				metadata JSONB NOT NULL DEFAULT '{}'
			);

			CREATE INDEX idx_events_calendar_time ON calendar_events(calendar_id, start_time);
			CREATE INDEX idx_events_user_time ON calendar_events(user_id, start_time);
			CREATE INDEX idx_events_recurring_parent ON calendar_events(recurring_event_id);
			CREATE INDEX idx_events_service ON calendar_events(service_id);
			CREATE INDEX idx_events_external ON calendar_events(account_id, external_id);
			CREATE INDEX idx_events_metadata ON calendar_events USING GIN (metadata);

			-- =============================================================================
			-- REMINDERS
			-- =============================================================================

			CREATE TABLE event_reminder_versions (
				event_id UUID PRIMARY KEY REFERENCES calendar_events(id) ON DELETE CASCADE,
				version BIGINT NOT NULL DEFAULT 1
			);

			CREATE TABLE reminders (
				event_id UUID NOT NULL REFERENCES calendar_events(id) ON DELETE CASCADE,
				account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				remind_at TIMESTAMPTZ NOT NULL,
				version BIGINT NOT NULL,
				identifier TEXT NOT NULL
			);

			CREATE INDEX idx_reminders_remind_at ON reminders(remind_at);
			CREATE INDEX idx_reminders_event ON reminders(event_id);

			CREATE TABLE reminder_expansion_jobs (
				event_id UUID NOT NULL REFERENCES calendar_events(id) ON DELETE CASCADE,
				timestamp TIMESTAMPTZ NOT NULL,
				version BIGINT NOT NULL
			);

			CREATE INDEX idx_expansion_jobs_timestamp ON reminder_expansion_jobs(timestamp);
			CREATE INDEX idx_expansion_jobs_event ON reminder_expansion_jobs(event_id);
		`,
	},
}
