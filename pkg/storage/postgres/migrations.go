package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns all schema migrations in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create identities tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS identities (
					subject_id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					email TEXT NOT NULL,
					access_token TEXT NOT NULL,
					refresh_token TEXT NOT NULL,
					access_expires_at TIMESTAMPTZ NOT NULL,
					cohort_id TEXT,
					authenticated_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_identities_email ON identities(LOWER(email));

				CREATE TABLE IF NOT EXISTS archived_identities (
					subject_id TEXT NOT NULL,
					archived_at TIMESTAMPTZ NOT NULL,
					display_name TEXT NOT NULL,
					email TEXT NOT NULL,
					cohort_id TEXT,
					authenticated_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (subject_id, archived_at)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create authentication_requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS authentication_requests (
					csrf_token TEXT PRIMARY KEY,
					subject_id TEXT NOT NULL,
					requested_at TIMESTAMPTZ NOT NULL,
					confirmed_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_authentication_requests_pending
					ON authentication_requests(requested_at) WHERE confirmed_at IS NULL;
			`,
		},
		{
			Version:     3,
			Description: "Create sync request queues",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_sync_requests (
					subject_id TEXT PRIMARY KEY,
					queued_at TIMESTAMPTZ NOT NULL,
					low_priority BOOLEAN NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_role_sync_requests_order
					ON role_sync_requests(low_priority, queued_at);

				CREATE TABLE IF NOT EXISTS user_info_sync_requests (
					subject_id TEXT PRIMARY KEY,
					queued_at TIMESTAMPTZ NOT NULL,
					low_priority BOOLEAN NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_user_info_sync_requests_order
					ON user_info_sync_requests(low_priority, queued_at);
			`,
		},
		{
			Version:     4,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					subject_id TEXT,
					request_id VARCHAR(100) NOT NULL DEFAULT '',
					ip_address VARCHAR(45) NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT '',
					method VARCHAR(10) NOT NULL,
					route TEXT NOT NULL,
					status_code INTEGER NOT NULL,
					duration_ms BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_subject ON audit_events(subject_id, timestamp DESC);
			`,
		},
	}
}

// Migrate executes all pending migrations
func Migrate(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("Running migration")

		if err := apply(ctx, db, migration); err != nil {
			return err
		}

		log.Info("Migration completed")
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	versions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		versions[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	return versions, nil
}

func apply(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
		migration.Version, migration.Description,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}
