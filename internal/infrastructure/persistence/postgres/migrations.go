package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator applies the embedded schema migrations in order.
type Migrator struct {
	conn      *Connection
	tableName string
}

// NewMigrator creates a migrator over a connection.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, tableName: "schema_migrations"}
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, m.tableName)
	if _, err := m.conn.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range Migrations() {
		if _, done := applied[mig.Version]; done {
			continue
		}

		tx, err := m.conn.Pool().BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		record := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
		if _, err := tx.Exec(ctx, record, mig.Version, mig.Name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)
	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrations returns the embedded schema migrations.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_users",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL DEFAULT '',
					total_xp BIGINT NOT NULL DEFAULT 0,
					level INTEGER NOT NULL DEFAULT 1,
					skill_points_available INTEGER NOT NULL DEFAULT 0,
					skill_points_spent INTEGER NOT NULL DEFAULT 0,
					attributes JSONB NOT NULL DEFAULT '{}',
					streak_current INTEGER NOT NULL DEFAULT 0,
					streak_best INTEGER NOT NULL DEFAULT 0,
					streak_last_active TIMESTAMPTZ,
					streak_started TIMESTAMPTZ,
					registered_at TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)
			`,
			DownSQL: `DROP TABLE IF EXISTS users`,
		},
		{
			Version: 2,
			Name:    "create_xp_ledger",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS xp_ledger (
					id UUID PRIMARY KEY,
					user_id TEXT NOT NULL,
					amount BIGINT NOT NULL,
					source TEXT NOT NULL,
					idempotency_key TEXT NOT NULL UNIQUE,
					recorded_at TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_xp_ledger_user
					ON xp_ledger (user_id, recorded_at)
			`,
			DownSQL: `DROP TABLE IF EXISTS xp_ledger`,
		},
		{
			Version: 3,
			Name:    "create_quest_instances",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS quest_instances (
					id UUID PRIMARY KEY,
					user_id TEXT NOT NULL,
					template_id TEXT NOT NULL,
					state TEXT NOT NULL,
					assigned_at TIMESTAMPTZ NOT NULL,
					activated_at TIMESTAMPTZ,
					deadline TIMESTAMPTZ NOT NULL,
					finished_at TIMESTAMPTZ,
					awarded_xp BIGINT NOT NULL DEFAULT 0
				);
				CREATE INDEX IF NOT EXISTS idx_quest_instances_user
					ON quest_instances (user_id, assigned_at DESC);
				CREATE INDEX IF NOT EXISTS idx_quest_instances_open
					ON quest_instances (deadline)
					WHERE state IN ('assigned', 'active')
			`,
			DownSQL: `DROP TABLE IF EXISTS quest_instances`,
		},
	}
}
