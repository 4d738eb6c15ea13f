package sqldb

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all sitekit migrations. The DDL sticks to the
// portable subset both SQLite and PostgreSQL accept.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create nodes and node metadata tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS nodes (
					id VARCHAR(64) PRIMARY KEY,
					parent_id VARCHAR(64) REFERENCES nodes(id),
					name VARCHAR(255) NOT NULL,
					node_type VARCHAR(255) NOT NULL,
					trashed BOOLEAN NOT NULL DEFAULT FALSE,
					trash_root BOOLEAN NOT NULL DEFAULT FALSE,
					deleted_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_nodes_parent_id ON nodes(parent_id);
				CREATE INDEX IF NOT EXISTS idx_nodes_parent_name ON nodes(parent_id, name);
				CREATE INDEX IF NOT EXISTS idx_nodes_trash_root ON nodes(trash_root);

				CREATE TABLE IF NOT EXISTS node_props (
					node_id VARCHAR(64) NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
					prop_key VARCHAR(255) NOT NULL,
					prop_value TEXT NOT NULL,
					PRIMARY KEY (node_id, prop_key)
				);

				CREATE TABLE IF NOT EXISTS node_aspects (
					node_id VARCHAR(64) NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
					aspect VARCHAR(255) NOT NULL,
					PRIMARY KEY (node_id, aspect)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create authority tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_groups (
					name VARCHAR(100) PRIMARY KEY,
					display_name VARCHAR(255) NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS group_members (
					parent_name VARCHAR(100) NOT NULL REFERENCES auth_groups(name) ON DELETE CASCADE,
					child_name VARCHAR(100) NOT NULL,
					PRIMARY KEY (parent_name, child_name)
				);

				CREATE INDEX IF NOT EXISTS idx_group_members_child ON group_members(child_name);

				CREATE TABLE IF NOT EXISTS persons (
					user_name VARCHAR(100) PRIMARY KEY,
					first_name VARCHAR(255) NOT NULL DEFAULT '',
					last_name VARCHAR(255) NOT NULL DEFAULT ''
				);
			`,
		},
		{
			Version:     3,
			Description: "Create permission tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS acls (
					node_id VARCHAR(64) PRIMARY KEY REFERENCES nodes(id) ON DELETE CASCADE,
					inherits BOOLEAN NOT NULL DEFAULT TRUE,
					defined BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE TABLE IF NOT EXISTS acl_entries (
					node_id VARCHAR(64) NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
					authority VARCHAR(100) NOT NULL,
					permission VARCHAR(100) NOT NULL,
					PRIMARY KEY (node_id, authority, permission)
				);

				CREATE INDEX IF NOT EXISTS idx_acl_entries_authority ON acl_entries(authority);
			`,
		},
	}
}

// Migrate applies pending migrations in version order. Each migration runs
// in its own transaction; a failure leaves earlier migrations applied.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description VARCHAR(255) NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range GetMigrations() {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
		m.Version, m.Description); err != nil {
		return fmt.Errorf("migration %d: record version: %w", m.Version, err)
	}
	return tx.Commit()
}
