// Package store provides database schema migration management.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/notedeck/notedeck/internal/errors"
	"github.com/notedeck/notedeck/internal/logging"
)

// Migration represents one applied schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migration is an embedded schema step. Steps are applied in order and
// recorded with a checksum so a changed step is detected, not re-run.
type migration struct {
	version     int
	description string
	sql         string
}

var migrations = []migration{
	{
		version:     1,
		description: "create todos table",
		sql: `
		CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			assigned_to TEXT NOT NULL DEFAULT '',
			due_date INTEGER NOT NULL DEFAULT 0,
			project_id TEXT NOT NULL DEFAULT '',
			attachment_ids TEXT NOT NULL DEFAULT '[]',
			version INTEGER NOT NULL DEFAULT 1,
			created_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			is_deleted INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_todos_document ON todos(document_id, is_deleted);
		CREATE INDEX IF NOT EXISTS idx_todos_due ON todos(due_date) WHERE due_date > 0;
		`,
	},
	{
		version:     2,
		description: "create change_log table",
		sql: `
		CREATE TABLE IF NOT EXISTS change_log (
			id TEXT PRIMARY KEY,
			todo_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			version INTEGER NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_change_log_doc ON change_log(document_id, timestamp);
		`,
	},
	{
		version:     3,
		description: "create conflict_log table",
		sql: `
		CREATE TABLE IF NOT EXISTS conflict_log (
			id TEXT PRIMARY KEY,
			todo_id TEXT NOT NULL,
			local_timestamp INTEGER NOT NULL,
			remote_timestamp INTEGER NOT NULL,
			resolution TEXT NOT NULL,
			detected_at INTEGER NOT NULL
		);
		`,
	},
}

// Migrator applies embedded schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Apply brings the schema up to date, verifying checksums of already
// applied steps.
func (m *Migrator) Apply() error {
	if err := m.Initialize(); err != nil {
		return errors.Wrap(errors.ErrMigration, "failed to initialize migrations table", err)
	}

	applied, err := m.appliedMigrations()
	if err != nil {
		return errors.Wrap(errors.ErrMigration, "failed to read applied migrations", err)
	}

	for _, step := range migrations {
		sum := checksum(step.sql)

		if prior, ok := applied[step.version]; ok {
			if prior.Checksum != sum {
				return errors.Newf(errors.ErrMigration,
					"migration %d checksum mismatch: schema step was modified after being applied", step.version)
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return errors.Wrap(errors.ErrMigration, "failed to begin migration transaction", err)
		}
		if _, err := tx.Exec(step.sql); err != nil {
			tx.Rollback()
			return errors.Wrap(errors.ErrMigration,
				fmt.Sprintf("migration %d (%s) failed", step.version, step.description), err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			step.version, time.Now().Unix(), step.description, sum,
		); err != nil {
			tx.Rollback()
			return errors.Wrap(errors.ErrMigration, "failed to record migration", err)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrap(errors.ErrMigration, "failed to commit migration", err)
		}

		logging.Info("applied schema migration",
			map[string]interface{}{"version": step.version, "description": step.description})
	}

	return nil
}

// appliedMigrations returns applied migrations keyed by version.
func (m *Migrator) appliedMigrations() (map[int]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]Migration)
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied[mig.Version] = mig
	}
	return applied, rows.Err()
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
