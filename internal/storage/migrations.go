package storage

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// Migration is one versioned schema change
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create content table",
			SQL: `
				CREATE TABLE IF NOT EXISTS content (
					content_id TEXT PRIMARY KEY,
					body BLOB NOT NULL,
					size INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create submissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS submissions (
					id TEXT PRIMARY KEY,
					method TEXT NOT NULL,
					campaign_id TEXT NOT NULL,
					content_id TEXT NOT NULL DEFAULT '',
					tx_hash TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_submissions_campaign ON submissions(campaign_id, created_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create content table",
			SQL: `
				CREATE TABLE IF NOT EXISTS content (
					content_id TEXT PRIMARY KEY,
					body BYTEA NOT NULL,
					size BIGINT NOT NULL,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create submissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS submissions (
					id TEXT PRIMARY KEY,
					method TEXT NOT NULL,
					campaign_id TEXT NOT NULL,
					content_id TEXT NOT NULL DEFAULT '',
					tx_hash TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_submissions_campaign ON submissions(campaign_id, created_at);
			`,
		},
	}
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		description TEXT NOT NULL
	)
`

// applyMigrations runs every migration not yet recorded in schema_migrations.
// placeholder renders the n-th bind parameter for the driver.
func applyMigrations(db *sql.DB, migrations []*Migration, placeholder func(n int) string, logger *logrus.Entry) error {
	if db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	if _, err := db.Exec(createMigrationsTable); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	applied := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read applied migrations", err.Error())
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan migration", err.Error())
		}
		applied[version] = true
	}
	rows.Close()

	insert := fmt.Sprintf("INSERT INTO schema_migrations (version, description) VALUES (%s, %s)",
		placeholder(1), placeholder(2))

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		tx, err := db.Begin()
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin migration", err.Error())
		}
		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err.Error())
		}
		if _, err := tx.Exec(insert, migration.Version, migration.Description); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to record migration %s", migration.Version), err.Error())
		}
		if err := tx.Commit(); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit migration", err.Error())
		}
	}
	return nil
}
