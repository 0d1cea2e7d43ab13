package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// PostgreSQLStorage implements ContentCache using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *config.StorageConfig
	logger     *logrus.Entry
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(cfg *config.StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     cfg,
		logger:     utils.ComponentLogger("postgres_storage"),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	connector, err := pq.NewConnector(p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Invalid PostgreSQL connection string", err.Error())
	}
	db := sql.OpenDB(connector)

	if p.config.MaxConnections > 0 {
		db.SetMaxOpenConns(p.config.MaxConnections)
		db.SetMaxIdleConns(p.config.MaxConnections / 2)
	}
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")
	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	p.logger.Info("Starting PostgreSQL database migrations")
	if err := applyMigrations(p.db, p.migrations, func(n int) string { return fmt.Sprintf("$%d", n) }, p.logger); err != nil {
		return err
	}
	p.logger.Info("PostgreSQL database migrations completed")
	return nil
}

// GetContent returns a cached body
func (p *PostgreSQLStorage) GetContent(ctx context.Context, contentID string) ([]byte, bool, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, "SELECT body FROM content WHERE content_id = $1", contentID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read content", err.Error())
	}
	return body, true, nil
}

// PutContent caches a body
func (p *PostgreSQLStorage) PutContent(ctx context.Context, contentID string, body []byte) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO content (content_id, body, size) VALUES ($1, $2, $3) ON CONFLICT (content_id) DO NOTHING",
		contentID, body, len(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cache content", err.Error())
	}
	return nil
}

// SaveSubmission records a write attempt
func (p *PostgreSQLStorage) SaveSubmission(ctx context.Context, submission *Submission) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO submissions
		(id, method, campaign_id, content_id, tx_hash, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			tx_hash = EXCLUDED.tx_hash,
			status = EXCLUDED.status,
			error = EXCLUDED.error`,
		submission.ID, submission.Method, submission.CampaignID, submission.ContentID,
		submission.TxHash, submission.Status, submission.Error, submission.CreatedAt.UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save submission", err.Error())
	}
	return nil
}

// GetSubmissions returns the newest submissions for a campaign
func (p *PostgreSQLStorage) GetSubmissions(ctx context.Context, campaignID string, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, method, campaign_id, content_id, tx_hash, status, error, created_at
		FROM submissions WHERE campaign_id = $1
		ORDER BY created_at DESC LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query submissions", err.Error())
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// GetStats returns cache statistics
func (p *PostgreSQLStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size), 0) FROM content").
		Scan(&stats.CachedBodies, &stats.CachedBytes)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read content stats", err.Error())
	}
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions").Scan(&stats.Submissions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read submission stats", err.Error())
	}
	return stats, nil
}
