package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements ContentCache using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *config.StorageConfig
	logger     *logrus.Entry
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(cfg *config.StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     cfg,
		logger:     utils.ComponentLogger("sqlite_storage"),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	if s.config.MaxConnections > 0 {
		db.SetMaxOpenConns(s.config.MaxConnections)
		db.SetMaxIdleConns(s.config.MaxConnections / 2)
	}
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set busy timeout", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	s.logger.Info("Starting database migrations")
	if err := applyMigrations(s.db, s.migrations, func(int) string { return "?" }, s.logger); err != nil {
		return err
	}
	s.logger.Info("Database migrations completed")
	return nil
}

// GetContent returns a cached body
func (s *SQLiteStorage) GetContent(ctx context.Context, contentID string) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM content WHERE content_id = ?", contentID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read content", err.Error())
	}
	return body, true, nil
}

// PutContent caches a body. Existing rows are left alone since ids are content hashes.
func (s *SQLiteStorage) PutContent(ctx context.Context, contentID string, body []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO content (content_id, body, size) VALUES (?, ?, ?)",
		contentID, body, len(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cache content", err.Error())
	}
	return nil
}

// SaveSubmission records a write attempt
func (s *SQLiteStorage) SaveSubmission(ctx context.Context, submission *Submission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO submissions
		(id, method, campaign_id, content_id, tx_hash, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		submission.ID, submission.Method, submission.CampaignID, submission.ContentID,
		submission.TxHash, submission.Status, submission.Error, submission.CreatedAt.UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save submission", err.Error())
	}
	return nil
}

// GetSubmissions returns the newest submissions for a campaign
func (s *SQLiteStorage) GetSubmissions(ctx context.Context, campaignID string, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, method, campaign_id, content_id, tx_hash, status, error, created_at
		FROM submissions WHERE campaign_id = ?
		ORDER BY created_at DESC LIMIT ?`, campaignID, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query submissions", err.Error())
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// GetStats returns cache statistics
func (s *SQLiteStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size), 0) FROM content").
		Scan(&stats.CachedBodies, &stats.CachedBytes)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read content stats", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions").Scan(&stats.Submissions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read submission stats", err.Error())
	}
	return stats, nil
}

func scanSubmissions(rows *sql.Rows) ([]*Submission, error) {
	var submissions []*Submission
	for rows.Next() {
		var sub Submission
		var createdAt time.Time
		if err := rows.Scan(&sub.ID, &sub.Method, &sub.CampaignID, &sub.ContentID,
			&sub.TxHash, &sub.Status, &sub.Error, &createdAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan submission", err.Error())
		}
		sub.CreatedAt = createdAt.UTC()
		submissions = append(submissions, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate submissions", err.Error())
	}
	return submissions, nil
}
