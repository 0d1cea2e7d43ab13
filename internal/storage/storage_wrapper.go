package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
)

// CacheWithMetrics wraps a ContentCache with database metrics
type CacheWithMetrics struct {
	ContentCache
	metricsManager *metrics.Manager
}

// NewCacheWithMetrics creates a cache wrapper with metrics
func NewCacheWithMetrics(cache ContentCache, metricsManager *metrics.Manager) *CacheWithMetrics {
	return &CacheWithMetrics{
		ContentCache:   cache,
		metricsManager: metricsManager,
	}
}

// GetContent reads a cached body and records metrics
func (c *CacheWithMetrics) GetContent(ctx context.Context, contentID string) ([]byte, bool, error) {
	start := time.Now()
	body, ok, err := c.ContentCache.GetContent(ctx, contentID)
	c.record("select", "content", err, start)
	return body, ok, err
}

// PutContent caches a body and records metrics
func (c *CacheWithMetrics) PutContent(ctx context.Context, contentID string, body []byte) error {
	start := time.Now()
	err := c.ContentCache.PutContent(ctx, contentID, body)
	c.record("insert", "content", err, start)
	return err
}

// SaveSubmission records a write attempt and records metrics
func (c *CacheWithMetrics) SaveSubmission(ctx context.Context, submission *Submission) error {
	start := time.Now()
	err := c.ContentCache.SaveSubmission(ctx, submission)
	c.record("upsert", "submissions", err, start)
	return err
}

func (c *CacheWithMetrics) record(operation, table string, err error, start time.Time) {
	if c.metricsManager == nil {
		return
	}
	c.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(
		operation, table, metrics.StatusLabel(err), time.Since(start))
}
