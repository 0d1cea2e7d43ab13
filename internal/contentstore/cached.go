package contentstore

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/storage"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// CachedStore serves Get from a ContentCache before asking the backing store.
// Cache failures are logged and fall through to the backing store.
type CachedStore struct {
	next   Store
	cache  storage.ContentCache
	logger *logrus.Entry

	metricsManager *metrics.Manager
}

// NewCachedStore wraps next with cache
func NewCachedStore(next Store, cache storage.ContentCache, metricsManager *metrics.Manager) *CachedStore {
	return &CachedStore{
		next:           next,
		cache:          cache,
		logger:         utils.ComponentLogger("content_cache"),
		metricsManager: metricsManager,
	}
}

// Put stores v in the backing store and primes the cache
func (c *CachedStore) Put(ctx context.Context, v interface{}) (string, error) {
	id, err := c.next.Put(ctx, v)
	if err != nil {
		return "", err
	}
	if body, err := encode(v); err == nil {
		c.store(ctx, id, body)
	}
	return id, nil
}

// Get returns cached content or fetches and caches it
func (c *CachedStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	body, ok, err := c.cache.GetContent(ctx, id)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"content_id": id, "error": err}).Warn("Content cache read failed")
	}
	c.recordLookup(ok && err == nil)
	if ok && err == nil {
		return validate(id, body)
	}

	raw, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, id, raw)
	return raw, nil
}

func (c *CachedStore) store(ctx context.Context, id string, body []byte) {
	if err := c.cache.PutContent(ctx, id, body); err != nil {
		c.logger.WithFields(logrus.Fields{"content_id": id, "error": err}).Warn("Content cache write failed")
	}
}

func (c *CachedStore) recordLookup(hit bool) {
	if c.metricsManager != nil {
		c.metricsManager.GetPrometheusMetrics().RecordCacheLookup(hit)
	}
}
