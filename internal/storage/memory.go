package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage is a process-local ContentCache
type MemoryStorage struct {
	mu          sync.RWMutex
	content     map[string][]byte
	submissions []*Submission
}

// NewMemoryStorage creates an empty in-memory cache
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{content: make(map[string][]byte)}
}

func (m *MemoryStorage) Connect() error { return nil }
func (m *MemoryStorage) Close() error   { return nil }
func (m *MemoryStorage) Ping() error    { return nil }
func (m *MemoryStorage) Migrate() error { return nil }

// GetContent returns a cached body
func (m *MemoryStorage) GetContent(ctx context.Context, contentID string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.content[contentID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), body...), true, nil
}

// PutContent caches a body
func (m *MemoryStorage) PutContent(ctx context.Context, contentID string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.content[contentID]; !ok {
		m.content[contentID] = append([]byte(nil), body...)
	}
	return nil
}

// SaveSubmission records a write attempt, replacing one with the same id
func (m *MemoryStorage) SaveSubmission(ctx context.Context, submission *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *submission
	for i, existing := range m.submissions {
		if existing.ID == submission.ID {
			m.submissions[i] = &stored
			return nil
		}
	}
	m.submissions = append(m.submissions, &stored)
	return nil
}

// GetSubmissions returns the newest submissions for a campaign
func (m *MemoryStorage) GetSubmissions(ctx context.Context, campaignID string, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	var out []*Submission
	for _, sub := range m.submissions {
		if sub.CampaignID == campaignID {
			copied := *sub
			out = append(out, &copied)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetStats returns cache statistics
func (m *MemoryStorage) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &Stats{CachedBodies: int64(len(m.content)), Submissions: int64(len(m.submissions))}
	for _, body := range m.content {
		stats.CachedBytes += int64(len(body))
	}
	return stats, nil
}
