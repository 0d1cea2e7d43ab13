package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// MemoryStore is an in-process content-addressed store keyed by sha256
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores v and returns its id
func (m *MemoryStore) Put(ctx context.Context, v interface{}) (string, error) {
	body, err := encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	id := hex.EncodeToString(sum[:])

	m.mu.Lock()
	m.blobs[id] = body
	m.mu.Unlock()
	return id, nil
}

// Get returns the blob stored under id
func (m *MemoryStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	m.mu.RLock()
	body, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Content not found", id)
	}
	return validate(id, append([]byte(nil), body...))
}

// PutRaw stores bytes as-is under id, bypassing encoding. Used to seed
// fixtures that are not valid JSON.
func (m *MemoryStore) PutRaw(id string, body []byte) {
	m.mu.Lock()
	m.blobs[id] = append([]byte(nil), body...)
	m.mu.Unlock()
}
