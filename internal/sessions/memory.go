package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/strandworks/strand/pkg/models"
)

// MemoryStore is an in-memory Store for tests and single-process hosts.
// Snapshots are stored as serialized JSON so callers cannot alias stored
// state.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}}
}

func (m *MemoryStore) Save(ctx context.Context, snap models.Snapshot) error {
	if snap.ID == "" {
		return errors.New("snapshot id is required")
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[snap.ID] = blob
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (models.Snapshot, error) {
	m.mu.RLock()
	blob, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, ErrNotFound
	}
	var snap models.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.blobs))
	for id := range m.blobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
