package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/smallnest/stategraph/store"
)

// MemoryCheckpointStore keeps checkpoints in a map guarded by a RWMutex.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
	}
}

// Save stores a copy of the checkpoint, replacing the thread's previous one.
func (m *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[checkpoint.ThreadID] = clone(checkpoint)
	return nil
}

// Load returns a copy of the thread's checkpoint.
func (m *MemoryCheckpointStore) Load(_ context.Context, threadID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[threadID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(cp), nil
}

// Delete removes the thread's checkpoint.
func (m *MemoryCheckpointStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checkpoints, threadID)
	return nil
}

// List returns the stored thread ids in lexical order.
func (m *MemoryCheckpointStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.checkpoints)), nil
}

// clone deep-copies a checkpoint so neither the saver nor a loader can reach the stored value.
func clone(cp *store.Checkpoint) *store.Checkpoint {
	return cp.Clone()
}
