package graph

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/stategraph/store"
)

// Checkpoint is an alias for store.Checkpoint
type Checkpoint = store.Checkpoint

// CheckpointStore is an alias for store.CheckpointStore
type CheckpointStore = store.CheckpointStore

// CheckpointStore returns the store runs use when no WithCheckpointStore option
// is given, honoring options passed to Compile.
func (g *Graph) CheckpointStore() store.CheckpointStore {
	return g.config(nil).store
}

// GetState returns the stored checkpoint of threadID with its state normalized
// to the schema. It returns store.ErrNotFound for unknown threads.
func (g *Graph) GetState(ctx context.Context, threadID string, opts ...Option) (*Checkpoint, error) {
	cfg := g.config(opts)

	cp, err := cfg.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	state, err := g.schema.Normalize(cp.State)
	if err != nil {
		return nil, fmt.Errorf("restore checkpoint of %q: %w", threadID, err)
	}
	cp.State = state
	return cp, nil
}

// UpdateState merges update into the stored state of threadID without running
// any node, as if asNode had returned it. The next node pointer is unchanged.
// asNode is recorded in the checkpoint metadata and may be empty.
func (g *Graph) UpdateState(ctx context.Context, threadID string, update State, asNode string, opts ...Option) (*Checkpoint, error) {
	if asNode != "" {
		if _, ok := g.index[asNode]; !ok {
			return nil, &UnknownNodeError{Node: asNode}
		}
	}

	release, ok := g.locks.acquire(threadID)
	if !ok {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrThreadBusy)
	}
	defer release()

	cfg := g.config(opts)
	cp, err := g.GetState(ctx, threadID, opts...)
	if err != nil {
		return nil, err
	}

	merged, err := g.schema.Merge(cp.State, update)
	if err != nil {
		return nil, fmt.Errorf("update state of %q: %w", threadID, err)
	}

	md := make(map[string]any, len(cp.Metadata)+2)
	maps.Copy(md, cp.Metadata)
	md["source"] = "update"
	if asNode != "" {
		md["as_node"] = asNode
	}

	next := &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		State:     map[string]any(merged),
		Next:      cp.Next,
		Step:      cp.Step,
		Status:    cp.Status,
		Truncated: cp.Truncated,
		Interrupt: cp.Interrupt,
		Version:   cp.Version + 1,
		Metadata:  md,
		CreatedAt: time.Now(),
	}
	if err := cfg.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save checkpoint of %q: %w", threadID, err)
	}
	return next, nil
}

// DeleteState removes the checkpoint of threadID. The next run on it starts fresh.
func (g *Graph) DeleteState(ctx context.Context, threadID string, opts ...Option) error {
	release, ok := g.locks.acquire(threadID)
	if !ok {
		return fmt.Errorf("thread %q: %w", threadID, ErrThreadBusy)
	}
	defer release()

	return g.config(opts).store.Delete(ctx, threadID)
}

// Threads lists the thread ids with a stored checkpoint.
func (g *Graph) Threads(ctx context.Context, opts ...Option) ([]string, error) {
	return g.config(opts).store.List(ctx)
}
