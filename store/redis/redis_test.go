package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/smallnest/stategraph/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*RedisCheckpointStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s := NewRedisCheckpointStore(RedisOptions{
		Addr: mr.Addr(),
		TTL:  ttl,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisCheckpointStore(t *testing.T) {
	s, mr := newTestStore(t, 0)
	ctx := context.Background()

	cp := &store.Checkpoint{
		ID:        "cp-1",
		ThreadID:  "essay-1",
		State:     map[string]any{"foo": "bar"},
		Next:      []string{"execute_tools"},
		Step:      1,
		Status:    store.StatusRunning,
		Version:   1,
		CreatedAt: time.Now(),
	}

	// Test Save
	err := s.Save(ctx, cp)
	assert.NoError(t, err)
	assert.True(t, mr.Exists("stategraph:checkpoint:essay-1"))

	// Test Load
	loaded, err := s.Load(ctx, "essay-1")
	assert.NoError(t, err)
	assert.Equal(t, cp.ID, loaded.ID)
	assert.Equal(t, cp.Next, loaded.Next)
	assert.Equal(t, "bar", loaded.State["foo"])

	// Overwrite keeps a single snapshot per thread
	cp.Version = 2
	cp.Step = 2
	assert.NoError(t, s.Save(ctx, cp))
	loaded, err = s.Load(ctx, "essay-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)

	// Test List
	assert.NoError(t, s.Save(ctx, &store.Checkpoint{ThreadID: "essay-0"}))
	ids, err := s.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"essay-0", "essay-1"}, ids)

	// Test Delete
	assert.NoError(t, s.Delete(ctx, "essay-1"))
	_, err = s.Load(ctx, "essay-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ids, err = s.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"essay-0"}, ids)
}

func TestRedisCheckpointStore_LoadMissing(t *testing.T) {
	s, _ := newTestStore(t, 0)

	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisCheckpointStore_TTL(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &store.Checkpoint{ThreadID: "short-lived"}))
	assert.Equal(t, time.Minute, mr.TTL("stategraph:checkpoint:short-lived"))

	mr.FastForward(2 * time.Minute)

	_, err := s.Load(ctx, "short-lived")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ids, err := s.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, ids)

	members, err := mr.SMembers("stategraph:threads")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestRedisCheckpointStore_Prefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := NewRedisCheckpointStore(RedisOptions{Addr: mr.Addr(), Prefix: "reflexion:"})
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), &store.Checkpoint{ThreadID: "t1"}))
	assert.True(t, mr.Exists("reflexion:checkpoint:t1"))
}
