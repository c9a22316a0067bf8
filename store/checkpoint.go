package store

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"time"
)

// ErrNotFound is returned by Load when no checkpoint exists for a thread.
// Callers treat it as "start a fresh run".
var ErrNotFound = errors.New("checkpoint not found")

// Status is the lifecycle position of a run at the time its checkpoint was written.
type Status string

const (
	// StatusRunning marks a checkpoint written between two steps.
	StatusRunning Status = "running"
	// StatusSuspended marks a run paused by an interrupt.
	StatusSuspended Status = "suspended"
	// StatusCompleted marks a run that reached END or its iteration bound.
	StatusCompleted Status = "completed"
)

// Checkpoint is the durable snapshot of one thread.
// There is exactly one current checkpoint per thread id; saving replaces it.
type Checkpoint struct {
	ID       string         `json:"id"`
	ThreadID string         `json:"thread_id"`
	State    map[string]any `json:"state"`

	// Next holds the node(s) the run continues with. Empty once the run finished.
	Next []string `json:"next"`

	// Step is the number of steps executed on this thread so far.
	Step      int    `json:"step"`
	Status    Status `json:"status"`
	Truncated bool   `json:"truncated,omitempty"`

	// Interrupt is the value a node attached to its interrupt request, if any.
	Interrupt any `json:"interrupt,omitempty"`

	// Version increases by one on every save for the same thread.
	Version   int            `json:"version"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Finished reports whether the checkpoint describes a completed run.
// A suspended checkpoint with an empty Next is not finished: resuming it completes the run.
func (c *Checkpoint) Finished() bool {
	return c.Status == StatusCompleted
}

// Clone returns a deep copy of the checkpoint. Nested maps and slices in State,
// Metadata and Interrupt are copied so the clone shares no containers with c.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.State = cloneMap(c.State)
	out.Metadata = cloneMap(c.Metadata)
	out.Interrupt = cloneValue(c.Interrupt)
	out.Next = slices.Clone(c.Next)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		return cloneMap(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := range rv.Len() {
			setClone(out.Index(i), rv.Index(i))
		}
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elem := reflect.New(rv.Type().Elem()).Elem()
			setClone(elem, iter.Value())
			out.SetMapIndex(iter.Key(), elem)
		}
		return out.Interface()
	}
	return v
}

func setClone(dst, src reflect.Value) {
	if src.Kind() == reflect.Interface && src.IsNil() {
		return
	}
	dst.Set(reflect.ValueOf(cloneValue(src.Interface())))
}

// CheckpointStore persists the current checkpoint of each thread.
//
// Implementations must be safe for concurrent use by runs on distinct thread ids.
// Concurrent writers to the same thread id are not supported; the executor
// serializes runs per thread.
type CheckpointStore interface {
	// Save overwrites the checkpoint stored for checkpoint.ThreadID.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load returns the checkpoint of a thread, or ErrNotFound.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Delete removes the checkpoint of a thread. Deleting a missing thread is not an error.
	Delete(ctx context.Context, threadID string) error

	// List returns the ids of all threads that have a checkpoint.
	List(ctx context.Context) ([]string, error)
}
