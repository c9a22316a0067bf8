package graph

import (
	"context"
	"time"
)

// START is the virtual node every run begins at.
const START = "START"

// END is a special constant used to represent the end node in the graph.
const END = "END"

// NodeFunc is the function a node executes. It receives a read-only view of the
// current state and returns a Result, or an error to fail the run.
type NodeFunc func(ctx context.Context, state State) (Result, error)

// Result is what a node hands back to the executor: a partial state update,
// optionally flagged as an interrupt request.
type Result struct {
	Update State

	interrupt bool
	value     any
}

// Continue returns a Result that merges update and moves on to the next node.
func Continue(update State) Result {
	return Result{Update: update}
}

// Interrupt returns a Result that merges update and suspends the run.
// value is handed to the caller, for example a question for a human reviewer.
func Interrupt(update State, value any) Result {
	return Result{Update: update, interrupt: true, value: value}
}

// Interrupted reports whether the node requested a suspension.
func (r Result) Interrupted() bool {
	return r.interrupt
}

// Value returns the value attached to an interrupt request.
func (r Result) Value() any {
	return r.value
}

// UpdateFunc adapts a function returning a plain update into a NodeFunc.
func UpdateFunc(fn func(ctx context.Context, state State) (State, error)) NodeFunc {
	return func(ctx context.Context, state State) (Result, error) {
		update, err := fn(ctx, state)
		if err != nil {
			return Result{}, err
		}
		return Continue(update), nil
	}
}

// Node is a registered unit of work.
type Node struct {
	ID          string
	Description string
	Function    NodeFunc

	// Reentrant nodes are executed again when a run they interrupted is resumed.
	Reentrant bool
	Retry     *RetryPolicy
	Timeout   time.Duration
}

// NodeOption configures a Node at registration.
type NodeOption func(*Node)

// WithDescription sets a human readable description used by visualization.
func WithDescription(description string) NodeOption {
	return func(n *Node) {
		n.Description = description
	}
}

// Reentrant marks the node as re-entered on resume after it interrupted.
func Reentrant() NodeOption {
	return func(n *Node) {
		n.Reentrant = true
	}
}

// WithRetry retries the node according to policy when it returns an error.
func WithRetry(policy RetryPolicy) NodeOption {
	return func(n *Node) {
		n.Retry = &policy
	}
}

// WithTimeout bounds a single attempt of the node.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *Node) {
		n.Timeout = d
	}
}
