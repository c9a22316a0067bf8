package graph

import (
	"context"
	"slices"
	"time"
)

// StepEvent is delivered to observers once per executed node per step.
type StepEvent struct {
	ThreadID string
	Step     int
	Node     string

	// Update is the partial state the node returned.
	Update State

	// State is the state after every update of the step was merged.
	State State

	Interrupted bool
	Timestamp   time.Time
}

// DefaultStreamBuffer is the capacity of the Events channel of Stream.
const DefaultStreamBuffer = 64

// StreamResult contains the channels returned by streaming execution
type StreamResult struct {
	// Events receives a StepEvent per executed node. It is closed when the run ends.
	Events <-chan StepEvent

	// Result receives the final result once Events is closed.
	Result <-chan *RunResult

	// Done is closed when streaming is complete
	Done <-chan struct{}

	// Cancel stops the run between steps.
	Cancel context.CancelFunc
}

// Stream runs the graph like Run and delivers step events on a channel.
// A slow consumer slows the run down; cancelling ctx or calling Cancel unblocks it.
// When the run cannot start (busy thread, unreadable checkpoint) Result carries a
// failed RunResult holding the error.
func (g *Graph) Stream(ctx context.Context, threadID string, input State, opts ...Option) *StreamResult {
	ctx, cancel := context.WithCancel(ctx)

	events := make(chan StepEvent, DefaultStreamBuffer)
	result := make(chan *RunResult, 1)
	done := make(chan struct{})

	forward := WithObserver(func(ctx context.Context, ev StepEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})

	go func() {
		defer close(done)
		defer cancel()

		res, err := g.Run(ctx, threadID, input, append(slices.Clip(opts), forward)...)
		if res == nil {
			res = &RunResult{ThreadID: threadID, Status: StatusFailed, Err: err}
		}
		close(events)
		result <- res
		close(result)
	}()

	return &StreamResult{
		Events: events,
		Result: result,
		Done:   done,
		Cancel: cancel,
	}
}
