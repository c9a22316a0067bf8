package graph

import (
	"context"
	"time"
)

// RunInfo describes the node invocation a context belongs to.
type RunInfo struct {
	ThreadID string
	Step     int
	Node     string
	Started  time.Time
}

type runInfoKey struct{}

type resumeInputKey struct{}

func withRunInfo(ctx context.Context, info *RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFromContext returns the invocation details passed to nodes and listeners.
func RunInfoFromContext(ctx context.Context) (*RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(*RunInfo)
	return info, ok
}

func withResumeInput(ctx context.Context, input State) context.Context {
	return context.WithValue(ctx, resumeInputKey{}, input)
}

// ResumeInput returns the input a suspended run was resumed with. It is only set
// for the first step after the resume, and nil otherwise.
func ResumeInput(ctx context.Context) State {
	input, _ := ctx.Value(resumeInputKey{}).(State)
	return input
}
