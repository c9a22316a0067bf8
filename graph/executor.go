package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smallnest/stategraph/log"
	"github.com/smallnest/stategraph/store"
)

// Status is the outcome of a run.
type Status string

const (
	// StatusCompleted means the run reached END or its iteration bound.
	StatusCompleted Status = "completed"
	// StatusSuspended means a node interrupted the run; resume it with the same thread id.
	StatusSuspended Status = "suspended"
	// StatusFailed means a node or the engine reported an error.
	StatusFailed Status = "failed"
)

// RunResult is returned by every run. State is always the state as of the last
// successful step.
type RunResult struct {
	ThreadID string
	Status   Status
	State    State

	// Next is where a resumed run continues. Empty once completed, unless truncated.
	Next []string

	// Step is the number of steps executed on the thread.
	Step      int
	Truncated bool

	// Interrupt is the value attached by the interrupting node.
	Interrupt any

	// Err is set iff Status is StatusFailed.
	Err error
}

// Run executes the graph on threadID.
//
// Without a checkpoint for the thread, the run starts at START with input merged
// into the initial state. With an unfinished checkpoint (suspended or between
// steps) the run resumes where it stopped; a non-nil input is merged first.
// With a completed checkpoint, a nil input returns the stored result and a
// non-nil input starts a new pass from START over the stored state.
//
// The returned error is non-nil iff the run failed; the result is nil only when
// the thread is busy or its checkpoint cannot be loaded.
func (g *Graph) Run(ctx context.Context, threadID string, input State, opts ...Option) (*RunResult, error) {
	if threadID == "" {
		threadID = uuid.NewString()
	}

	release, ok := g.locks.acquire(threadID)
	if !ok {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrThreadBusy)
	}
	defer release()

	e := &execution{
		g:        g,
		cfg:      g.config(opts),
		threadID: threadID,
	}
	e.log = e.cfg.logger

	if res, err := e.prepare(ctx, input); res != nil || err != nil {
		return res, err
	}
	return e.loop(ctx)
}

// execution is the mutable state of one Run call.
type execution struct {
	g        *Graph
	cfg      *runConfig
	log      log.Logger
	threadID string

	state     State
	pending   []int
	step      int
	version   int
	truncated bool
	resumed   State
}

type outcome struct {
	node   int
	result Result
}

// prepare loads the thread and positions the execution. A non-nil result or
// error means the run is already decided.
func (e *execution) prepare(ctx context.Context, input State) (*RunResult, error) {
	schema := e.g.schema
	e.state = schema.Init()

	cp, err := e.cfg.store.Load(ctx, e.threadID)
	if errors.Is(err, store.ErrNotFound) {
		return e.startPass(ctx, input)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint of %q: %w", e.threadID, err)
	}

	state, err := schema.Normalize(cp.State)
	if err != nil {
		return nil, fmt.Errorf("restore checkpoint of %q: %w", e.threadID, err)
	}
	e.state = state
	e.version = cp.Version

	if cp.Finished() {
		if input == nil {
			e.log.Debug("thread %s already completed at step %d", e.threadID, cp.Step)
			return &RunResult{
				ThreadID:  e.threadID,
				Status:    StatusCompleted,
				State:     state,
				Next:      slices.Clone(cp.Next),
				Step:      cp.Step,
				Truncated: cp.Truncated,
			}, nil
		}
		return e.startPass(ctx, input)
	}

	e.step = cp.Step
	for _, id := range cp.Next {
		idx, ok := e.g.index[id]
		if !ok {
			return e.fail(&UnknownNodeError{Node: id})
		}
		e.pending = append(e.pending, idx)
	}
	if input != nil {
		merged, err := schema.Merge(e.state, input)
		if err != nil {
			return e.fail(fmt.Errorf("merge resume input: %w", err))
		}
		e.state = merged
		e.resumed = input.Clone()
	}
	return nil, nil
}

// startPass merges input and resolves the entry edge. A non-nil result means
// the pass failed before its first step.
func (e *execution) startPass(ctx context.Context, input State) (*RunResult, error) {
	if input != nil {
		merged, err := e.g.schema.Merge(e.state, input)
		if err != nil {
			return e.fail(fmt.Errorf("merge input: %w", err))
		}
		e.state = merged
	}
	next, err := e.g.route(ctx, e.g.start, e.state)
	if err != nil {
		return e.fail(err)
	}
	e.pending = union(nil, next)
	return nil, nil
}

func (e *execution) loop(ctx context.Context) (*RunResult, error) {
	e.log.Info("run %s started at step %d: %v", e.threadID, e.step, e.g.names(e.pending))

	first, completed := true, false
	for len(e.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return e.fail(fmt.Errorf("run cancelled: %w", err))
		}
		if limit, hit := e.limitReached(); hit {
			e.log.Warn("run %s truncated at step %d by %s", e.threadID, e.step, limit)
			e.truncated = true
			break
		}

		stepCtx := ctx
		if first && e.resumed != nil {
			stepCtx = withResumeInput(ctx, e.resumed)
		}
		first = false

		stepNo := e.step + 1
		outcomes, err := e.execute(stepCtx, stepNo)
		if err != nil {
			return e.fail(err)
		}

		merged := e.state
		for _, o := range outcomes {
			merged, err = e.g.schema.Merge(merged, o.result.Update)
			if err != nil {
				return e.fail(fmt.Errorf("merge update of node %q: %w", e.g.nodes[o.node].ID, err))
			}
		}

		next, resumeAt, err := e.successors(ctx, outcomes, merged)
		if err != nil {
			return e.fail(err)
		}

		if value, suspended := e.suspension(outcomes); suspended {
			if err := e.save(ctx, merged, stepNo, resumeAt, store.StatusSuspended, value, "interrupt"); err != nil {
				return e.fail(err)
			}
			e.commit(ctx, merged, stepNo, resumeAt, outcomes)
			e.log.Info("run %s suspended after step %d, next %v", e.threadID, e.step, e.g.names(e.pending))
			return &RunResult{
				ThreadID:  e.threadID,
				Status:    StatusSuspended,
				State:     e.state,
				Next:      e.g.names(e.pending),
				Step:      e.step,
				Interrupt: value,
			}, nil
		}

		e.log.Debug("run %s step %d routed to %v", e.threadID, stepNo, e.g.names(next))
		status, source := store.StatusRunning, "loop"
		if len(next) == 0 {
			status, source = store.StatusCompleted, "done"
		}
		if err := e.save(ctx, merged, stepNo, next, status, nil, source); err != nil {
			return e.fail(err)
		}
		e.commit(ctx, merged, stepNo, next, outcomes)
		completed = len(next) == 0
	}

	if !completed {
		if !e.truncated {
			e.pending = nil
		}
		if err := e.save(ctx, e.state, e.step, e.pending, store.StatusCompleted, nil, "done"); err != nil {
			return e.fail(err)
		}
	}
	e.log.Info("run %s completed at step %d", e.threadID, e.step)

	res := &RunResult{
		ThreadID:  e.threadID,
		Status:    StatusCompleted,
		State:     e.state,
		Step:      e.step,
		Truncated: e.truncated,
	}
	if e.truncated {
		res.Next = e.g.names(e.pending)
	}
	return res, nil
}

// commit makes a persisted step the current position of the run.
func (e *execution) commit(ctx context.Context, state State, step int, pending []int, outcomes []outcome) {
	e.state = state
	e.step = step
	e.pending = pending
	e.notify(ctx, outcomes)
}

// execute runs the pending nodes of one step. A single node runs on the calling
// goroutine; several run concurrently and are joined before returning.
// Outcomes are in node declaration order.
func (e *execution) execute(ctx context.Context, step int) ([]outcome, error) {
	slices.Sort(e.pending)
	outcomes := make([]outcome, len(e.pending))

	if len(e.pending) == 1 {
		res, err := e.invoke(ctx, e.pending[0], e.state.Clone(), step)
		if err != nil {
			return nil, err
		}
		outcomes[0] = outcome{node: e.pending[0], result: res}
		return outcomes, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, idx := range e.pending {
		state := e.state.Clone()
		eg.Go(func() error {
			res, err := e.invoke(egCtx, idx, state, step)
			outcomes[i] = outcome{node: idx, result: res}
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *execution) invoke(ctx context.Context, idx int, state State, step int) (Result, error) {
	n := &e.g.nodes[idx]
	ctx = withRunInfo(ctx, &RunInfo{
		ThreadID: e.threadID,
		Step:     step,
		Node:     n.ID,
		Started:  time.Now(),
	})

	ctx = e.start(ctx, n.ID, state)

	call := func() (res Result, err error) {
		attemptCtx := ctx
		if n.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, n.Timeout)
			defer cancel()
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return n.Function(attemptCtx, state)
	}

	var (
		res Result
		err error
	)
	if n.Retry != nil {
		res, err = n.Retry.do(ctx, n.ID, call)
	} else {
		res, err = call()
	}

	if err != nil {
		err = &NodeExecutionError{Node: n.ID, Step: step, Err: err}
		e.emit(ctx, NodeEventError, n.ID, state, err)
		return Result{}, err
	}

	if res.Interrupted() {
		e.emit(ctx, NodeEventInterrupt, n.ID, res.Update, nil)
	} else {
		e.emit(ctx, NodeEventComplete, n.ID, res.Update, nil)
	}
	return res, nil
}

// successors computes the next node set and, for a suspension, the set to resume at.
func (e *execution) successors(ctx context.Context, outcomes []outcome, state State) (next, resumeAt []int, err error) {
	for _, o := range outcomes {
		n := &e.g.nodes[o.node]
		succ, err := e.g.route(ctx, n.out, state)
		if err != nil {
			return nil, nil, err
		}
		next = union(next, succ)
		if o.result.Interrupted() && n.Reentrant {
			resumeAt = union(resumeAt, []int{o.node})
		} else {
			resumeAt = union(resumeAt, succ)
		}
	}
	return next, resumeAt, nil
}

// suspension reports whether the step must suspend the run and with which value.
func (e *execution) suspension(outcomes []outcome) (any, bool) {
	for _, o := range outcomes {
		if o.result.Interrupted() {
			return o.result.Value(), true
		}
	}
	for _, o := range outcomes {
		if e.cfg.interruptAfter[e.g.nodes[o.node].ID] {
			return nil, true
		}
	}
	return nil, false
}

func (e *execution) limitReached() (string, bool) {
	if e.step >= e.cfg.maxSteps {
		return fmt.Sprintf("max steps (%d)", e.cfg.maxSteps), true
	}
	for _, l := range e.cfg.cycleLimits {
		if l.Counter != nil && l.Counter(e.state) >= l.Max {
			return fmt.Sprintf("cycle limit %q (%d)", l.Name, l.Max), true
		}
	}
	return "", false
}

// save persists a step. A step that finished is saved even when ctx was
// cancelled while it ran; cancellation is observed before the next step.
func (e *execution) save(ctx context.Context, state State, step int, pending []int, status store.Status, interrupt any, source string) error {
	md := make(map[string]any, len(e.cfg.metadata)+1)
	maps.Copy(md, e.cfg.metadata)
	md["source"] = source

	cp := &store.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  e.threadID,
		State:     map[string]any(state),
		Next:      e.g.names(pending),
		Step:      step,
		Status:    status,
		Truncated: e.truncated,
		Interrupt: interrupt,
		Version:   e.version + 1,
		Metadata:  md,
		CreatedAt: time.Now(),
	}
	if err := e.cfg.store.Save(context.WithoutCancel(ctx), cp); err != nil {
		return fmt.Errorf("save checkpoint of %q: %w", e.threadID, err)
	}
	e.version = cp.Version
	return nil
}

func (e *execution) fail(err error) (*RunResult, error) {
	e.log.Error("run %s failed after step %d: %v", e.threadID, e.step, err)
	return &RunResult{
		ThreadID: e.threadID,
		Status:   StatusFailed,
		State:    e.state,
		Next:     e.g.names(e.pending),
		Step:     e.step,
		Err:      err,
	}, err
}

func (e *execution) emit(ctx context.Context, event NodeEvent, node string, state State, err error) {
	for _, l := range e.cfg.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Warn("listener panicked on %s/%s: %v", node, event, r)
				}
			}()
			l.OnNodeEvent(ctx, event, node, state, err)
		}()
	}
}

// start delivers NodeEventStart and returns the context derived by
// NodeContextListeners.
func (e *execution) start(ctx context.Context, node string, state State) context.Context {
	for _, l := range e.cfg.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Warn("listener panicked on %s/%s: %v", node, NodeEventStart, r)
				}
			}()
			if cl, ok := l.(NodeContextListener); ok {
				if derived := cl.StartNode(ctx, node, state); derived != nil {
					ctx = derived
				}
				return
			}
			l.OnNodeEvent(ctx, NodeEventStart, node, state, nil)
		}()
	}
	return ctx
}

func (e *execution) notify(ctx context.Context, outcomes []outcome) {
	if len(e.cfg.observers) == 0 {
		return
	}
	for _, o := range outcomes {
		ev := StepEvent{
			ThreadID:    e.threadID,
			Step:        e.step,
			Node:        e.g.nodes[o.node].ID,
			Update:      o.result.Update.Clone(),
			State:       e.state.Clone(),
			Interrupted: o.result.Interrupted(),
			Timestamp:   time.Now(),
		}
		for _, obs := range e.cfg.observers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						e.log.Warn("observer panicked on step %d: %v", ev.Step, r)
					}
				}()
				obs(ctx, ev)
			}()
		}
	}
}

// route resolves the successors of an edge set for state. END is returned as endIndex.
func (g *Graph) route(ctx context.Context, es edgeSet, state State) (next []int, err error) {
	if es.router == nil {
		return es.fixed, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("router of %q panicked: %v", es.from, r)
		}
	}()
	target := es.router(ctx, state.Clone())
	idx, ok := es.targets[target]
	if !ok {
		return nil, &RouteError{From: es.from, Target: target, Allowed: slices.Clone(es.allowed)}
	}
	return []int{idx}, nil
}

func (g *Graph) names(indices []int) []string {
	out := make([]string, 0, len(indices))
	for _, i := range indices {
		if i == endIndex {
			continue
		}
		out = append(out, g.nodes[i].ID)
	}
	return out
}

// union appends the node indices of add missing from set, skipping END.
func union(set, add []int) []int {
	for _, i := range add {
		if i == endIndex || slices.Contains(set, i) {
			continue
		}
		set = append(set, i)
	}
	return set
}

type threadLocks struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newThreadLocks() *threadLocks {
	return &threadLocks{busy: make(map[string]struct{})}
}

func (l *threadLocks) acquire(threadID string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, running := l.busy[threadID]; running {
		return nil, false
	}
	l.busy[threadID] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.busy, threadID)
		l.mu.Unlock()
	}, true
}
