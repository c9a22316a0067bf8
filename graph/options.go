package graph

import (
	"context"
	"maps"

	"github.com/smallnest/stategraph/log"
	"github.com/smallnest/stategraph/store"
)

// DefaultMaxSteps bounds a run when WithMaxSteps is not given.
const DefaultMaxSteps = 25

// Observer is called once per executed node per step with the state after the
// step's updates were merged. It receives a copy and cannot alter the run.
type Observer func(ctx context.Context, event StepEvent)

// CycleLimit truncates a run once Counter(state) reaches Max.
type CycleLimit struct {
	Name    string
	Counter func(State) int
	Max     int
}

// Option configures a run. Options passed to Compile act as the defaults for
// every run; options passed to Run override them.
type Option func(*runConfig)

type runConfig struct {
	store          store.CheckpointStore
	maxSteps       int
	cycleLimits    []CycleLimit
	interruptAfter map[string]bool
	observers      []Observer
	listeners      []NodeListener
	logger         log.Logger
	metadata       map[string]any
}

// WithCheckpointStore persists checkpoints in s. Without it a graph keeps
// checkpoints in an in-memory store owned by the compiled graph.
func WithCheckpointStore(s store.CheckpointStore) Option {
	return func(c *runConfig) {
		c.store = s
	}
}

// WithMaxSteps bounds the number of steps of a run. A run reaching the bound
// completes with Truncated set.
func WithMaxSteps(n int) Option {
	return func(c *runConfig) {
		c.maxSteps = n
	}
}

// WithCycleLimit truncates a run once counter(state) >= max, evaluated before
// every step. name identifies the limit in logs.
func WithCycleLimit(name string, counter func(State) int, max int) Option {
	return func(c *runConfig) {
		c.cycleLimits = append(c.cycleLimits, CycleLimit{Name: name, Counter: counter, Max: max})
	}
}

// WithInterruptAfter suspends the run after any of nodes has executed.
func WithInterruptAfter(nodes ...string) Option {
	return func(c *runConfig) {
		if c.interruptAfter == nil {
			c.interruptAfter = make(map[string]bool, len(nodes))
		}
		for _, n := range nodes {
			c.interruptAfter[n] = true
		}
	}
}

// WithObserver registers a step observer.
func WithObserver(fn Observer) Option {
	return func(c *runConfig) {
		c.observers = append(c.observers, fn)
	}
}

// WithListener registers a node event listener.
func WithListener(l NodeListener) Option {
	return func(c *runConfig) {
		c.listeners = append(c.listeners, l)
	}
}

// WithLogger sets the logger of the executor. Defaults to the package-level logger.
func WithLogger(l log.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithMetadata attaches metadata to every checkpoint written by the run.
func WithMetadata(md map[string]any) Option {
	return func(c *runConfig) {
		if c.metadata == nil {
			c.metadata = make(map[string]any, len(md))
		}
		maps.Copy(c.metadata, md)
	}
}

func (g *Graph) config(opts []Option) *runConfig {
	cfg := &runConfig{
		store:    g.store,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range g.defaults {
		opt(cfg)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.GetDefaultLogger()
	}
	if cfg.maxSteps <= 0 {
		cfg.maxSteps = DefaultMaxSteps
	}
	return cfg
}
