package graph

import (
	"context"
	"time"

	"github.com/smallnest/stategraph/log"
)

// NodeEvent represents different types of node events
type NodeEvent string

const (
	// NodeEventStart indicates a node has started execution
	NodeEventStart NodeEvent = "start"

	// NodeEventComplete indicates a node has completed successfully
	NodeEventComplete NodeEvent = "complete"

	// NodeEventInterrupt indicates a node completed and requested a suspension
	NodeEventInterrupt NodeEvent = "interrupt"

	// NodeEventError indicates a node encountered an error
	NodeEventError NodeEvent = "error"
)

// NodeListener defines the interface for node event listeners.
//
// For NodeEventStart and NodeEventError, state is the node's input; for
// NodeEventComplete and NodeEventInterrupt it is the update the node returned.
// RunInfoFromContext(ctx) describes the invocation.
type NodeListener interface {
	OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state State, err error)
}

// NodeContextListener is a NodeListener that also derives the context the node
// runs with. The executor calls StartNode instead of OnNodeEvent for
// NodeEventStart; later events of the invocation receive the derived context.
type NodeContextListener interface {
	NodeListener
	StartNode(ctx context.Context, nodeName string, state State) context.Context
}

// NodeListenerFunc is a function adapter for NodeListener
type NodeListenerFunc func(ctx context.Context, event NodeEvent, nodeName string, state State, err error)

// OnNodeEvent implements the NodeListener interface
func (f NodeListenerFunc) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state State, err error) {
	f(ctx, event, nodeName, state, err)
}

// LoggingListener logs node events
type LoggingListener struct {
	logger       log.Logger
	includeState bool
}

// NewLoggingListener creates a listener writing to logger. A nil logger uses the
// package-level logger.
func NewLoggingListener(logger log.Logger) *LoggingListener {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &LoggingListener{logger: logger}
}

// WithState makes the listener include node states in its messages.
func (l *LoggingListener) WithState(enabled bool) *LoggingListener {
	l.includeState = enabled
	return l
}

// OnNodeEvent implements the NodeListener interface
func (l *LoggingListener) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state State, err error) {
	prefix := nodeName
	var elapsed time.Duration
	if info, ok := RunInfoFromContext(ctx); ok {
		prefix = info.ThreadID + "/" + nodeName
		elapsed = time.Since(info.Started)
	}

	switch event {
	case NodeEventStart:
		if l.includeState {
			l.logger.Debug("%s started, state: %v", prefix, state)
		} else {
			l.logger.Debug("%s started", prefix)
		}
	case NodeEventComplete:
		if l.includeState {
			l.logger.Info("%s completed in %v, update: %v", prefix, elapsed, state)
		} else {
			l.logger.Info("%s completed in %v", prefix, elapsed)
		}
	case NodeEventInterrupt:
		l.logger.Info("%s interrupted the run after %v", prefix, elapsed)
	case NodeEventError:
		l.logger.Error("%s failed after %v: %v", prefix, elapsed, err)
	}
}
