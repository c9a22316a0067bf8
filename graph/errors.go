package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEntry is returned by Compile when START has no outgoing edge.
	ErrNoEntry = errors.New("entry point not set")

	// ErrThreadBusy is returned by Run when another run on the same thread id is in progress.
	ErrThreadBusy = errors.New("thread is already running")

	// ErrNoSchema is returned by Compile when the graph was built without a state schema.
	ErrNoSchema = errors.New("state schema is required")
)

// CompileError collects every topology problem found while compiling a graph.
// errors.As and errors.Is reach each individual cause.
type CompileError struct {
	Errs []error
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "compile graph: " + strings.Join(msgs, "; ")
}

func (e *CompileError) Unwrap() []error {
	return e.Errs
}

// DuplicateNodeError is returned when a node id is registered twice.
type DuplicateNodeError struct {
	Node string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node %q", e.Node)
}

// UnknownNodeError is returned when an id does not name a registered node.
type UnknownNodeError struct {
	Node string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.Node)
}

// InvalidNodeError is returned when a node id is empty or reserved.
type InvalidNodeError struct {
	Node   string
	Reason string
}

func (e *InvalidNodeError) Error() string {
	return fmt.Sprintf("invalid node %q: %s", e.Node, e.Reason)
}

// AmbiguousEdgeError is returned when a source has both fixed and conditional edges,
// or more than one conditional edge.
type AmbiguousEdgeError struct {
	Node string
}

func (e *AmbiguousEdgeError) Error() string {
	return fmt.Sprintf("node %q has more than one outgoing edge kind", e.Node)
}

// DanglingEdgeError is returned when an edge points at an undeclared node.
type DanglingEdgeError struct {
	From        string
	To          string
	Conditional bool
}

func (e *DanglingEdgeError) Error() string {
	if e.Conditional {
		return fmt.Sprintf("conditional edge %s -> %s targets an undeclared node", e.From, e.To)
	}
	return fmt.Sprintf("edge %s -> %s targets an undeclared node", e.From, e.To)
}

func (e *DanglingEdgeError) Unwrap() error {
	return &UnknownNodeError{Node: e.To}
}

// UnreachableNodeError is returned when a declared node cannot be reached from START.
type UnreachableNodeError struct {
	Node string
}

func (e *UnreachableNodeError) Error() string {
	return fmt.Sprintf("node %q is unreachable from %s", e.Node, START)
}

// DeadEndError is returned when a declared node has no outgoing edge.
type DeadEndError struct {
	Node string
}

func (e *DeadEndError) Error() string {
	return fmt.Sprintf("node %q has no outgoing edge", e.Node)
}

// UnknownKeyError is returned when an update writes a key the schema does not declare.
type UnknownKeyError struct {
	Key string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown state key %q", e.Key)
}

// MergeTypeError is returned when an update value is incompatible with its key's
// kind or merge strategy.
type MergeTypeError struct {
	Key      string
	Kind     Kind
	Strategy Strategy
	Value    any
}

func (e *MergeTypeError) Error() string {
	return fmt.Sprintf("state key %q (%s, %s): incompatible value of type %T", e.Key, e.Kind, e.Strategy, e.Value)
}

// NodeExecutionError wraps an error returned (or a panic raised) by a node.
type NodeExecutionError struct {
	Node string
	Step int
	Err  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q failed at step %d: %v", e.Node, e.Step, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// RouteError is returned when a router picks a target it did not declare.
type RouteError struct {
	From    string
	Target  string
	Allowed []string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("router of %q returned %q, want one of [%s]", e.From, e.Target, strings.Join(e.Allowed, ", "))
}
