package graph

import (
	"context"
	"slices"
)

// Router picks the next node from the state. It should be a pure function of
// state; it must return one of the targets declared with its conditional edge.
type Router func(ctx context.Context, state State) string

// Edge is a fixed connection between two nodes.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes from a node to one of a declared set of targets.
type ConditionalEdge struct {
	From    string
	Router  Router
	Targets []string
}

// EdgeTable holds the outgoing edges of every source node.
type EdgeTable struct {
	fixed       map[string][]string
	conditional map[string][]*ConditionalEdge
	sources     []string
}

// NewEdgeTable creates an empty edge table.
func NewEdgeTable() *EdgeTable {
	return &EdgeTable{
		fixed:       make(map[string][]string),
		conditional: make(map[string][]*ConditionalEdge),
	}
}

func (t *EdgeTable) addSource(from string) {
	if _, ok := t.fixed[from]; ok {
		return
	}
	if _, ok := t.conditional[from]; ok {
		return
	}
	t.sources = append(t.sources, from)
}

// AddFixed adds a fixed edge. Several fixed edges from one source fan out.
// Adding the same edge twice has no effect.
func (t *EdgeTable) AddFixed(from, to string) {
	t.addSource(from)
	if slices.Contains(t.fixed[from], to) {
		return
	}
	t.fixed[from] = append(t.fixed[from], to)
}

// AddConditional adds a conditional edge whose router may return any of targets.
func (t *EdgeTable) AddConditional(from string, router Router, targets ...string) {
	t.addSource(from)
	t.conditional[from] = append(t.conditional[from], &ConditionalEdge{
		From:    from,
		Router:  router,
		Targets: dedup(targets),
	})
}

// Sources returns every node with an outgoing edge, in the order edges were added.
func (t *EdgeTable) Sources() []string {
	return slices.Clone(t.sources)
}

// Fixed returns the fixed targets of from in declaration order.
func (t *EdgeTable) Fixed(from string) []string {
	return slices.Clone(t.fixed[from])
}

// Conditional returns the conditional edge of from, if it has exactly one.
func (t *EdgeTable) Conditional(from string) (*ConditionalEdge, bool) {
	edges := t.conditional[from]
	if len(edges) != 1 {
		return nil, false
	}
	return edges[0], true
}

// HasOutgoing reports whether from has any edge.
func (t *EdgeTable) HasOutgoing(from string) bool {
	return len(t.fixed[from]) > 0 || len(t.conditional[from]) > 0
}

// Ambiguous reports whether from has more than one outgoing edge kind.
func (t *EdgeTable) Ambiguous(from string) bool {
	conds := len(t.conditional[from])
	return conds > 1 || (conds == 1 && len(t.fixed[from]) > 0)
}

// Targets returns every node from may move to, fixed and declared conditional.
func (t *EdgeTable) Targets(from string) []string {
	out := slices.Clone(t.fixed[from])
	for _, c := range t.conditional[from] {
		for _, target := range c.Targets {
			if !slices.Contains(out, target) {
				out = append(out, target)
			}
		}
	}
	return out
}

// Next returns the successors of from for state. Fixed edges yield their targets
// in declaration order; a conditional edge yields the router's pick.
func (t *EdgeTable) Next(ctx context.Context, from string, state State) ([]string, error) {
	if t.Ambiguous(from) {
		return nil, &AmbiguousEdgeError{Node: from}
	}
	if c, ok := t.Conditional(from); ok {
		target := c.Router(ctx, state)
		if !slices.Contains(c.Targets, target) {
			return nil, &RouteError{From: from, Target: target, Allowed: slices.Clone(c.Targets)}
		}
		return []string{target}, nil
	}
	if fixed := t.fixed[from]; len(fixed) > 0 {
		return slices.Clone(fixed), nil
	}
	return nil, &DeadEndError{Node: from}
}

// dedup returns ids without repeats, keeping first occurrences in order.
func dedup(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
