package graph

import (
	"slices"

	"github.com/smallnest/stategraph/store"
	"github.com/smallnest/stategraph/store/memory"
)

// StateGraph is the builder for a graph: a schema, registered nodes and the
// edges between them. Compile freezes it into a runnable Graph.
type StateGraph struct {
	schema   *Schema
	registry *Registry
	edges    *EdgeTable
	errs     []error
}

// NewStateGraph creates a builder over schema.
func NewStateGraph(schema *Schema) *StateGraph {
	return &StateGraph{
		schema:   schema,
		registry: NewRegistry(),
		edges:    NewEdgeTable(),
	}
}

// AddNode registers a node. Registration errors are reported by Compile.
func (g *StateGraph) AddNode(id string, fn NodeFunc, opts ...NodeOption) *StateGraph {
	if err := g.registry.Register(id, fn, opts...); err != nil {
		g.errs = append(g.errs, err)
	}
	return g
}

// AddEdge adds a fixed edge between the "from" and "to" nodes.
// Several edges from the same node make its successors run concurrently.
func (g *StateGraph) AddEdge(from, to string) *StateGraph {
	g.edges.AddFixed(from, to)
	return g
}

// AddConditionalEdge adds an edge whose target is chosen at runtime by router.
// targets lists every value router may return, END included when it can finish the run.
func (g *StateGraph) AddConditionalEdge(from string, router Router, targets ...string) *StateGraph {
	g.edges.AddConditional(from, router, targets...)
	return g
}

// SetEntryPoint adds the edge START -> name.
func (g *StateGraph) SetEntryPoint(name string) *StateGraph {
	return g.AddEdge(START, name)
}

// Schema returns the state schema of the graph.
func (g *StateGraph) Schema() *Schema {
	return g.schema
}

// Compile validates the topology and returns an immutable Graph. Every problem
// found is reported in a single *CompileError. opts become the defaults of
// every run of the compiled graph.
func (g *StateGraph) Compile(opts ...Option) (*Graph, error) {
	errs := slices.Clone(g.errs)
	if g.schema == nil {
		errs = append(errs, ErrNoSchema)
	} else if err := g.schema.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, g.validate()...)
	if len(errs) > 0 {
		return nil, &CompileError{Errs: errs}
	}

	ids := g.registry.IDs()
	c := &Graph{
		schema:   g.schema,
		nodes:    make([]compiledNode, len(ids)),
		index:    make(map[string]int, len(ids)),
		defaults: opts,
		store:    memory.NewMemoryCheckpointStore(),
		locks:    newThreadLocks(),
	}
	for i, id := range ids {
		c.index[id] = i
	}

	resolve := func(targets []string) []int {
		out := make([]int, len(targets))
		for i, t := range targets {
			out[i] = c.indexOf(t)
		}
		return out
	}
	compileEdges := func(from string) edgeSet {
		if cond, ok := g.edges.Conditional(from); ok {
			targets := make(map[string]int, len(cond.Targets))
			for _, t := range cond.Targets {
				targets[t] = c.indexOf(t)
			}
			return edgeSet{
				from:    from,
				router:  cond.Router,
				targets: targets,
				allowed: slices.Clone(cond.Targets),
			}
		}
		return edgeSet{from: from, fixed: resolve(g.edges.Fixed(from))}
	}

	c.start = compileEdges(START)
	for i, id := range ids {
		n, _ := g.registry.Resolve(id)
		c.nodes[i] = compiledNode{Node: *n, index: i, out: compileEdges(id)}
	}
	return c, nil
}

func (g *StateGraph) validate() []error {
	var errs []error

	if !g.edges.HasOutgoing(START) {
		errs = append(errs, ErrNoEntry)
	}

	declared := func(id string) bool {
		return id == END || g.registry.Has(id)
	}

	for _, from := range g.edges.Sources() {
		switch {
		case from == END:
			errs = append(errs, &InvalidNodeError{Node: END, Reason: "edges cannot leave END"})
			continue
		case from != START && !g.registry.Has(from):
			errs = append(errs, &UnknownNodeError{Node: from})
		}
		if g.edges.Ambiguous(from) {
			errs = append(errs, &AmbiguousEdgeError{Node: from})
		}
		for _, to := range g.edges.Fixed(from) {
			if to == START || !declared(to) {
				errs = append(errs, &DanglingEdgeError{From: from, To: to})
			}
		}
		for _, c := range g.edges.conditional[from] {
			if c.Router == nil {
				errs = append(errs, &InvalidNodeError{Node: from, Reason: "conditional edge without router"})
			}
			if len(c.Targets) == 0 {
				errs = append(errs, &InvalidNodeError{Node: from, Reason: "conditional edge declares no targets"})
			}
			for _, to := range c.Targets {
				if to == START || !declared(to) {
					errs = append(errs, &DanglingEdgeError{From: from, To: to, Conditional: true})
				}
			}
		}
	}

	reached := map[string]bool{START: true}
	queue := []string{START}
	for len(queue) > 0 {
		from := queue[0]
		queue = queue[1:]
		for _, to := range g.edges.Targets(from) {
			if !reached[to] {
				reached[to] = true
				queue = append(queue, to)
			}
		}
	}

	for _, id := range g.registry.IDs() {
		if !g.edges.HasOutgoing(id) {
			errs = append(errs, &DeadEndError{Node: id})
		}
		if !reached[id] {
			errs = append(errs, &UnreachableNodeError{Node: id})
		}
	}
	return errs
}

// endIndex marks END in compiled edge sets.
const endIndex = -1

// edgeSet is the compiled outgoing edge kind of one source.
type edgeSet struct {
	from    string
	fixed   []int
	router  Router
	targets map[string]int
	allowed []string
}

type compiledNode struct {
	Node
	index int
	out   edgeSet
}

// Graph is a compiled, immutable graph. It is safe for concurrent runs on
// distinct thread ids.
type Graph struct {
	schema   *Schema
	nodes    []compiledNode
	index    map[string]int
	start    edgeSet
	defaults []Option
	store    store.CheckpointStore
	locks    *threadLocks
}

func (g *Graph) indexOf(id string) int {
	if id == END {
		return endIndex
	}
	return g.index[id]
}

// Schema returns the state schema of the graph.
func (g *Graph) Schema() *Schema {
	return g.schema
}

// Nodes returns the node ids in declaration order.
func (g *Graph) Nodes() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Node returns the node registered under id, or *UnknownNodeError.
func (g *Graph) Node(id string) (*Node, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, &UnknownNodeError{Node: id}
	}
	n := g.nodes[i].Node
	return &n, nil
}
