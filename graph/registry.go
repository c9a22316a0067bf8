package graph

// Registry maps node ids to nodes, preserving registration order.
type Registry struct {
	nodes map[string]*Node
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

// Register adds a node. It fails with *DuplicateNodeError when id is taken and
// with *InvalidNodeError for empty or reserved ids.
func (r *Registry) Register(id string, fn NodeFunc, opts ...NodeOption) error {
	switch id {
	case "":
		return &InvalidNodeError{Node: id, Reason: "empty id"}
	case START, END:
		return &InvalidNodeError{Node: id, Reason: "reserved id"}
	}
	if fn == nil {
		return &InvalidNodeError{Node: id, Reason: "nil function"}
	}
	if _, ok := r.nodes[id]; ok {
		return &DuplicateNodeError{Node: id}
	}

	n := &Node{ID: id, Function: fn}
	for _, opt := range opts {
		opt(n)
	}
	r.nodes[id] = n
	r.order = append(r.order, id)
	return nil
}

// Resolve returns the node registered under id, or *UnknownNodeError.
func (r *Registry) Resolve(id string) (*Node, error) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, &UnknownNodeError{Node: id}
	}
	return n, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.nodes[id]
	return ok
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.order)
}
