package graph

import (
	"fmt"
	"strings"
)

// Exporter provides methods to export graphs in different formats
type Exporter struct {
	graph *Graph
}

// NewExporter creates a new graph exporter for the given graph
func NewExporter(graph *Graph) *Exporter {
	return &Exporter{graph: graph}
}

type exportEdge struct {
	from, to    string
	conditional bool
}

// edges lists START's edges first, then every node's in declaration order.
func (ge *Exporter) edges() []exportEdge {
	var out []exportEdge
	add := func(es edgeSet) {
		if es.router != nil {
			for _, to := range es.allowed {
				out = append(out, exportEdge{from: es.from, to: to, conditional: true})
			}
			return
		}
		for _, to := range es.fixed {
			out = append(out, exportEdge{from: es.from, to: ge.name(to)})
		}
	}
	add(ge.graph.start)
	for _, n := range ge.graph.nodes {
		add(n.out)
	}
	return out
}

func (ge *Exporter) name(i int) string {
	if i == endIndex {
		return END
	}
	return ge.graph.nodes[i].ID
}

func (ge *Exporter) hasEnd() bool {
	for _, e := range ge.edges() {
		if e.to == END {
			return true
		}
	}
	return false
}

// Describe returns a plain text adjacency description: the node list followed by
// one line per edge. Conditional edges are marked with "?".
//
//	nodes:
//	  draft
//	edges:
//	  START -> draft
//	  draft ?-> END
func (ge *Exporter) Describe() string {
	var sb strings.Builder

	sb.WriteString("nodes:\n")
	for _, n := range ge.graph.nodes {
		if n.Description != "" {
			fmt.Fprintf(&sb, "  %s: %s\n", n.ID, n.Description)
		} else {
			fmt.Fprintf(&sb, "  %s\n", n.ID)
		}
	}

	sb.WriteString("edges:\n")
	for _, e := range ge.edges() {
		arrow := "->"
		if e.conditional {
			arrow = "?->"
		}
		fmt.Fprintf(&sb, "  %s %s %s\n", e.from, arrow, e.to)
	}
	return sb.String()
}

// Adjacency returns the successors of every node, START included, END excluded
// as a key. Conditional targets are listed in declaration order.
func (ge *Exporter) Adjacency() map[string][]string {
	adj := make(map[string][]string)
	for _, e := range ge.edges() {
		adj[e.from] = append(adj[e.from], e.to)
	}
	return adj
}

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// DrawMermaid generates a Mermaid diagram representation of the graph
func (ge *Exporter) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{
		Direction: "TD",
	})
}

// DrawMermaidWithOptions generates a Mermaid diagram with custom options
func (ge *Exporter) DrawMermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	sb.WriteString("    START([\"START\"])\n")
	for _, n := range ge.graph.nodes {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", n.ID, n.ID)
	}
	if ge.hasEnd() {
		sb.WriteString("    END([\"END\"])\n")
	}

	for _, e := range ge.edges() {
		if e.conditional {
			fmt.Fprintf(&sb, "    %s -.-> %s\n", e.from, e.to)
		} else {
			fmt.Fprintf(&sb, "    %s --> %s\n", e.from, e.to)
		}
	}

	sb.WriteString("    style START fill:#90EE90\n")
	if ge.hasEnd() {
		sb.WriteString("    style END fill:#FFB6C1\n")
	}
	return sb.String()
}

// DrawDOT generates a DOT (Graphviz) representation of the graph
func (ge *Exporter) DrawDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TD;\n")
	sb.WriteString("    node [shape=box];\n")
	sb.WriteString("    START [label=\"START\", shape=ellipse, style=filled, fillcolor=lightgreen];\n")
	if ge.hasEnd() {
		sb.WriteString("    END [label=\"END\", shape=ellipse, style=filled, fillcolor=lightpink];\n")
	}

	for _, e := range ge.edges() {
		if e.conditional {
			fmt.Fprintf(&sb, "    %q -> %q [style=dashed];\n", e.from, e.to)
		} else {
			fmt.Fprintf(&sb, "    %q -> %q;\n", e.from, e.to)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// DrawASCII generates an ASCII tree representation of the graph
func (ge *Exporter) DrawASCII() string {
	var sb strings.Builder
	sb.WriteString("Graph Execution Flow:\n")
	sb.WriteString("└── START\n")

	adj := ge.Adjacency()
	visited := map[string]bool{START: true}
	children := adj[START]
	for i, child := range children {
		ge.drawASCIINode(adj, child, "    ", i == len(children)-1, visited, &sb)
	}
	return sb.String()
}

// drawASCIINode recursively draws ASCII representation of nodes
func (ge *Exporter) drawASCIINode(adj map[string][]string, nodeName, prefix string, isLast bool, visited map[string]bool, sb *strings.Builder) {
	connector := "├──"
	nextPrefix := prefix + "│   "
	if isLast {
		connector = "└──"
		nextPrefix = prefix + "    "
	}

	if visited[nodeName] {
		fmt.Fprintf(sb, "%s%s %s (cycle)\n", prefix, connector, nodeName)
		return
	}
	if nodeName != END {
		visited[nodeName] = true
	}
	fmt.Fprintf(sb, "%s%s %s\n", prefix, connector, nodeName)

	children := adj[nodeName]
	for i, child := range children {
		ge.drawASCIINode(adj, child, nextPrefix, i == len(children)-1, visited, sb)
	}
}
