// Package depgraph models the file-level dependency graph consumed by the
// force decision engine. Once built the graph is a read-only index; it
// exposes the narrow queries the decision and execution layers need:
// neighbor lookup with edge metadata, degree counts, symbol-level
// dependents, and connected components.
package depgraph

import (
	"context"
	"sort"
)

// EdgeType classifies how two files depend on each other.
type EdgeType string

const (
	EdgeImport    EdgeType = "import"
	EdgeCalls     EdgeType = "calls"
	EdgeProximity EdgeType = "proximity"
	EdgeUnknown   EdgeType = "unknown"
)

// Edge is a directed, typed relationship between two files.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Type EdgeType `json:"type"`

	// ImportedNames lists the symbols the edge carries, when the analyzer
	// resolved them. Empty for proximity edges.
	ImportedNames []string `json:"imported_names,omitempty"`
}

// Node holds the per-file error summary recorded by the analyzer.
type Node struct {
	ErrorCount int      `json:"error_count"`
	ErrorTypes []string `json:"error_types,omitempty"`
}

// Neighbor is one entry of a Neighbors query: the adjacent file plus the
// edge that connects it. Outgoing reports edge direction relative to the
// queried file.
type Neighbor struct {
	File     string
	Edge     Edge
	Outgoing bool
}

// Graph is an adjacency-list dependency graph keyed by file path.
// Both forward and reverse adjacency are maintained so Neighbors can
// answer successors and predecessors in one pass.
type Graph struct {
	nodes   map[string]Node
	forward map[string][]Edge
	reverse map[string][]Edge

	// symbolUsers maps "file#symbol" to the files using that symbol,
	// built from imported-name metadata on edges.
	symbolUsers map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:       make(map[string]Node),
		forward:     make(map[string][]Edge),
		reverse:     make(map[string][]Edge),
		symbolUsers: make(map[string][]string),
	}
}

// AddNode records a file and its error summary. Adding an existing file
// replaces its summary.
func (g *Graph) AddNode(file string, node Node) {
	g.nodes[file] = node
}

// AddEdge records a directed edge. Unknown edge types are preserved as-is;
// the risk model applies default multipliers for them.
func (g *Graph) AddEdge(e Edge) {
	g.forward[e.From] = append(g.forward[e.From], e)
	g.reverse[e.To] = append(g.reverse[e.To], e)
	for _, name := range e.ImportedNames {
		key := e.To + "#" + name
		g.symbolUsers[key] = append(g.symbolUsers[key], e.From)
	}
}

// Node returns the error summary for a file, if recorded.
func (g *Graph) Node(file string) (Node, bool) {
	n, ok := g.nodes[file]
	return n, ok
}

// Files returns all recorded file paths in sorted order.
func (g *Graph) Files() []string {
	files := make([]string, 0, len(g.nodes))
	for f := range g.nodes {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Neighbors returns the files adjacent to file: successors first, then
// predecessors, each with the connecting edge.
func (g *Graph) Neighbors(file string) []Neighbor {
	var neighbors []Neighbor
	for _, e := range g.forward[file] {
		neighbors = append(neighbors, Neighbor{File: e.To, Edge: e, Outgoing: true})
	}
	for _, e := range g.reverse[file] {
		neighbors = append(neighbors, Neighbor{File: e.From, Edge: e, Outgoing: false})
	}
	return neighbors
}

// Degree returns the total edge count touching file.
func (g *Graph) Degree(file string) int {
	return len(g.forward[file]) + len(g.reverse[file])
}

// OutgoingImports counts the import-typed edges leaving file.
func (g *Graph) OutgoingImports(file string) int {
	count := 0
	for _, e := range g.forward[file] {
		if e.Type == EdgeImport {
			count++
		}
	}
	return count
}

// SymbolDependents returns the files that use the named symbol defined in
// file, in deterministic order.
func (g *Graph) SymbolDependents(file, symbol string) []string {
	users := g.symbolUsers[file+"#"+symbol]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, len(users))
	copy(out, users)
	sort.Strings(out)
	return out
}

// ConnectedComponent returns a stable identifier for the undirected
// connected component containing file. Files with no edges form singleton
// components identified by their own path.
func (g *Graph) ConnectedComponent(file string) string {
	seen := map[string]bool{file: true}
	queue := []string{file}
	minFile := file
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur < minFile {
			minFile = cur
		}
		for _, n := range g.Neighbors(cur) {
			if !seen[n.File] {
				seen[n.File] = true
				queue = append(queue, n.File)
			}
		}
	}
	return minFile
}

// Connected reports whether any dependency edge links a file in a to a file
// in b, in either direction. Used to decide whether two batches may run
// concurrently.
func (g *Graph) Connected(a, b []string) bool {
	inB := make(map[string]bool, len(b))
	for _, f := range b {
		inB[f] = true
	}
	for _, f := range a {
		for _, n := range g.Neighbors(f) {
			if inB[n.File] {
				return true
			}
		}
	}
	return false
}

// Builder constructs a dependency graph for a set of files.
type Builder interface {
	BuildGraph(ctx context.Context, files []string) (*Graph, error)
}
