package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFixtureGraph() *Graph {
	g := New()
	for _, f := range []string{"app.py", "lib.py", "util.py", "island.py"} {
		g.AddNode(f, Node{})
	}
	g.AddEdge(Edge{From: "app.py", To: "lib.py", Type: EdgeImport, ImportedNames: []string{"helper", "parse"}})
	g.AddEdge(Edge{From: "util.py", To: "lib.py", Type: EdgeImport, ImportedNames: []string{"helper"}})
	g.AddEdge(Edge{From: "app.py", To: "util.py", Type: EdgeProximity})
	return g
}

func TestNeighborsReturnsBothDirections(t *testing.T) {
	g := buildFixtureGraph()

	neighbors := g.Neighbors("lib.py")
	require.Len(t, neighbors, 2)
	for _, n := range neighbors {
		assert.False(t, n.Outgoing)
		assert.Equal(t, EdgeImport, n.Edge.Type)
	}

	neighbors = g.Neighbors("app.py")
	require.Len(t, neighbors, 2)
	for _, n := range neighbors {
		assert.True(t, n.Outgoing)
	}

	assert.Empty(t, g.Neighbors("island.py"))
}

func TestDegreeAndOutgoingImports(t *testing.T) {
	g := buildFixtureGraph()

	assert.Equal(t, 2, g.Degree("lib.py"))
	assert.Equal(t, 2, g.Degree("app.py"))
	assert.Equal(t, 0, g.Degree("island.py"))

	assert.Equal(t, 1, g.OutgoingImports("app.py"))
	assert.Equal(t, 0, g.OutgoingImports("lib.py"))
}

func TestSymbolDependentsSorted(t *testing.T) {
	g := buildFixtureGraph()

	users := g.SymbolDependents("lib.py", "helper")
	assert.Equal(t, []string{"app.py", "util.py"}, users)

	assert.Equal(t, []string{"app.py"}, g.SymbolDependents("lib.py", "parse"))
	assert.Nil(t, g.SymbolDependents("lib.py", "missing"))
	assert.Nil(t, g.SymbolDependents("island.py", "helper"))
}

func TestConnectedComponentIsStable(t *testing.T) {
	g := buildFixtureGraph()

	// All linked files share the lexicographically smallest member as id.
	assert.Equal(t, "app.py", g.ConnectedComponent("app.py"))
	assert.Equal(t, "app.py", g.ConnectedComponent("lib.py"))
	assert.Equal(t, "app.py", g.ConnectedComponent("util.py"))

	// Edge-less files form singleton components.
	assert.Equal(t, "island.py", g.ConnectedComponent("island.py"))
}

func TestConnected(t *testing.T) {
	g := buildFixtureGraph()

	assert.True(t, g.Connected([]string{"app.py"}, []string{"lib.py"}))
	assert.True(t, g.Connected([]string{"lib.py"}, []string{"app.py"}))
	assert.False(t, g.Connected([]string{"island.py"}, []string{"app.py", "lib.py"}))
	assert.False(t, g.Connected(nil, []string{"app.py"}))
}

func TestFilesSorted(t *testing.T) {
	g := buildFixtureGraph()
	assert.Equal(t, []string{"app.py", "island.py", "lib.py", "util.py"}, g.Files())
}
