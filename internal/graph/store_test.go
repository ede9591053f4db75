package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_ApplyDiffAndNeighbors(t *testing.T) {
	s := newTestStore(t)

	a := Node{ID: "a", Kind: NodeFunction, Name: "a", FilePath: "f.py"}
	b := Node{ID: "b", Kind: NodeFunction, Name: "b", FilePath: "f.py"}
	fg := FileGraph{
		FilePath: "f.py",
		Nodes:    []Node{a, b},
		Edges:    []Edge{{SourceID: "a", TargetID: "b", Relation: RelCalls}},
	}
	require.NoError(t, s.ApplyDiff(fg))

	neighbors, err := s.Neighbors("a", DirOut, []EdgeRelation{RelCalls})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "b", neighbors[0].ID)

	// Edge is visible from the other direction too.
	neighbors, err = s.Neighbors("b", DirBoth, nil)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "a", neighbors[0].ID)
}

func TestStore_ApplyDiffDropsDanglingEdges(t *testing.T) {
	s := newTestStore(t)

	fg := FileGraph{
		FilePath: "f.py",
		Nodes:    []Node{{ID: "a", Kind: NodeFunction, Name: "a", FilePath: "f.py"}},
		Edges:    []Edge{{SourceID: "a", TargetID: "missing", Relation: RelCalls}},
	}
	require.NoError(t, s.ApplyDiff(fg))

	neighbors, err := s.Neighbors("a", DirOut, []EdgeRelation{RelCalls})
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestStore_RemoveByFile(t *testing.T) {
	s := newTestStore(t)

	fg := FileGraph{
		FilePath: "f.py",
		Nodes: []Node{
			{ID: "a", Kind: NodeFunction, Name: "a", FilePath: "f.py"},
			{ID: "b", Kind: NodeFunction, Name: "b", FilePath: "f.py"},
		},
		Edges: []Edge{{SourceID: "a", TargetID: "b", Relation: RelCalls}},
	}
	require.NoError(t, s.ApplyDiff(fg))
	require.NoError(t, s.RemoveByFile("f.py"))

	nodes, err := s.SearchNodes("a", 10)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	edges, err := s.SearchEdges("a")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestStore_SearchNodesSubstring(t *testing.T) {
	s := newTestStore(t)

	fg := FileGraph{
		FilePath: "f.py",
		Nodes: []Node{
			{ID: "a", Kind: NodeFunction, Name: "parseConfig", FilePath: "f.py"},
			{ID: "b", Kind: NodeFunction, Name: "writeOutput", FilePath: "f.py"},
		},
	}
	require.NoError(t, s.ApplyDiff(fg))

	results, err := s.SearchNodes("config", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "parseConfig", results[0].Name)
}

func TestStore_SurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	fg := FileGraph{
		FilePath: "f.py",
		Nodes:    []Node{{ID: "a", Kind: NodeFunction, Name: "a", FilePath: "f.py"}},
	}
	require.NoError(t, s.ApplyDiff(fg))
	s.Close()

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	nodes, err := reopened.SearchNodes("a", 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}
