package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-rag-indexer/internal/parserpool"
)

func TestExtract_Python_FunctionsAndCall(t *testing.T) {
	pool := parserpool.New()
	defer pool.Close()

	src := []byte("def helper():\n    return 1\n\ndef main():\n    return helper()\n")
	tree, err := pool.Parse(context.Background(), parserpool.Python, src)
	require.NoError(t, err)
	defer tree.Close()

	fg := Extract("a.py", parserpool.Python, src, tree)

	var helper, main *Node
	for i := range fg.Nodes {
		n := &fg.Nodes[i]
		switch n.Name {
		case "helper":
			helper = n
		case "main":
			main = n
		}
	}
	require.NotNil(t, helper)
	require.NotNil(t, main)

	foundCall := false
	for _, e := range fg.Edges {
		if e.Relation == RelCalls && e.SourceID == main.ID && e.TargetID == helper.ID {
			foundCall = true
		}
	}
	assert.True(t, foundCall, "expected a calls edge from main to helper")
}

func TestExtract_Python_ClassContainsMethod(t *testing.T) {
	pool := parserpool.New()
	defer pool.Close()

	src := []byte("class Greeter:\n    def greet(self):\n        return 1\n")
	tree, err := pool.Parse(context.Background(), parserpool.Python, src)
	require.NoError(t, err)
	defer tree.Close()

	fg := Extract("g.py", parserpool.Python, src, tree)

	var class, method *Node
	for i := range fg.Nodes {
		n := &fg.Nodes[i]
		if n.Kind == NodeClass {
			class = n
		}
		if n.Kind == NodeFunction && n.Name == "greet" {
			method = n
		}
	}
	require.NotNil(t, class)
	require.NotNil(t, method)

	found := false
	for _, e := range fg.Edges {
		if e.Relation == RelContains && e.SourceID == class.ID && e.TargetID == method.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExtract_Python_ImportEdgeTargetIsARealNode(t *testing.T) {
	pool := parserpool.New()
	defer pool.Close()

	src := []byte("import os\n\ndef main():\n    return os.getcwd()\n")
	tree, err := pool.Parse(context.Background(), parserpool.Python, src)
	require.NoError(t, err)
	defer tree.Close()

	fg := Extract("a.py", parserpool.Python, src, tree)

	var importEdge *Edge
	for i := range fg.Edges {
		if fg.Edges[i].Relation == RelImports {
			importEdge = &fg.Edges[i]
		}
	}
	require.NotNil(t, importEdge, "expected an imports edge")

	found := false
	for _, n := range fg.Nodes {
		if n.ID == importEdge.TargetID {
			found = true
		}
	}
	assert.True(t, found, "imports edge target must be a node in the same FileGraph, or graph.Store.ApplyDiff will drop it")

	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.ApplyDiff(fg))

	neighbors, err := s.Neighbors(importEdge.SourceID, DirOut, []EdgeRelation{RelImports})
	require.NoError(t, err)
	require.Len(t, neighbors, 1, "imports edge should survive ApplyDiff's node-then-edge pass")
}

func TestExtract_UnrecognizedLanguageYieldsModuleOnly(t *testing.T) {
	fg := Extract("a.txt", "", []byte("irrelevant"), nil)
	require.Len(t, fg.Nodes, 1)
	assert.Equal(t, NodeModule, fg.Nodes[0].Kind)
}

func TestExtract_Deterministic(t *testing.T) {
	pool := parserpool.New()
	defer pool.Close()

	src := []byte("def f():\n    return 1\n")
	parse := func() FileGraph {
		tree, err := pool.Parse(context.Background(), parserpool.Python, src)
		require.NoError(t, err)
		defer tree.Close()
		return Extract("a.py", parserpool.Python, src, tree)
	}

	first := parse()
	second := parse()
	require.Len(t, first.Nodes, 2)
	require.Len(t, second.Nodes, 2)
	assert.Equal(t, first.Nodes[1].ID, second.Nodes[1].ID)
}
