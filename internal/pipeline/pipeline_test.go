package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-rag-indexer/internal/embedder"
	"github.com/mvp-joe/code-rag-indexer/internal/graph"
	"github.com/mvp-joe/code-rag-indexer/internal/hashcache"
	"github.com/mvp-joe/code-rag-indexer/internal/parserpool"
	"github.com/mvp-joe/code-rag-indexer/internal/vectorstore"
	"github.com/mvp-joe/code-rag-indexer/internal/watcher"
)

type embedRequestBody struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}
type embedResponseBody struct {
	Data []embedDatum `json:"data"`
}
type embedDatum struct {
	Embedding []float32 `json:"embedding"`
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body embedRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		data := make([]embedDatum, len(body.Input))
		for i, text := range body.Input {
			data[i] = embedDatum{Embedding: []float32{float32(len(text)), 1, 0}}
		}
		json.NewEncoder(w).Encode(embedResponseBody{Data: data})
	}))
	t.Cleanup(srv.Close)

	vectors, err := vectorstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	graphStore, err := graph.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(graphStore.Close)

	hashes, err := hashcache.Open(filepath.Join(t.TempDir(), "hash_cache"), hashcache.SHA256)
	require.NoError(t, err)

	cfg := embedder.DefaultConfig(srv.URL)
	return Deps{
		Parser:  parserpool.New(),
		Embed:   embedder.New(cfg, nil),
		Vectors: vectors,
		Graph:   graphStore,
		Hashes:  hashes,
	}
}

func TestPipeline_UpsertIndexesFileIntoBothStores(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def foo():\n    return 1\n"), 0o644))

	deps := newTestDeps(t)
	p := New("proj", root, deps, Config{MaxWorkers: 2}, nil)

	tasks := make(chan watcher.Task, 1)
	tasks <- watcher.Task{Project: "proj", RelativePath: "a.py", Kind: watcher.Upsert}
	close(tasks)
	p.Run(context.Background(), tasks)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Upserted)
	assert.Equal(t, 0, stats.Failed)

	ids, err := deps.Vectors.ListByPath("a.py")
	require.NoError(t, err)
	assert.NotEmpty(t, ids)

	_, ok := deps.Hashes.Get("a.py")
	assert.True(t, ok)

	nodes, err := deps.Graph.SearchNodes("foo", 10)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestPipeline_DeleteRemovesFromBothStores(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\n"), 0o644))

	deps := newTestDeps(t)
	p := New("proj", root, deps, Config{MaxWorkers: 2}, nil)

	tasks := make(chan watcher.Task, 2)
	tasks <- watcher.Task{Project: "proj", RelativePath: "a.py", Kind: watcher.Upsert}
	close(tasks)
	p.Run(context.Background(), tasks)
	require.NotEmpty(t, mustList(t, deps, "a.py"))

	tasks2 := make(chan watcher.Task, 1)
	tasks2 <- watcher.Task{Project: "proj", RelativePath: "a.py", Kind: watcher.Delete}
	close(tasks2)
	p.Run(context.Background(), tasks2)

	assert.Empty(t, mustList(t, deps, "a.py"))
	_, ok := deps.Hashes.Get("a.py")
	assert.False(t, ok)
}

func TestPipeline_SupersededTaskIsNoOp(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	deps := newTestDeps(t)
	hash, size, err := hashcache.HashFile(path, deps.Hashes.Algorithm())
	require.NoError(t, err)
	require.NoError(t, deps.Hashes.Put(hashcache.Record{RelativePath: "a.py", ContentHash: hash, Size: size}))

	p := New("proj", root, deps, Config{MaxWorkers: 2}, nil)
	tasks := make(chan watcher.Task, 1)
	tasks <- watcher.Task{Project: "proj", RelativePath: "a.py", Kind: watcher.Upsert}
	close(tasks)
	p.Run(context.Background(), tasks)

	assert.Equal(t, 1, p.Stats().Upserted)
	assert.Empty(t, mustList(t, deps, "a.py")) // no chunks were ever upserted
}

func mustList(t *testing.T, deps Deps, path string) []string {
	t.Helper()
	ids, err := deps.Vectors.ListByPath(path)
	require.NoError(t, err)
	return ids
}

func TestPipeline_MissingFileOnUpsertIsSkippedGracefully(t *testing.T) {
	root := t.TempDir()
	deps := newTestDeps(t)
	p := New("proj", root, deps, Config{MaxWorkers: 1}, nil)

	tasks := make(chan watcher.Task, 1)
	tasks <- watcher.Task{Project: "proj", RelativePath: "missing.py", Kind: watcher.Upsert}
	close(tasks)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Run(ctx, tasks)

	assert.Equal(t, 0, p.Stats().Failed)
}
