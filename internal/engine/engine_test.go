package engine

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

	"github.com/mvp-joe/code-rag-indexer/internal/config"
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

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body embedRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		data := make([]embedDatum, len(body.Input))
		for i, text := range body.Input {
			data[i] = embedDatum{Embedding: []float32{float32(len(text)), 1, 0}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(embedResponseBody{Data: data}))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Embedding.BaseURL = srv.URL
	cfg.Indexer.MaxWorkers = 2

	e := New(cfg, nil)
	t.Cleanup(e.Close)
	return e
}

func waitForStatus(t *testing.T, e *Engine, project string, timeout time.Duration) IndexerStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, err := e.IndexerStatus(project)
		require.NoError(t, err)
		if status.Queued == 0 && status.InFlight == 0 {
			return status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for indexer to settle")
	return IndexerStatus{}
}

func TestEngine_AddProjectIndexesExistingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def foo():\n    return 1\n"), 0o644))

	e := newTestEngine(t)
	require.NoError(t, e.AddProject("proj", root))

	waitForStatus(t, e, "proj", 2*time.Second)

	resp, err := e.Query(context.Background(), "proj", "foo", QueryOptions{K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
}

func TestEngine_AddProjectRejectsDuplicateName(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t)
	require.NoError(t, e.AddProject("proj", root))

	err := e.AddProject("proj", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectExists)
}

func TestEngine_AddProjectRejectsOverlappingRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	e := newTestEngine(t)
	require.NoError(t, e.AddProject("outer", root))

	err := e.AddProject("inner", nested)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectOverlap)
}

func TestEngine_RemoveProjectDestroysDataDir(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t)
	require.NoError(t, e.AddProject("proj", root))

	dataDir := filepath.Join(root, dataDirName)
	_, err := os.Stat(dataDir)
	require.NoError(t, err)

	require.NoError(t, e.RemoveProject("proj"))
	_, err = os.Stat(dataDir)
	assert.True(t, os.IsNotExist(err))

	_, err = e.IndexerStatus("proj")
	assert.ErrorIs(t, err, ErrInputInvalid)
}

func TestEngine_TriggerReindexDryRunDoesNotEnqueue(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\n"), 0o644))

	e := newTestEngine(t)
	require.NoError(t, e.AddProject("proj", root))
	waitForStatus(t, e, "proj", 2*time.Second)

	result, err := e.TriggerReindex("proj", true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Enqueued)
	assert.Contains(t, result.Paths, "a.py")

	status, err := e.IndexerStatus("proj")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Queued)
}

func TestEngine_QueryUnknownProjectIsInputInvalid(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Query(context.Background(), "nope", "foo", QueryOptions{K: 5})
	assert.ErrorIs(t, err, ErrInputInvalid)
}
