package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-rag-indexer/internal/hashcache"
)

type fakeMatcher struct{ ignore func(string, bool) bool }

func (f fakeMatcher) IsIgnored(rel string, isDir bool) bool {
	if f.ignore == nil {
		return false
	}
	return f.ignore(rel, isDir)
}

func newTestCache(t *testing.T) *hashcache.Cache {
	t.Helper()
	c, err := hashcache.Open(filepath.Join(t.TempDir(), "hash_cache"), hashcache.SHA256)
	require.NoError(t, err)
	return c
}

func drain(t *testing.T, tasks chan Task, n int, timeout time.Duration) []Task {
	t.Helper()
	out := make([]Task, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case task := <-tasks:
			out = append(out, task)
		case <-deadline:
			t.Fatalf("timed out waiting for %d tasks, got %d: %v", n, len(out), out)
		}
	}
	return out
}

func TestWatcher_ReconcileEmitsUpsertForNewFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("print(1)"), 0o644))

	cache := newTestCache(t)
	tasks := make(chan Task, 10)
	w, err := New(Config{Project: "p", Root: root}, fakeMatcher{}, cache, tasks, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	got := drain(t, tasks, 1, time.Second)
	assert.Equal(t, Task{Project: "p", RelativePath: "a.py", Kind: Upsert}, got[0])
}

func TestWatcher_ReconcileEmitsDeleteForMissingCachedPath(t *testing.T) {
	root := t.TempDir()
	cache := newTestCache(t)
	require.NoError(t, cache.Put(hashcache.Record{RelativePath: "gone.py", ContentHash: "deadbeef"}))

	tasks := make(chan Task, 10)
	w, err := New(Config{Project: "p", Root: root}, fakeMatcher{}, cache, tasks, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	got := drain(t, tasks, 1, time.Second)
	assert.Equal(t, Task{Project: "p", RelativePath: "gone.py", Kind: Delete}, got[0])
}

func TestWatcher_ReconcileSkipsUnchangedHash(t *testing.T) {
	root := t.TempDir()
	content := []byte("print(1)")
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), content, 0o644))

	cache := newTestCache(t)
	hash, _, err := hashcache.HashFile(filepath.Join(root, "a.py"), hashcache.SHA256)
	require.NoError(t, err)
	require.NoError(t, cache.Put(hashcache.Record{RelativePath: "a.py", ContentHash: hash}))

	tasks := make(chan Task, 10)
	w, err := New(Config{Project: "p", Root: root}, fakeMatcher{}, cache, tasks, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	select {
	case task := <-tasks:
		t.Fatalf("expected no tasks, got %v", task)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_CreateThenWriteDebouncesToOneUpsert(t *testing.T) {
	root := t.TempDir()
	cache := newTestCache(t)
	tasks := make(chan Task, 10)

	w, err := New(Config{Project: "p", Root: root, Debounce: 50 * time.Millisecond}, fakeMatcher{}, cache, tasks, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(root, "b.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("x = 2"), 0o644))

	got := drain(t, tasks, 1, time.Second)
	assert.Equal(t, Task{Project: "p", RelativePath: "b.py", Kind: Upsert}, got[0])

	select {
	case extra := <-tasks:
		t.Fatalf("expected exactly one coalesced task, got extra %v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_DeleteAfterIndexEmitsDeleteTask(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "c.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))

	cache := newTestCache(t)
	hash, _, err := hashcache.HashFile(path, hashcache.SHA256)
	require.NoError(t, err)
	require.NoError(t, cache.Put(hashcache.Record{RelativePath: "c.py", ContentHash: hash}))

	tasks := make(chan Task, 10)
	w, err := New(Config{Project: "p", Root: root, Debounce: 30 * time.Millisecond}, fakeMatcher{}, cache, tasks, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.Remove(path))

	got := drain(t, tasks, 1, time.Second)
	assert.Equal(t, Task{Project: "p", RelativePath: "c.py", Kind: Delete}, got[0])
}

func TestWatcher_PollingFallbackReconcilesOnInterval(t *testing.T) {
	root := t.TempDir()
	cache := newTestCache(t)
	tasks := make(chan Task, 10)

	w, err := New(Config{Project: "p", Root: root, PollingInterval: 30 * time.Millisecond}, fakeMatcher{}, cache, tasks, nil)
	require.NoError(t, err)
	if w.fs != nil {
		require.NoError(t, w.fs.Close())
		w.fs = nil // simulate an environment where fsnotify could not be created
	}

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "polled.py"), []byte("x = 1"), 0o644))

	got := drain(t, tasks, 1, time.Second)
	assert.Equal(t, Task{Project: "p", RelativePath: "polled.py", Kind: Upsert}, got[0])
}

func TestWatcher_IgnoredPathProducesNoTask(t *testing.T) {
	root := t.TempDir()
	cache := newTestCache(t)
	tasks := make(chan Task, 10)

	matcher := fakeMatcher{ignore: func(rel string, isDir bool) bool { return rel == "ignored.py" }}
	w, err := New(Config{Project: "p", Root: root, Debounce: 30 * time.Millisecond}, matcher, cache, tasks, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.py"), []byte("x"), 0o644))

	select {
	case task := <-tasks:
		t.Fatalf("expected no tasks for ignored path, got %v", task)
	case <-time.After(200 * time.Millisecond):
	}
}
