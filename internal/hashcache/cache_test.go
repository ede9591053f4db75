package hashcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutSeenDrop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash_cache")
	c, err := Open(path, SHA256)
	require.NoError(t, err)

	assert.False(t, c.Seen("a.py", "deadbeef"))

	require.NoError(t, c.Put(Record{RelativePath: "a.py", ContentHash: "deadbeef", Size: 10}))
	assert.True(t, c.Seen("a.py", "deadbeef"))
	assert.False(t, c.Seen("a.py", "other"))

	require.NoError(t, c.Drop("a.py"))
	assert.False(t, c.Seen("a.py", "deadbeef"))
}

func TestCache_SurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash_cache")
	c, err := Open(path, SHA256)
	require.NoError(t, err)
	require.NoError(t, c.Put(Record{RelativePath: "a.py", ContentHash: "deadbeef"}))
	require.NoError(t, c.Put(Record{RelativePath: "b.py", ContentHash: "cafebabe"}))

	reloaded, err := Open(path, SHA256)
	require.NoError(t, err)
	assert.True(t, reloaded.Seen("a.py", "deadbeef"))
	assert.True(t, reloaded.Seen("b.py", "cafebabe"))
}

func TestCache_Snapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash_cache")
	c, err := Open(path, SHA256)
	require.NoError(t, err)
	require.NoError(t, c.Put(Record{RelativePath: "a.py", ContentHash: "1"}))
	require.NoError(t, c.Put(Record{RelativePath: "b.py", ContentHash: "2"}))

	snap := c.Snapshot()
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "a.py")
	assert.Contains(t, snap, "b.py")
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	h1, size, err := HashFile(path, SHA256)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	h2, _, err := HashFile(path, SHA256)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	hx, _, err := HashFile(path, XXHash)
	require.NoError(t, err)
	assert.NotEqual(t, h1, hx)
}

func TestCache_OpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	c, err := Open(path, SHA256)
	require.NoError(t, err)
	assert.Empty(t, c.Snapshot())
}
