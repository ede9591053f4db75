package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, path string, vec []float32) ChunkRecord {
	return ChunkRecord{
		ChunkID: id,
		Vector:  vec,
		Text:    "text-" + id,
		Metadata: Metadata{
			Project:      "p",
			RelativePath: path,
			Language:     "python",
			Kind:         "function",
			Name:         id,
		},
	}
}

func TestStore_UpsertAndKNN(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertMany([]ChunkRecord{
		rec("a", "f.py", []float32{1, 0, 0}),
		rec("b", "f.py", []float32{0, 1, 0}),
		rec("c", "g.py", []float32{0.9, 0.1, 0}),
	}))

	results, err := s.KNN([]float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestStore_KNNAppliesFilter(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertMany([]ChunkRecord{
		rec("a", "f.py", []float32{1, 0, 0}),
		rec("b", "g.py", []float32{0.99, 0.01, 0}),
	}))

	results, err := s.KNN([]float32{1, 0, 0}, 2, func(m Metadata) bool {
		return m.RelativePath == "g.py"
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ChunkID)
}

func TestStore_UpsertReplacesExistingID(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertMany([]ChunkRecord{rec("a", "f.py", []float32{1, 0, 0})}))
	require.NoError(t, s.UpsertMany([]ChunkRecord{rec("a", "f.py", []float32{0, 1, 0})}))

	ids, err := s.ListByPath("f.py")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	results, err := s.KNN([]float32{0, 1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestStore_DeleteMany(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertMany([]ChunkRecord{
		rec("a", "f.py", []float32{1, 0, 0}),
		rec("b", "f.py", []float32{0, 1, 0}),
	}))
	require.NoError(t, s.DeleteMany([]string{"a"}))

	ids, err := s.ListByPath("f.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestStore_DeleteByPath(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertMany([]ChunkRecord{
		rec("a", "f.py", []float32{1, 0, 0}),
		rec("b", "g.py", []float32{0, 1, 0}),
	}))
	require.NoError(t, s.DeleteByPath("f.py"))

	ids, err := s.ListByPath("f.py")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.ListByPath("g.py")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestStore_SurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpsertMany([]ChunkRecord{rec("a", "f.py", []float32{1, 0, 0})}))
	require.NoError(t, s.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	ids, err := reopened.ListByPath("f.py")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	results, err := reopened.KNN([]float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestStore_DimensionMismatchRejected(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertMany([]ChunkRecord{rec("a", "f.py", []float32{1, 0, 0})}))
	err = s.UpsertMany([]ChunkRecord{rec("b", "f.py", []float32{1, 0})})
	assert.Error(t, err)
}
