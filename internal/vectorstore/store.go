package vectorstore

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// Store is one project's vector collection: a pure-Go HNSW index plus a
// metadata sidecar mapping chunk_id -> {text, metadata}. Persisted across
// three files under dir: index.hnsw (the exported HNSW graph),
// index.hnsw.meta (gob-encoded id<->key mapping), and metadata.jsonl (the
// chunk text/metadata sidecar).
type Store struct {
	mu  sync.RWMutex
	dir string
	log *slog.Logger

	dim   int
	graph *hnsw.Graph[uint64]

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	records map[string]ChunkRecord
	byPath  map[string][]string

	closed bool
}

type storeMeta struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
}

const (
	indexFile   = "index.hnsw"
	metaFile    = "index.hnsw.meta"
	sidecarFile = "metadata.jsonl"
)

// Open loads (or initializes) the collection rooted at dir. logger defaults
// to slog.Default() when nil.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vectorstore: create dir: %w", err)
	}

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25

	s := &Store{
		dir:     dir,
		log:     logger,
		graph:   g,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		records: make(map[string]ChunkRecord),
		byPath:  make(map[string][]string),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	metaPath := filepath.Join(s.dir, metaFile)
	if _, err := os.Stat(metaPath); err == nil {
		if err := s.loadMeta(metaPath); err != nil {
			return fmt.Errorf("vectorstore: load meta: %w", err)
		}
		indexPath := filepath.Join(s.dir, indexFile)
		file, err := os.Open(indexPath)
		if err != nil {
			return fmt.Errorf("vectorstore: open index: %w", err)
		}
		defer file.Close()
		if err := s.graph.Import(bufio.NewReader(file)); err != nil {
			return fmt.Errorf("vectorstore: import graph: %w", err)
		}
	}

	sidecarPath := filepath.Join(s.dir, sidecarFile)
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vectorstore: read sidecar: %w", err)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec ChunkRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("vectorstore: decode sidecar line: %w", err)
		}
		s.records[rec.ChunkID] = rec
		s.byPath[rec.Metadata.RelativePath] = append(s.byPath[rec.Metadata.RelativePath], rec.ChunkID)
	}
	return nil
}

func (s *Store) loadMeta(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var m storeMeta
	if err := gob.NewDecoder(file).Decode(&m); err != nil {
		return err
	}
	s.idMap = m.IDMap
	s.nextKey = m.NextKey
	s.dim = m.Dimensions
	s.keyMap = make(map[uint64]string, len(m.IDMap))
	for id, key := range m.IDMap {
		s.keyMap[key] = id
	}
	return nil
}

// UpsertMany inserts or replaces chunks by id. Replacing an existing id uses
// lazy deletion: the old graph node is orphaned rather than removed, since
// coder/hnsw corrupts its structure when the last node is deleted.
func (s *Store) UpsertMany(chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vectorstore: store is closed")
	}

	for _, c := range chunks {
		if s.dim == 0 {
			s.dim = len(c.Vector)
		} else if len(c.Vector) != s.dim {
			return fmt.Errorf("vectorstore: vector dimension mismatch: expected %d, got %d for chunk %s", s.dim, len(c.Vector), c.ChunkID)
		}
		s.removeLocked(c.ChunkID)

		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		normalizeVectorInPlace(vec)

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[c.ChunkID] = key
		s.keyMap[key] = c.ChunkID

		s.records[c.ChunkID] = c
		s.byPath[c.Metadata.RelativePath] = append(s.byPath[c.Metadata.RelativePath], c.ChunkID)
	}

	return s.save()
}

// DeleteMany removes chunks by id.
func (s *Store) DeleteMany(chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vectorstore: store is closed")
	}
	for _, id := range chunkIDs {
		s.removeLocked(id)
	}
	return s.save()
}

// DeleteByPath removes every chunk indexed for relativePath.
func (s *Store) DeleteByPath(relativePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vectorstore: store is closed")
	}
	ids := s.byPath[relativePath]
	if len(ids) == 0 {
		return nil
	}
	for _, id := range append([]string(nil), ids...) {
		s.removeLocked(id)
	}
	return s.save()
}

// removeLocked drops a chunk id from the index, records and byPath, orphaning
// its graph node (the caller holds s.mu).
func (s *Store) removeLocked(chunkID string) {
	if key, ok := s.idMap[chunkID]; ok {
		delete(s.keyMap, key)
		delete(s.idMap, chunkID)
	}
	if rec, ok := s.records[chunkID]; ok {
		delete(s.records, chunkID)
		ids := s.byPath[rec.Metadata.RelativePath]
		for i, id := range ids {
			if id == chunkID {
				s.byPath[rec.Metadata.RelativePath] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(s.byPath[rec.Metadata.RelativePath]) == 0 {
			delete(s.byPath, rec.Metadata.RelativePath)
		}
	}
}

// ListByPath returns the chunk ids currently indexed for relativePath.
func (s *Store) ListByPath(relativePath string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vectorstore: store is closed")
	}
	out := make([]string, len(s.byPath[relativePath]))
	copy(out, s.byPath[relativePath])
	return out, nil
}

// KNN returns the k nearest chunks to queryVector. When filter is non-nil,
// hits whose metadata it rejects are dropped from the result without
// backfilling; callers needing a guaranteed k after filtering should
// oversample k before calling (internal/query does k' = max(k*2, 20)).
func (s *Store) KNN(queryVector []float32, k int, filter Filter) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vectorstore: store is closed")
	}
	if s.dim != 0 && len(queryVector) != s.dim {
		return nil, fmt.Errorf("vectorstore: query vector dimension mismatch: expected %d, got %d", s.dim, len(queryVector))
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	query := make([]float32, len(queryVector))
	copy(query, queryVector)
	normalizeVectorInPlace(query)

	nodes := s.graph.Search(query, k)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		chunkID, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned (lazily deleted) node
		}
		rec, ok := s.records[chunkID]
		if !ok {
			continue
		}
		if filter != nil && !filter(rec.Metadata) {
			continue
		}
		distance := s.graph.Distance(query, node.Value)
		results = append(results, Result{
			ChunkID:  chunkID,
			Score:    1.0 - distance/2.0,
			Metadata: rec.Metadata,
			Text:     rec.Text,
		})
	}
	return results, nil
}

// save persists the graph, its id mapping, and the metadata sidecar. Each of
// the three files is written via a temp-file-then-rename for atomicity; the
// caller holds s.mu.
func (s *Store) save() error {
	indexPath := filepath.Join(s.dir, indexFile)
	if err := atomicWrite(indexPath, func(f *os.File) error {
		return s.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("vectorstore: save index: %w", err)
	}

	metaPath := filepath.Join(s.dir, metaFile)
	if err := atomicWrite(metaPath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(storeMeta{IDMap: s.idMap, NextKey: s.nextKey, Dimensions: s.dim})
	}); err != nil {
		return fmt.Errorf("vectorstore: save meta: %w", err)
	}

	sidecarPath := filepath.Join(s.dir, sidecarFile)
	if err := atomicWrite(sidecarPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		for _, rec := range s.records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("vectorstore: save sidecar: %w", err)
	}

	return nil
}

func atomicWrite(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Close releases the store. A closed store rejects further calls.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
