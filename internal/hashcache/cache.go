// Package hashcache maintains a persistent relative_path -> content hash
// mapping used to detect real file changes between scans.
package hashcache

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Algorithm identifies the hash function used to fingerprint file content.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	XXHash Algorithm = "xxhash"
)

// newHasher returns a fresh hash.Hash for the configured algorithm.
// Unknown algorithms fall back to SHA256.
func newHasher(alg Algorithm) hash.Hash {
	if alg == XXHash {
		return xxhash.New()
	}
	return sha256.New()
}

// HashFile computes the content hash of a file using the configured
// algorithm, along with its size. Returns an error if the file cannot be
// read; callers treat this as a transient I/O error per the error taxonomy.
func HashFile(path string, alg Algorithm) (contentHash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := newHasher(alg)
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Cache is a persistent, thread-safe relative_path -> Record map for one
// project. Updates are written via rename-over-temp so the on-disk file
// never observes a partial write, surviving unclean shutdown.
type Cache struct {
	mu        sync.RWMutex
	path      string
	algorithm Algorithm
	records   map[string]Record
	dirty     bool
}

// Open loads an existing cache file, or returns an empty Cache if none
// exists yet. path is the file the cache persists to (the project's
// data_dir/hash_cache per spec).
func Open(path string, alg Algorithm) (*Cache, error) {
	c := &Cache{
		path:      path,
		algorithm: alg,
		records:   make(map[string]Record),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("open hash cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A corrupt line is dropped rather than failing the whole
			// cache; the file will simply look unindexed and get
			// re-hashed on the next reconciliation scan.
			continue
		}
		c.records[rec.RelativePath] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read hash cache: %w", err)
	}
	return c, nil
}

// Algorithm reports the configured hash algorithm.
func (c *Cache) Algorithm() Algorithm {
	return c.algorithm
}

// Seen reports whether relPath is recorded with exactly the given content
// hash.
func (c *Cache) Seen(relPath, contentHash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[relPath]
	return ok && rec.ContentHash == contentHash
}

// Get returns the stored record for relPath, if any.
func (c *Cache) Get(relPath string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[relPath]
	return rec, ok
}

// Put inserts or replaces the record for a path and persists the cache.
func (c *Cache) Put(rec Record) error {
	c.mu.Lock()
	rec.LastIndexedAt = time.Now().UTC()
	c.records[rec.RelativePath] = rec
	c.dirty = true
	c.mu.Unlock()
	return c.flush()
}

// Drop removes a path from the cache and persists the change.
func (c *Cache) Drop(relPath string) error {
	c.mu.Lock()
	if _, ok := c.records[relPath]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.records, relPath)
	c.dirty = true
	c.mu.Unlock()
	return c.flush()
}

// Snapshot returns the set of relative paths currently recorded, used for
// orphan detection during the startup reconciliation scan.
func (c *Cache) Snapshot() map[string]Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Record, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out
}

// flush persists the full record set to disk via a temp-file-then-rename,
// so a crash mid-write never leaves a truncated cache file behind.
func (c *Cache) flush() error {
	c.mu.RLock()
	records := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		records = append(records, rec)
	}
	c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create hash cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hash_cache-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp hash cache: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("encode hash cache record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush hash cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync hash cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp hash cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename hash cache into place: %w", err)
	}
	return nil
}
