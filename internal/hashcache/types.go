package hashcache

import "time"

// Record is the persisted state for one file: the hash of its content at
// the last successful index, plus the stat fields used to short-circuit
// rehashing unchanged files.
type Record struct {
	RelativePath   string    `json:"path"`
	ContentHash    string    `json:"hash"`
	Size           int64     `json:"size"`
	ModTime        time.Time `json:"mtime"`
	LastIndexedAt  time.Time `json:"last_indexed_at"`
}
