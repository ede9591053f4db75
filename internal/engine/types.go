package engine

import (
	"time"

	"github.com/mvp-joe/code-rag-indexer/internal/vectorstore"
)

// ProjectInfo is the read-only view of a project returned by list_projects.
type ProjectInfo struct {
	Name     string
	RootPath string
	DataDir  string
	Disabled bool
}

// IndexerStatus is the response shape for indexer_status: spec.md §6's
// {queued, in_flight, last_commit_ts, error_counts}.
type IndexerStatus struct {
	Project      string
	Queued       int
	InFlight     int
	LastCommitTS time.Time
	ErrorCounts  ErrorCounts
	Disabled     bool
}

// ErrorCounts splits error counts per spec.md §7's taxonomy. Transient
// counts every retried embedder attempt as well as tasks that failed on a
// transient error; Permanent counts tasks that failed permanently.
type ErrorCounts struct {
	Transient int
	Permanent int
}

// QueryOptions mirrors query.Request's caller-tunable fields, kept as its
// own type so collaborators don't need to import internal/query directly.
type QueryOptions struct {
	K                   int
	MinScore            float32
	Filter              vectorstore.Filter
	IncludeGraphContext bool
}

// ReindexResult is trigger_reindex's return value. When DryRun is set on
// the request, Paths lists what would have been enqueued without
// enqueuing it (spec.md §9 supplemental feature).
type ReindexResult struct {
	Enqueued int
	Paths    []string
}
