package engine

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/mvp-joe/code-rag-indexer/internal/graph"
	"github.com/mvp-joe/code-rag-indexer/internal/query"
	"github.com/mvp-joe/code-rag-indexer/internal/watcher"
)

// TriggerReindex enqueues an upsert task for every non-ignored file under
// the project's root. With dryRun set, it reports the paths it would have
// enqueued without enqueuing them (spec.md §9 supplemental feature, useful
// for exercising the reconciliation-scan test scenarios without mutating
// state).
func (e *Engine) TriggerReindex(project string, dryRun bool) (*ReindexResult, error) {
	p, err := e.project(project)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(p.rootPath, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if p.matcher.IsIgnored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("engine: trigger_reindex walk: %w", err)
	}

	if dryRun {
		return &ReindexResult{Enqueued: 0, Paths: paths}, nil
	}

	for _, rel := range paths {
		p.tasks <- watcher.Task{Project: project, RelativePath: rel, Kind: watcher.Upsert}
	}
	return &ReindexResult{Enqueued: len(paths), Paths: paths}, nil
}

// Query runs the query planner against project's stores.
func (e *Engine) Query(ctx context.Context, project, queryText string, opts QueryOptions) (*query.Response, error) {
	p, err := e.project(project)
	if err != nil {
		return nil, err
	}
	if queryText == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInputInvalid)
	}
	return p.planner.Plan(ctx, query.Request{
		Project:             project,
		QueryText:           queryText,
		K:                   opts.K,
		MinScore:            opts.MinScore,
		Filter:              opts.Filter,
		IncludeGraphContext: opts.IncludeGraphContext,
	})
}

// GraphNeighbors returns nodeID's 1-hop neighbors in either direction.
func (e *Engine) GraphNeighbors(project, nodeID string) ([]graph.Node, error) {
	p, err := e.project(project)
	if err != nil {
		return nil, err
	}
	return p.graphs.Neighbors(nodeID, graph.DirBoth, nil)
}

// GraphSearchNodes returns nodes whose name contains substr.
func (e *Engine) GraphSearchNodes(project, substr string, limit int) ([]graph.Node, error) {
	p, err := e.project(project)
	if err != nil {
		return nil, err
	}
	return p.graphs.SearchNodes(substr, limit)
}

// GraphSearchEdges returns every edge touching a node whose name contains
// substr (graph.Store.SearchEdges is keyed by node id; this adapts it to
// spec.md §6's substring contract by first resolving matching nodes).
func (e *Engine) GraphSearchEdges(project, substr string) ([]graph.Edge, error) {
	p, err := e.project(project)
	if err != nil {
		return nil, err
	}
	nodes, err := p.graphs.SearchNodes(substr, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[graph.Edge]bool)
	var out []graph.Edge
	for _, n := range nodes {
		edges, err := p.graphs.SearchEdges(n.ID)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if !seen[edge] {
				seen[edge] = true
				out = append(out, edge)
			}
		}
	}
	return out, nil
}

// IndexerStatus returns the pipeline's running counters for one project.
func (e *Engine) IndexerStatus(project string) (IndexerStatus, error) {
	p, err := e.project(project)
	if err != nil {
		return IndexerStatus{}, err
	}
	stats := p.pipe.Stats()
	return IndexerStatus{
		Project:  project,
		Queued:   stats.Queued,
		InFlight: stats.InFlight,
		ErrorCounts: ErrorCounts{
			Transient: stats.Transient,
			Permanent: stats.Permanent,
		},
		Disabled: false,
	}, nil
}

// IndexerStatusAll returns IndexerStatus for every tracked project.
func (e *Engine) IndexerStatusAll() []IndexerStatus {
	e.mu.RLock()
	names := make([]string, 0, len(e.projects))
	for name := range e.projects {
		names = append(names, name)
	}
	e.mu.RUnlock()

	out := make([]IndexerStatus, 0, len(names))
	for _, name := range names {
		if status, err := e.IndexerStatus(name); err == nil {
			out = append(out, status)
		}
	}
	return out
}
