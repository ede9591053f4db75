// Package pipeline implements the bounded worker pool that turns IndexTasks
// from the watcher into per-file writes to the vector and graph stores.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/semaphore"

	"github.com/mvp-joe/code-rag-indexer/internal/chunker"
	"github.com/mvp-joe/code-rag-indexer/internal/embedder"
	"github.com/mvp-joe/code-rag-indexer/internal/graph"
	"github.com/mvp-joe/code-rag-indexer/internal/hashcache"
	"github.com/mvp-joe/code-rag-indexer/internal/parserpool"
	"github.com/mvp-joe/code-rag-indexer/internal/query"
	"github.com/mvp-joe/code-rag-indexer/internal/vectorstore"
	"github.com/mvp-joe/code-rag-indexer/internal/watcher"
)

// Config carries one pipeline's tunables.
type Config struct {
	MaxWorkers int
	EmbedModel string
	ChunkCfg   chunker.Config
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.EmbedModel == "" {
		c.EmbedModel = "default"
	}
	if c.ChunkCfg == (chunker.Config{}) {
		c.ChunkCfg = chunker.DefaultConfig()
	}
	return c
}

// Stats is a running, thread-safe counter of one pipeline's lifetime work,
// surfaced via Pipeline.Stats for the engine's indexer_status operation.
type Stats struct {
	mu        sync.Mutex
	Upserted  int
	Deleted   int
	Failed    int
	Queued    int
	InFlight  int
	Transient int
	Permanent int
}

func (s *Stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Upserted:  s.Upserted,
		Deleted:   s.Deleted,
		Failed:    s.Failed,
		Queued:    s.Queued,
		InFlight:  s.InFlight,
		Transient: s.Transient,
		Permanent: s.Permanent,
	}
}

// Pipeline is one project's indexing worker pool: it consumes Tasks in
// arrival order per file (different files proceed in parallel up to
// cfg.MaxWorkers) and performs the upsert/delete algorithm of
// SPEC_FULL.md §4.10 against that project's stores.
type Pipeline struct {
	project string
	root    string
	cfg     Config
	log     *slog.Logger

	parser  *parserpool.Pool
	embed   *embedder.Client
	vectors *vectorstore.Store
	graphs  *graph.Store
	hashes  *hashcache.Cache
	planner *query.Planner

	sem *semaphore.Weighted

	mu     sync.Mutex
	queues map[string]*fileQueue
	wg     sync.WaitGroup

	stats Stats
}

// fileQueue serializes tasks for one relative path: at most one is ever
// in flight, later arrivals wait in queue, preserving arrival order.
type fileQueue struct {
	pending []watcher.Task
	busy    bool
}

// Deps bundles the shared, already-open components a Pipeline drives.
type Deps struct {
	Parser  *parserpool.Pool
	Embed   *embedder.Client
	Vectors *vectorstore.Store
	Graph   *graph.Store
	Hashes  *hashcache.Cache
	Planner *query.Planner
}

// New builds a Pipeline for one project rooted at root.
func New(project, root string, deps Deps, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Pipeline{
		project: project,
		root:    root,
		cfg:     cfg,
		log:     logger,
		parser:  deps.Parser,
		embed:   deps.Embed,
		vectors: deps.Vectors,
		graphs:  deps.Graph,
		hashes:  deps.Hashes,
		planner: deps.Planner,
		sem:     semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		queues:  make(map[string]*fileQueue),
	}
}

// Stats returns a point-in-time snapshot of processed task counts.
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot()
}

// Run consumes tasks from in until the channel closes or ctx is cancelled,
// then waits for in-flight work to finish.
func (p *Pipeline) Run(ctx context.Context, in <-chan watcher.Task) {
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case task, ok := <-in:
			if !ok {
				p.wg.Wait()
				return
			}
			p.submit(ctx, task)
		}
	}
}

// submit enqueues task under its file key, dispatching immediately if no
// task for that file is currently in flight.
func (p *Pipeline) submit(ctx context.Context, task watcher.Task) {
	p.stats.mu.Lock()
	p.stats.Queued++
	p.stats.mu.Unlock()

	p.mu.Lock()
	q, ok := p.queues[task.RelativePath]
	if !ok {
		q = &fileQueue{}
		p.queues[task.RelativePath] = q
	}
	if q.busy {
		q.pending = append(q.pending, task)
		p.mu.Unlock()
		return
	}
	q.busy = true
	p.mu.Unlock()

	p.dispatch(ctx, task)
}

// dispatch bounds concurrent in-flight tasks with the worker semaphore and,
// on completion, pulls the next queued task for the same file (if any).
func (p *Pipeline) dispatch(ctx context.Context, task watcher.Task) {
	p.stats.mu.Lock()
	p.stats.Queued--
	p.stats.InFlight++
	p.stats.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.stats.mu.Lock()
			p.stats.InFlight--
			p.stats.mu.Unlock()
			p.finishFile(ctx, task.RelativePath)
			return
		}
		err := p.process(ctx, task)
		p.sem.Release(1)

		p.stats.mu.Lock()
		p.stats.InFlight--
		if err != nil {
			p.stats.Failed++
			if errors.Is(err, embedder.ErrPermanentUpstream) {
				p.stats.Permanent++
			} else {
				p.stats.Transient++
			}
			p.log.Warn("pipeline: task failed", "project", p.project, "path", task.RelativePath, "kind", task.Kind, "error", err)
		} else if task.Kind == watcher.Delete {
			p.stats.Deleted++
		} else {
			p.stats.Upserted++
		}
		p.stats.mu.Unlock()

		p.finishFile(ctx, task.RelativePath)
	}()
}

// finishFile pops the next pending task for relPath, if any, and dispatches
// it; otherwise marks the file idle.
func (p *Pipeline) finishFile(ctx context.Context, relPath string) {
	p.mu.Lock()
	q := p.queues[relPath]
	if q == nil {
		p.mu.Unlock()
		return
	}
	if len(q.pending) == 0 {
		q.busy = false
		delete(p.queues, relPath)
		p.mu.Unlock()
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	p.mu.Unlock()

	p.dispatch(ctx, next)
}

// process runs the upsert or delete algorithm for one task. Each task gets
// a correlation id solely for tying together the log lines one task
// produces across parse/chunk/extract/embed/write.
func (p *Pipeline) process(ctx context.Context, task watcher.Task) error {
	correlationID := uuid.NewString()
	log := p.log.With("task_id", correlationID, "project", p.project, "path", task.RelativePath)

	if task.Kind == watcher.Delete {
		log.Debug("pipeline: processing delete")
		return p.processDelete(task.RelativePath)
	}
	log.Debug("pipeline: processing upsert")
	return p.processUpsert(ctx, task.RelativePath)
}

// parse returns a syntax tree for content when ft calls for the AST
// strategy and the parser pool supports its language; nil otherwise (the
// chunker and relationship extractor both treat a nil tree as a signal to
// fall back, per spec.md §4.3's "failure to parse is non-fatal").
func (p *Pipeline) parse(ctx context.Context, ft fileType, content []byte) (*sitter.Tree, error) {
	if ft.strategy != chunker.StrategyAST || !p.parser.Supports(ft.language) {
		return nil, nil
	}
	return p.parser.Parse(ctx, ft.language, content)
}

func (p *Pipeline) processDelete(relPath string) error {
	if err := p.vectors.DeleteByPath(relPath); err != nil {
		return fmt.Errorf("pipeline: vector delete_by_path: %w", err)
	}
	if err := p.graphs.RemoveByFile(relPath); err != nil {
		return fmt.Errorf("pipeline: graph remove_by_file: %w", err)
	}
	if err := p.hashes.Drop(relPath); err != nil {
		return fmt.Errorf("pipeline: hash cache drop: %w", err)
	}
	if p.planner != nil {
		p.planner.Invalidate()
	}
	return nil
}

func (p *Pipeline) processUpsert(ctx context.Context, relPath string) error {
	absPath := filepath.Join(p.root, relPath)

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// The file vanished between enqueue and processing; the watcher
			// will have emitted (or will emit) a delete task for it.
			return nil
		}
		return fmt.Errorf("pipeline: read %s: %w", relPath, err)
	}

	hash, size, err := hashcache.HashFile(absPath, p.hashes.Algorithm())
	if err != nil {
		return fmt.Errorf("pipeline: hash %s: %w", relPath, err)
	}
	if p.hashes.Seen(relPath, hash) {
		// A newer event already caught this path up to this exact content;
		// this stale task is a no-op (supersession).
		return nil
	}

	ft := classify(relPath)
	parsed, err := p.parse(ctx, ft, content)
	if err != nil {
		p.log.Warn("pipeline: parse failed, falling back to sliding window", "path", relPath, "error", err)
	}

	chunks, err := chunker.Chunk(ctx, chunker.Input{
		Project:      p.project,
		RelativePath: relPath,
		Language:     ft.language,
		Strategy:     ft.strategy,
		Content:      content,
		Tree:         parsed,
	}, p.cfg.ChunkCfg)
	if err != nil {
		return fmt.Errorf("pipeline: chunk %s: %w", relPath, err)
	}

	fg := graph.Extract(relPath, ft.language, content, parsed)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var transientRetries int
	embeddings, err := p.embed.Embed(ctx, embedder.Request{
		Texts: texts,
		Model: p.cfg.EmbedModel,
		Mode:  embedder.ModePassage,
		OnTransientRetry: func() { transientRetries++ },
	})
	if transientRetries > 0 {
		p.stats.mu.Lock()
		p.stats.Transient += transientRetries
		p.stats.mu.Unlock()
	}
	if err != nil {
		// Embedding failure is permanent for this task: neither store is
		// touched, the hash cache is not updated, and the watcher's next
		// change to this path (or a manual reindex) will retry.
		return fmt.Errorf("pipeline: embed %s: %w", relPath, err)
	}

	records := make([]vectorstore.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.ChunkRecord{
			ChunkID: c.ID,
			Vector:  embeddings[i].Vector,
			Text:    c.Text,
			Metadata: vectorstore.Metadata{
				Project:      p.project,
				RelativePath: c.RelativePath,
				Language:     c.Language,
				Kind:         string(c.Kind),
				Name:         c.Name,
				StartLine:    c.StartLine,
				EndLine:      c.EndLine,
			},
		}
	}

	if err := p.vectors.DeleteByPath(relPath); err != nil {
		return fmt.Errorf("pipeline: vector delete_by_path: %w", err)
	}
	if err := p.vectors.UpsertMany(records); err != nil {
		return fmt.Errorf("pipeline: vector upsert_many: %w", err)
	}
	if err := p.graphs.ApplyDiff(fg); err != nil {
		return fmt.Errorf("pipeline: graph apply_diff: %w", err)
	}
	if err := p.hashes.Put(hashcache.Record{RelativePath: relPath, ContentHash: hash, Size: size}); err != nil {
		return fmt.Errorf("pipeline: hash cache put: %w", err)
	}
	if p.planner != nil {
		p.planner.Invalidate()
	}
	return nil
}
