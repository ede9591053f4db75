package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mvp-joe/code-rag-indexer/internal/chunker"
	"github.com/mvp-joe/code-rag-indexer/internal/config"
	"github.com/mvp-joe/code-rag-indexer/internal/graph"
	"github.com/mvp-joe/code-rag-indexer/internal/hashcache"
	"github.com/mvp-joe/code-rag-indexer/internal/ignore"
	"github.com/mvp-joe/code-rag-indexer/internal/pipeline"
	"github.com/mvp-joe/code-rag-indexer/internal/query"
	"github.com/mvp-joe/code-rag-indexer/internal/vectorstore"
	"github.com/mvp-joe/code-rag-indexer/internal/watcher"
)

const dataDirName = ".code-indexer"

// project is one tracked project's live state: its own stores, watcher,
// pipeline, and planner, per spec.md §3's ownership rule ("a project owns
// its Hash Cache, Vector Store collection, Graph Store, and Watcher
// exclusively").
type project struct {
	name     string
	rootPath string
	dataDir  string

	mu       sync.RWMutex
	disabled bool

	matcher *ignore.Matcher
	hashes  *hashcache.Cache
	vectors *vectorstore.Store
	graphs  *graph.Store
	watch   *watcher.Watcher
	pipe    *pipeline.Pipeline
	planner *query.Planner

	tasks  chan watcher.Task
	cancel context.CancelFunc
}

func hashAlgorithm(name string) hashcache.Algorithm {
	if strings.ToLower(name) == string(hashcache.XXHash) {
		return hashcache.XXHash
	}
	return hashcache.SHA256
}

// openProject opens (or creates) a project's on-disk state and starts its
// watcher and pipeline. Callers must hold no lock; openProject does not
// touch Engine's project map.
func openProject(ctx context.Context, name, rootPath string, cfg *config.Config, e *Engine) (*project, error) {
	dataDir := filepath.Join(rootPath, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	matcher, err := buildMatcher(rootPath, dataDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: build ignore matcher: %w", err)
	}

	hashes, err := hashcache.Open(filepath.Join(dataDir, "hash_cache"), hashAlgorithm(cfg.Indexer.HashAlgorithm))
	if err != nil {
		return nil, fmt.Errorf("engine: open hash cache: %w", err)
	}

	vectors, err := vectorstore.Open(filepath.Join(dataDir, "vector"), e.log)
	if err != nil {
		return nil, fmt.Errorf("engine: open vector store: %w", err)
	}

	graphs, err := graph.Open(filepath.Join(dataDir, "graph"), e.log)
	if err != nil {
		return nil, fmt.Errorf("engine: open graph store: %w", err)
	}

	p := &project{
		name:     name,
		rootPath: rootPath,
		dataDir:  dataDir,
		matcher:  matcher,
		hashes:   hashes,
		vectors:  vectors,
		graphs:   graphs,
		tasks:    make(chan watcher.Task, 256),
	}

	planner, err := query.New(vectors, graphs, e.embed, query.Config{EmbedModel: cfg.Embedding.Model})
	if err != nil {
		closeProjectStores(p)
		return nil, fmt.Errorf("engine: build query planner: %w", err)
	}
	p.planner = planner

	p.pipe = pipeline.New(name, rootPath, pipeline.Deps{
		Parser:  e.parser,
		Embed:   e.embed,
		Vectors: vectors,
		Graph:   graphs,
		Hashes:  hashes,
		Planner: planner,
	}, pipeline.Config{
		MaxWorkers: cfg.Indexer.MaxWorkers,
		EmbedModel: cfg.Embedding.Model,
		ChunkCfg: chunker.Config{
			MaxChunkSize: cfg.Chunking.MaxChunkSize,
			MinChunkSize: cfg.Chunking.MinChunkSize,
			ChunkOverlap: cfg.Chunking.ChunkOverlap,
		},
	}, e.log)

	w, err := watcher.New(watcher.Config{
		Project:         name,
		Root:            rootPath,
		Debounce:        cfg.Indexer.DebounceDelay,
		PollingInterval: cfg.Indexer.PollingInterval,
	}, matcher, hashes, p.tasks, e.log)
	if err != nil {
		closeProjectStores(p)
		return nil, fmt.Errorf("engine: build watcher: %w", err)
	}
	p.watch = w

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	// The pipeline consumer must be running before the watcher's initial
	// reconciliation scan, which emit()s one upsert per changed file onto
	// p.tasks and blocks once that channel's buffer fills (watcher.go's
	// emit is a hard blocking send). Starting it first drains that backlog
	// as it's produced instead of deadlocking on the first large repo.
	go p.pipe.Run(runCtx, p.tasks)

	if err := w.Start(runCtx); err != nil {
		cancel()
		closeProjectStores(p)
		return nil, fmt.Errorf("engine: start watcher: %w", err)
	}

	return p, nil
}

// buildMatcher compiles the engine-default and configured ignore patterns
// plus the project's own .code-indexer/ignore file (spec.md §3's "project
// ignore file").
func buildMatcher(rootPath, dataDir string, cfg *config.Config) (*ignore.Matcher, error) {
	b := ignore.NewBuilder().AddGlobs(cfg.Indexer.IgnorePatterns)
	b.AddPatterns([]string{dataDirName + "/**"})
	b.AddExtensions([]string{".pyc", ".pyo", ".class", ".o", ".so", ".dll", ".exe"})
	if err := b.AddFile(filepath.Join(dataDir, "ignore")); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func closeProjectStores(p *project) {
	if p.vectors != nil {
		p.vectors.Close()
	}
	if p.graphs != nil {
		p.graphs.Close()
	}
}

// shutdown stops the watcher and pipeline and closes the stores. Safe to
// call once per project.
func (p *project) shutdown() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.watch != nil {
		p.watch.Stop()
	}
	close(p.tasks)
	closeProjectStores(p)
}

func (p *project) info() ProjectInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProjectInfo{
		Name:     p.name,
		RootPath: p.rootPath,
		DataDir:  p.dataDir,
		Disabled: p.disabled,
	}
}
