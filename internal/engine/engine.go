// Package engine wires the Ignore Matcher, Hash Cache, Parser Pool,
// Chunker, Relationship Extractor, Embedder Client, Vector Store, Graph
// Store, Project Watcher, Indexer Pipeline, and Query Planner into the
// programmatic operations spec.md §6 exposes to collaborators.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mvp-joe/code-rag-indexer/internal/config"
	"github.com/mvp-joe/code-rag-indexer/internal/embedder"
	"github.com/mvp-joe/code-rag-indexer/internal/parserpool"
)

// Engine owns the set of tracked projects and the resources shared across
// them (the embedder client is a pooled HTTP client; the parser pool
// leases tree-sitter parsers by language) — both are safe for concurrent
// use by multiple projects' pipelines.
type Engine struct {
	cfg    *config.Config
	log    *slog.Logger
	embed  *embedder.Client
	parser *parserpool.Pool

	mu       sync.RWMutex
	projects map[string]*project
}

// New builds an Engine from a loaded configuration. It does not open any
// projects; call AddProject for each one.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	embedCfg := embedder.Config{
		Endpoint:    cfg.Embedding.BaseURL,
		BatchSize:   cfg.Embedding.BatchSize,
		MaxInFlight: cfg.Embedding.MaxInFlight,
		Timeout:     cfg.Embedding.RequestTimeout,
		MaxAttempts: cfg.Embedding.Retry.MaxAttempts,
	}
	return &Engine{
		cfg:      cfg,
		log:      logger,
		embed:    embedder.New(embedCfg, logger),
		parser:   parserpool.New(),
		projects: make(map[string]*project),
	}
}

// AddProject opens a project rooted at path under the given name, starting
// its watcher (which runs a synchronous reconciliation scan before
// entering event mode) and its pipeline.
func (e *Engine) AddProject(name, path string) error {
	rootPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}

	e.mu.Lock()
	if _, exists := e.projects[name]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProjectExists, name)
	}
	for _, other := range e.projects {
		if rootsOverlap(rootPath, other.rootPath) {
			e.mu.Unlock()
			return fmt.Errorf("%w: %s overlaps project %s (%s)", ErrProjectOverlap, rootPath, other.name, other.rootPath)
		}
	}
	e.mu.Unlock()

	p, err := openProject(context.Background(), name, rootPath, e.cfg, e)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.projects[name]; exists {
		p.shutdown()
		return fmt.Errorf("%w: %s", ErrProjectExists, name)
	}
	e.projects[name] = p
	return nil
}

// rootsOverlap reports whether a and b are the same directory or one
// contains the other (Open Question resolved: rejected at add_project,
// spec.md §9).
func rootsOverlap(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+string(filepath.Separator)) || strings.HasPrefix(b, a+string(filepath.Separator))
}

// RemoveProject stops a project's watcher and pipeline, closes its stores,
// and destroys its data_dir, per spec.md §3's lifecycle.
func (e *Engine) RemoveProject(name string) error {
	e.mu.Lock()
	p, ok := e.projects[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: unknown project %s", ErrInputInvalid, name)
	}
	delete(e.projects, name)
	e.mu.Unlock()

	p.shutdown()
	if err := os.RemoveAll(p.dataDir); err != nil {
		return fmt.Errorf("engine: remove data dir: %w", err)
	}
	return nil
}

// ReinitializeProject erases a project's data_dir and rebuilds it from
// scratch: fresh stores, then a full reconciliation scan via a new
// watcher, per spec.md §3.
func (e *Engine) ReinitializeProject(name string) error {
	e.mu.Lock()
	p, ok := e.projects[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: unknown project %s", ErrInputInvalid, name)
	}
	rootPath := p.rootPath
	e.mu.Unlock()

	p.shutdown()
	if err := os.RemoveAll(p.dataDir); err != nil {
		return fmt.Errorf("engine: remove data dir: %w", err)
	}

	fresh, err := openProject(context.Background(), name, rootPath, e.cfg, e)
	if err != nil {
		e.mu.Lock()
		delete(e.projects, name)
		e.mu.Unlock()
		return fmt.Errorf("engine: reopen project: %w", err)
	}

	e.mu.Lock()
	e.projects[name] = fresh
	e.mu.Unlock()
	return nil
}

// ListProjects returns a snapshot of every tracked project.
func (e *Engine) ListProjects() []ProjectInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ProjectInfo, 0, len(e.projects))
	for _, p := range e.projects {
		out = append(out, p.info())
	}
	return out
}

// project looks up a tracked, non-disabled project by name.
func (e *Engine) project(name string) (*project, error) {
	e.mu.RLock()
	p, ok := e.projects[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown project %s", ErrInputInvalid, name)
	}
	p.mu.RLock()
	disabled := p.disabled
	p.mu.RUnlock()
	if disabled {
		return nil, fmt.Errorf("%w: %s", ErrProjectDisabled, name)
	}
	return p, nil
}

// Close stops every tracked project. Intended for process shutdown.
func (e *Engine) Close() {
	e.mu.Lock()
	projects := e.projects
	e.projects = make(map[string]*project)
	e.mu.Unlock()

	for _, p := range projects {
		p.shutdown()
	}
}
