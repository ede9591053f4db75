package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mvp-joe/code-rag-indexer/internal/hashcache"
)

// IgnoreMatcher is the subset of ignore.Matcher the watcher needs.
type IgnoreMatcher interface {
	IsIgnored(relPath string, isDir bool) bool
}

// HashCache is the subset of hashcache.Cache the watcher needs.
type HashCache interface {
	Algorithm() hashcache.Algorithm
	Seen(relPath, contentHash string) bool
	Snapshot() map[string]hashcache.Record
}

// Watcher observes one project's root_path and emits Tasks on Out. Start
// performs a full reconciliation scan before entering event mode, per
// spec: a path in the cache but missing on disk becomes a delete task, a
// path on disk with an unseen hash becomes an upsert task.
type Watcher struct {
	cfg     Config
	matcher IgnoreMatcher
	cache   HashCache
	out     chan<- Task
	log     *slog.Logger

	fs *fsnotify.Watcher

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	dirCount int

	cancel  context.CancelFunc
	doneCh  chan struct{}
	stopped sync.Once
}

// New builds a Watcher for one project. out is the shared (project-sharded)
// task channel the pipeline consumes from; sends block when the channel is
// full, which is the spec's intended backpressure on the producer.
//
// When the platform can't give us a native fsnotify watcher (e.g. an
// inotify instance limit, or no supported backend at all), New does not
// fail outright: it falls back to periodic polling reconciliation instead,
// at cfg.PollingInterval (SPEC_FULL.md §4.9).
func New(cfg Config, matcher IgnoreMatcher, cache HashCache, out chan<- Task, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		cfg:     cfg.withDefaults(),
		matcher: matcher,
		cache:   cache,
		out:     out,
		log:     logger,
		timers:  make(map[string]*time.Timer),
		doneCh:  make(chan struct{}),
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("watcher: fsnotify unavailable, falling back to polling", "error", err, "interval", w.cfg.PollingInterval)
		return w, nil
	}
	w.fs = fs
	return w, nil
}

// Start performs the reconciliation scan, registers directories with
// fsnotify (or, in polling mode, starts the periodic rescan), and begins the
// event loop. It returns once the reconciliation backlog has been drained
// and watching is live; the event loop continues on a background goroutine
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if w.fs != nil {
		if err := w.addTree(w.cfg.Root, 0); err != nil {
			cancel()
			return fmt.Errorf("watcher: register %s: %w", w.cfg.Root, err)
		}
	}

	w.reconcile()

	if w.fs != nil {
		go w.run(runCtx)
	} else {
		go w.runPolling(runCtx)
	}
	return nil
}

// Stop halts the event loop and releases the underlying fsnotify watcher,
// if one was created (polling mode has none).
func (w *Watcher) Stop() error {
	var err error
	w.stopped.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.doneCh
		} else {
			close(w.doneCh)
		}
		if w.fs != nil {
			err = w.fs.Close()
		}
	})
	return err
}

// addTree registers root and its non-ignored subdirectories with fsnotify.
func (w *Watcher) addTree(root string, depth int) error {
	if depth > w.cfg.MaxDepth || w.dirCount >= w.cfg.MaxDirectories {
		return nil
	}
	rel := w.relPath(root)
	if rel != "." && w.matcher.IsIgnored(rel, true) {
		return nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	if err := w.fs.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	w.dirCount++

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := w.addTree(filepath.Join(root, e.Name()), depth+1); err != nil {
			w.log.Warn("watcher: failed to watch subdirectory", "path", e.Name(), "error", err)
		}
	}
	return nil
}

// reconcile walks the project tree and the hash cache snapshot, emitting
// delete tasks for cached paths no longer on disk and upsert tasks for
// on-disk paths whose hash the cache hasn't seen. Per spec, this runs to
// completion before the watcher enters event mode.
func (w *Watcher) reconcile() {
	cached := w.cache.Snapshot()
	onDisk := make(map[string]struct{}, len(cached))

	var files []string
	_ = filepath.WalkDir(w.cfg.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == w.cfg.Root {
			return nil
		}
		rel := w.relPath(path)
		if w.matcher.IsIgnored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)

	for _, path := range files {
		rel := w.relPath(path)
		onDisk[rel] = struct{}{}
		hash, _, err := hashcache.HashFile(path, w.cache.Algorithm())
		if err != nil {
			w.log.Warn("watcher: reconciliation hash failed", "path", rel, "error", err)
			continue
		}
		if !w.cache.Seen(rel, hash) {
			w.emit(Task{Project: w.cfg.Project, RelativePath: rel, Kind: Upsert})
		}
	}

	for rel := range cached {
		if _, ok := onDisk[rel]; !ok {
			w.emit(Task{Project: w.cfg.Project, RelativePath: rel, Kind: Delete})
		}
	}
}

// run is the fsnotify event loop. Each event resets a per-path debounce
// timer; the timer firing (not the raw event) is what resolves to a Task.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer w.stopAllTimers()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher: fsnotify error", "error", err)
		}
	}
}

// runPolling re-runs reconcile on cfg.PollingInterval in place of fsnotify
// events, for the environments New falls back to polling in. Every tick
// re-walks the whole tree, so it naturally catches creates, writes, deletes,
// and renames alike without any per-event bookkeeping.
func (w *Watcher) runPolling(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcile()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name, 0); err != nil {
				w.log.Warn("watcher: failed to watch new directory", "path", event.Name, "error", err)
			}
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	rel := w.relPath(event.Name)
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}
	if w.matcher.IsIgnored(rel, isDir) {
		return
	}

	w.debounce(event.Name, rel)
}

// debounce coalesces repeated events on the same path within cfg.Debounce,
// last-writer-wins: each new event for a path replaces the pending timer.
func (w *Watcher) debounce(absPath, rel string) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if t, ok := w.timers[rel]; ok {
		t.Stop()
	}
	w.timers[rel] = time.AfterFunc(w.cfg.Debounce, func() {
		w.resolve(absPath, rel)
		w.timersMu.Lock()
		delete(w.timers, rel)
		w.timersMu.Unlock()
	})
}

// resolve decides upsert vs. delete for a settled path. A missing file
// (deleted, or the old half of a move) always produces a delete task
// without hashing. An existing file is hashed and compared against the
// cache; an unchanged hash produces no task. This naturally decomposes a
// move into delete(old)+upsert(new) without special-casing fsnotify's
// rename event, since both halves settle through this same path.
func (w *Watcher) resolve(absPath, rel string) {
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		w.emit(Task{Project: w.cfg.Project, RelativePath: rel, Kind: Delete})
		return
	}

	hash, _, err := hashcache.HashFile(absPath, w.cache.Algorithm())
	if err != nil {
		w.log.Warn("watcher: hash failed", "path", rel, "error", err)
		return
	}
	if w.cache.Seen(rel, hash) {
		return
	}
	w.emit(Task{Project: w.cfg.Project, RelativePath: rel, Kind: Upsert})
}

// emit blocks on a full output queue; this is the spec's intended
// backpressure onto the watcher rather than unbounded buffering.
func (w *Watcher) emit(t Task) {
	w.out <- t
}

func (w *Watcher) relPath(absPath string) string {
	rel, err := filepath.Rel(w.cfg.Root, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) stopAllTimers() {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()
	for _, t := range w.timers {
		t.Stop()
	}
}
