// Package watcher observes a project's filesystem tree and turns raw
// events into IndexTasks: debounced, ignore-filtered, hash-checked.
package watcher

import "time"

// TaskKind distinguishes a content change from a removal.
type TaskKind string

const (
	Upsert TaskKind = "upsert"
	Delete TaskKind = "delete"
)

// Task is generated by the watcher and consumed exactly once by the
// indexer pipeline.
type Task struct {
	Project      string
	RelativePath string
	Kind         TaskKind
}

// Config carries one project's watch parameters.
type Config struct {
	Project  string
	Root     string
	Debounce time.Duration // default 250ms per-path coalesce window

	// PollingInterval sets the cadence of the fallback reconciliation scan
	// used in place of fsnotify events when the native watcher could not be
	// created (e.g. the platform has none, or an inotify instance limit was
	// hit). Zero uses the default; it has no effect when fsnotify is live.
	PollingInterval time.Duration

	// MaxDirectories and MaxDepth bound the fsnotify watch set against
	// pathological trees (symlink loops, generated output directories that
	// slipped past the ignore matcher). Zero means unbounded.
	MaxDirectories int
	MaxDepth       int
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 250 * time.Millisecond
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = 2 * time.Second
	}
	if c.MaxDirectories <= 0 {
		c.MaxDirectories = 4000
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 64
	}
	return c
}
