package config

import (
	"context"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPollInterval is how often Watcher checks the config file's
// mtime. File-change detection is a plain os.Stat poll rather than
// fsnotify: fsnotify is only a transitive dependency in the retrieval
// pack (pulled in indirectly by unrelated lint tooling), with no
// genuine application-level usage anywhere in it to ground a "this is
// how the pack watches files" decision, so it is deliberately not
// adopted here.
const DefaultPollInterval = 2 * time.Second

// Watcher polls a config file's mtime and installs a freshly-loaded
// snapshot into a Store whenever it changes.
type Watcher struct {
	Path     string
	Interval time.Duration
	Store    *Store
	Logger   *slog.Logger

	lastMod time.Time
}

// NewWatcher builds a Watcher for path, seeding lastMod from the
// file's current mtime (if it exists) so the first poll tick does not
// immediately re-trigger a reload of the snapshot the caller already
// loaded at startup.
func NewWatcher(path string, store *Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{Path: path, Interval: DefaultPollInterval, Store: store, Logger: logger}
	if fi, err := os.Stat(path); err == nil {
		w.lastMod = fi.ModTime()
	}
	return w
}

// CheckOnce stats the config file once and, if its mtime advanced
// since the last check, reloads and installs a new snapshot. A missing
// file, an unreadable file or a file that does not parse leaves the
// current snapshot in place (all but the missing file are logged) — a
// bad edit must never knock out a running gateway.
func (w *Watcher) CheckOnce() {
	fi, err := os.Stat(w.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.Logger.Warn("config watch: stat failed", "path", w.Path, "error", err)
		}
		return
	}
	if !fi.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = fi.ModTime()

	// Load falls back to DefaultConfig() for a file that does not parse,
	// so the new contents are checked here first.
	if data, rerr := os.ReadFile(w.Path); rerr == nil {
		var probe Config
		if perr := yaml.Unmarshal(data, &probe); perr != nil {
			w.Logger.Warn("config watch: parse failed, keeping previous snapshot", "path", w.Path, "error", perr)
			return
		}
	}

	cfg, err := Load(w.Path)
	if err != nil {
		w.Logger.Warn("config watch: reload failed, keeping previous snapshot", "path", w.Path, "error", err)
		return
	}
	w.Store.Swap(cfg)
	w.Logger.Info("config reloaded", "path", w.Path)
}

// Run polls until ctx is cancelled. The serve command (internal/cli)
// launches it as its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CheckOnce()
		}
	}
}
