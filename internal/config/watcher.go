package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 2 * time.Second

// ReloadFunc receives a newly loaded config and what changed compared to the
// previous one.
type ReloadFunc func(cfg *Config, d ConfigDiff)

// Watcher polls a config file while a call runs. A rewritten file that still
// validates replaces the current config; onReload is called only when the
// change touches something, so saving an identical file is a no-op.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
}

// fileStamp is the cheap pre-check before a file is parsed again.
type fileStamp struct {
	mtime time.Time
	size  int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mtime: info.ModTime(), size: info.Size()}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path. Polling starts with [Watcher.Run].
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := stampOf(info) == w.stamp
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, stamp, err := w.load()
	if err != nil {
		slog.Warn("config: ignoring invalid edit", "path", w.path, "err", err)
		// Report a broken file once per edit.
		w.mu.Lock()
		w.stamp = stamp
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.stamp = stamp
	d := Diff(w.current, cfg)
	if d.Empty() {
		w.mu.Unlock()
		return
	}
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path, "live", d.Live(), "restart_required", d.RestartRequired)
	if w.onReload != nil {
		w.onReload(cfg, d)
	}
}

// load parses and validates the file. The stamp is returned even when the
// content is invalid.
func (w *Watcher) load() (*Config, fileStamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileStamp{}, err
	}
	stamp := stampOf(info)

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, stamp, err
	}
	return cfg, stamp, nil
}
