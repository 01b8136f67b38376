package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultPollInterval is how often a [Watcher] stats its file.
const DefaultPollInterval = 5 * time.Second

// Reload describes one accepted change of the config file.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher reloads a config file when its content changes. A file that fails
// to parse or validate is logged and ignored; the last good config stays
// current. Reloads apply the same environment overlay as [Load].
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(Reload)

	mu    sync.Mutex
	cur   *Config
	stamp fileStamp
}

// fileStamp identifies a version of the file. mod is compared first so an
// untouched file is never read.
type fileStamp struct {
	mod time.Time
	sum [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultPollInterval]. Non-positive values are
// ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a watcher holding it. apply may be nil.
// Nothing is polled until [Watcher.Run].
func NewWatcher(path string, apply func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultPollInterval, apply: apply}
	for _, opt := range opts {
		opt(w)
	}
	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.cur, w.stamp = cfg, stamp
	return w, nil
}

// Current returns the last config that loaded cleanly.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

// Run polls until ctx is done. It always returns nil so it can sit in an
// errgroup beside the other long-running parts.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Poll(); err != nil {
				slog.Warn("config reload skipped", "path", w.path, "err", err)
			}
		}
	}
}

// Poll checks the file once. It reports whether a new config was accepted
// and handed to the callback. The callback runs on the caller's goroutine
// without the watcher's lock held.
func (w *Watcher) Poll() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	same := info.ModTime().Equal(w.stamp.mod)
	w.mu.Unlock()
	if same {
		return false, nil
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if stamp.sum == w.stamp.sum {
		w.stamp = stamp
		w.mu.Unlock()
		return false, nil
	}
	r := Reload{Old: w.cur, New: cfg, Diff: Diff(w.cur, cfg)}
	w.cur, w.stamp = cfg, stamp
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path, "session_changed", r.Diff.SessionChanged(), "seed_changed", r.Diff.SeedChanged)
	if w.apply != nil {
		w.apply(r)
	}
	return true, nil
}

func (w *Watcher) read() (*Config, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := parse(bytes.NewReader(data), true)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mod: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
