package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is used when fsnotify is unavailable.
const DefaultPollInterval = 2 * time.Second

// Config configures a Watcher.
type Config struct {
	Debounce     time.Duration
	PollInterval time.Duration
	// ForcePoll skips fsnotify, e.g. on network filesystems.
	ForcePoll bool
	Logger    *slog.Logger
}

// Watcher calls onChange after the file at path, or its SQLite sidecars
// (-wal, -shm, -journal), changes.
type Watcher struct {
	path     string
	cfg      Config
	logger   *slog.Logger
	debounce *Debouncer

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	polling bool
	done    chan struct{}
}

// New returns an unstarted watcher.
func New(path string, onChange func(), cfg Config) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		cfg:      cfg,
		logger:   logger,
		debounce: NewDebouncer(cfg.Debounce, onChange),
		done:     make(chan struct{}),
	}
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Polling reports whether the watcher fell back to polling.
func (w *Watcher) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polling
}

// Start begins watching in the background until ctx is cancelled or Close is
// called. fsnotify is tried first; polling is the fallback.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if !w.cfg.ForcePoll {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(dir)
			if err == nil {
				w.mu.Lock()
				w.fsw = fsw
				w.mu.Unlock()
				go w.runNotify(ctx, fsw)
				w.logger.Debug("watching database", "path", w.path, "mode", "fsnotify")
				return nil
			}
			fsw.Close()
		}
		w.logger.Warn("fsnotify unavailable, polling instead", "path", w.path, "error", err)
	}

	w.mu.Lock()
	w.polling = true
	w.mu.Unlock()
	go w.runPoll(ctx)
	w.logger.Debug("watching database", "path", w.path, "mode", "poll", "interval", w.cfg.PollInterval)
	return nil
}

// Close stops watching and drops any pending notification.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	w.debounce.Cancel()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// relevant reports whether name is the database or one of its sidecars.
func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(w.path)
	got := filepath.Base(name)
	if got == base {
		return true
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if got == base+suffix {
			return true
		}
	}
	return false
}

func (w *Watcher) runNotify(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			w.debounce.Trigger()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.debounce.Trigger()
				continue
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// stamp summarizes size and mtime of the database and its WAL.
func (w *Watcher) stamp() string {
	var parts []string
	for _, name := range []string{w.path, w.path + "-wal"} {
		info, err := os.Stat(name)
		if err != nil {
			parts = append(parts, "-")
			continue
		}
		parts = append(parts, fmt.Sprintf("%d@%d", info.Size(), info.ModTime().UnixNano()))
	}
	return strings.Join(parts, "|")
}

func (w *Watcher) runPoll(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	last := w.stamp()
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case <-w.done:
			return
		case <-ticker.C:
			if cur := w.stamp(); cur != last {
				last = cur
				w.debounce.Trigger()
			}
		}
	}
}
