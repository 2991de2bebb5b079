package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_Coalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })
	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if d.Pending() {
		t.Error("nothing should be pending after firing")
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })
	d.Trigger()
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("cancelled callback ran")
	}
}

func TestDebouncer_Flush(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(time.Hour, func() { calls.Add(1) })
	d.Flush()
	if calls.Load() != 0 {
		t.Fatal("flush without trigger must not run")
	}
	d.Trigger()
	d.Flush()
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if d.Pending() {
		t.Error("flush should clear pending")
	}
}

func TestDebouncer_DefaultDuration(t *testing.T) {
	if d := NewDebouncer(0, func() {}); d.Duration() != DefaultDebounceDuration {
		t.Errorf("duration = %v", d.Duration())
	}
}

func TestWatcher_Relevant(t *testing.T) {
	w := New("/data/nodes.db", func() {}, Config{})
	tests := map[string]bool{
		"/data/nodes.db":         true,
		"/data/nodes.db-wal":     true,
		"/data/nodes.db-shm":     true,
		"/data/nodes.db-journal": true,
		"/data/other.db":         false,
		"/data/nodes.db.bak":     false,
	}
	for name, want := range tests {
		if got := w.relevant(name); got != want {
			t.Errorf("relevant(%q) = %v, want %v", name, got, want)
		}
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change")
	}
}

func TestWatcher_DetectsWrites(t *testing.T) {
	for _, poll := range []bool{false, true} {
		name := "fsnotify"
		if poll {
			name = "poll"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "nodes.db")
			if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
				t.Fatal(err)
			}

			changed := make(chan struct{}, 8)
			w := New(path, func() { changed <- struct{}{} }, Config{
				Debounce:     10 * time.Millisecond,
				PollInterval: 20 * time.Millisecond,
				ForcePoll:    poll,
			})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := w.Start(ctx); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer w.Close()

			// Unrelated files are ignored by the fsnotify path.
			os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

			time.Sleep(30 * time.Millisecond)
			if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
				t.Fatal(err)
			}
			waitFor(t, changed)
		})
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope", "nodes.db"), func() {}, Config{})
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nodes.db"), func() {}, Config{ForcePoll: true})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !w.Polling() {
		t.Error("expected polling mode")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
