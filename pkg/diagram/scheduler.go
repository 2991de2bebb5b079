package diagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Renderer turns diagram text into a visual artifact. renderID is fresh for
// every request. Implementations should honour ctx cancellation.
type Renderer interface {
	Render(ctx context.Context, renderID, code string) ([]byte, error)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(ctx context.Context, renderID, code string) ([]byte, error)

func (f RenderFunc) Render(ctx context.Context, renderID, code string) ([]byte, error) {
	return f(ctx, renderID, code)
}

// Result is the outcome of one render request.
type Result struct {
	Seq      uint64
	RenderID string
	Code     string
	Artifact []byte
	Err      error
	// Stale is set when a newer request was submitted before this one
	// finished. Callers must discard stale results.
	Stale bool
}

// Scheduler numbers render requests and suppresses superseded results.
// Submitting a new request cancels the context of the one in flight.
type Scheduler struct {
	renderer Renderer
	logger   *slog.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewScheduler wraps r. A nil logger uses slog.Default().
func NewScheduler(r Renderer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{renderer: r, logger: logger}
}

// RenderID formats the identifier handed to the renderer for seq.
func RenderID(seq uint64) string {
	return fmt.Sprintf("mermaid-svg-%d", seq)
}

// Render runs one request synchronously.
func (s *Scheduler) Render(ctx context.Context, code string) Result {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	if s.cancel != nil {
		s.cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	res := Result{Seq: seq, RenderID: RenderID(seq), Code: code}
	res.Artifact, res.Err = s.renderer.Render(rctx, res.RenderID, code)

	s.mu.Lock()
	res.Stale = seq != s.seq
	if !res.Stale {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()

	switch {
	case res.Stale:
		s.logger.Debug("discarding stale diagram render", "render_id", res.RenderID)
	case res.Err != nil && !errors.Is(res.Err, context.Canceled):
		s.logger.Warn("diagram render failed", "render_id", res.RenderID, "error", res.Err)
	}
	return res
}

// Submit renders in the background and calls deliver only for a result that
// is still current.
func (s *Scheduler) Submit(ctx context.Context, code string, deliver func(Result)) {
	go func() {
		res := s.Render(ctx, code)
		if !res.Stale && deliver != nil {
			deliver(res)
		}
	}()
}

// Seq returns the number of the most recent request.
func (s *Scheduler) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Cancel abandons the request in flight, if any, and marks it stale.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
