// Package export publishes the node forest outside the terminal: a live
// browser preview of the diagram and static SVG/PNG tree snapshots.
//
// This file implements the local preview server. It serves a page that
// renders the current diagram with mermaid.js and pushes new diagram text to
// the browser over a websocket as soon as it is published.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultPreviewPort is the first port tried by FindAvailablePort.
const DefaultPreviewPort = 9000

// PreviewPortRangeStart and PreviewPortRangeEnd bound automatic port selection.
const (
	PreviewPortRangeStart = 9000
	PreviewPortRangeEnd   = 9100
)

// DiagramUpdate is the payload sent to the browser.
type DiagramUpdate struct {
	Seq      uint64    `json:"seq"`
	RenderID string    `json:"render_id"`
	Code     string    `json:"code"`
	Updated  time.Time `json:"updated"`
}

// PreviewServer serves the current diagram to browsers.
type PreviewServer struct {
	port   int
	title  string
	logger *slog.Logger
	server *http.Server

	mu      sync.RWMutex
	current DiagramUpdate
	clients map[*websocket.Conn]struct{}
}

// NewPreviewServer creates a server for the given port. Port 0 is resolved
// by Run through FindAvailablePort.
func NewPreviewServer(port int, logger *slog.Logger) *PreviewServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreviewServer{
		port:    port,
		title:   "flowtree",
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// SetTitle changes the page title.
func (p *PreviewServer) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

// Publish replaces the current diagram and pushes it to connected browsers.
// It returns the new sequence number. Browsers ignore updates older than the
// one they last rendered.
func (p *PreviewServer) Publish(renderID, code string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = DiagramUpdate{
		Seq:      p.current.Seq + 1,
		RenderID: renderID,
		Code:     code,
		Updated:  time.Now(),
	}
	if p.current.RenderID == "" {
		p.current.RenderID = fmt.Sprintf("mermaid-svg-%d", p.current.Seq)
	}
	for conn := range p.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(p.current); err != nil {
			p.logger.Debug("dropping preview client", "error", err)
			delete(p.clients, conn)
			conn.Close()
		}
	}
	return p.current.Seq
}

// Render satisfies diagram.Renderer. The browser performs the actual
// layout, so there is no artifact.
func (p *PreviewServer) Render(ctx context.Context, renderID, code string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.Publish(renderID, code)
	return nil, nil
}

// Current returns the latest published diagram.
func (p *PreviewServer) Current() DiagramUpdate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Handler returns the HTTP routes.
func (p *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", noCacheMiddleware(http.HandlerFunc(p.indexHandler)))
	mux.Handle("/__preview__/diagram", noCacheMiddleware(http.HandlerFunc(p.diagramHandler)))
	mux.HandleFunc("/__preview__/status", p.statusHandler)
	mux.HandleFunc("/__preview__/ws", p.wsHandler)
	return mux
}

// Run serves until ctx is cancelled, optionally opening a browser.
func (p *PreviewServer) Run(ctx context.Context, openBrowser bool) error {
	if p.port == 0 {
		port, err := FindAvailablePort(PreviewPortRangeStart, PreviewPortRangeEnd)
		if err != nil {
			return fmt.Errorf("could not find available port: %w", err)
		}
		p.port = port
	}

	p.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", p.port),
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if openBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := OpenInBrowser(p.URL()); err != nil {
				p.logger.Warn("could not open browser", "url", p.URL(), "error", err)
			}
		}()
	}
	p.logger.Info("preview server running", "url", p.URL())

	select {
	case <-ctx.Done():
		return p.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the preview server.
func (p *PreviewServer) Stop() error {
	p.mu.Lock()
	for conn := range p.clients {
		conn.Close()
		delete(p.clients, conn)
	}
	p.mu.Unlock()

	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}

// Port returns the port the server is running on.
func (p *PreviewServer) Port() int {
	return p.port
}

// URL returns the full URL of the preview server.
func (p *PreviewServer) URL() string {
	return fmt.Sprintf("http://localhost:%d", p.port)
}

func (p *PreviewServer) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	p.mu.RLock()
	title := p.title
	p.mu.RUnlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, struct{ Title string }{title}); err != nil {
		p.logger.Warn("render preview page", "error", err)
	}
}

func (p *PreviewServer) diagramHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.Current())
}

// statusHandler returns the preview server status as JSON.
func (p *PreviewServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	p.mu.RLock()
	status := map[string]any{
		"status":  "running",
		"port":    p.port,
		"seq":     p.current.Seq,
		"clients": len(p.clients),
	}
	p.mu.RUnlock()
	json.NewEncoder(w).Encode(status)
}

var previewUpgrader = websocket.Upgrader{
	// The preview binds to loopback only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (p *PreviewServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := previewUpgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("preview websocket upgrade failed", "error", err)
		return
	}

	p.mu.Lock()
	p.clients[conn] = struct{}{}
	cur := p.current
	if cur.Seq > 0 {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		conn.WriteJSON(cur)
	}
	p.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	p.mu.Lock()
	delete(p.clients, conn)
	p.mu.Unlock()
	conn.Close()
}

// noCacheMiddleware adds headers to prevent browser caching.
func noCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FindAvailablePort finds an available port in the given range.
func FindAvailablePort(start, end int) (int, error) {
	for port := start; port <= end; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port in range %d-%d", start, end)
}
