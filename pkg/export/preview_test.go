package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kraitsura/flowtree/pkg/diagram"
)

func TestNewPreviewServer(t *testing.T) {
	server := NewPreviewServer(8080, nil)
	if server == nil {
		t.Fatal("NewPreviewServer returned nil")
	}
	if server.Port() != 8080 {
		t.Errorf("Expected port 8080, got %d", server.Port())
	}
	if server.URL() != "http://localhost:8080" {
		t.Errorf("unexpected URL %s", server.URL())
	}
	if server.Current().Seq != 0 {
		t.Error("new server should have no diagram")
	}
}

func TestFindAvailablePort(t *testing.T) {
	port, err := FindAvailablePort(19000, 19100)
	if err != nil {
		t.Errorf("FindAvailablePort failed: %v", err)
	}
	if port < 19000 || port > 19100 {
		t.Errorf("Port %d is outside expected range 19000-19100", port)
	}
}

func TestPreviewServer_PublishSequence(t *testing.T) {
	p := NewPreviewServer(0, nil)
	if seq := p.Publish("", diagram.EmptyDiagram); seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}
	if got := p.Current(); got.RenderID != "mermaid-svg-1" || got.Code != diagram.EmptyDiagram {
		t.Errorf("current = %+v", got)
	}
	p.Publish("mermaid-svg-7", "graph TD\n  n1[\"x\"]")
	if got := p.Current(); got.Seq != 2 || got.RenderID != "mermaid-svg-7" {
		t.Errorf("current = %+v", got)
	}
}

func TestPreviewServer_ActsAsRenderer(t *testing.T) {
	p := NewPreviewServer(0, nil)
	sched := diagram.NewScheduler(p, nil)
	res := sched.Render(context.Background(), diagram.EmptyDiagram)
	if res.Err != nil || res.Stale {
		t.Fatalf("result = %+v", res)
	}
	if got := p.Current(); got.RenderID != res.RenderID || got.Code != diagram.EmptyDiagram {
		t.Errorf("current = %+v, want render id %s", got, res.RenderID)
	}
}

func TestPreviewServer_Handlers(t *testing.T) {
	p := NewPreviewServer(0, nil)
	p.SetTitle("my forest")
	p.Publish("", "graph TD\n  n1[\"#35;1: 5\"]")
	ts := httptest.NewServer(p.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("index status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Pragma") != "no-cache" {
		t.Error("index should not be cached")
	}
	if !strings.Contains(string(body), "<title>my forest</title>") || !strings.Contains(string(body), "mermaid") {
		t.Error("index page missing title or mermaid script")
	}

	resp, err = http.Get(ts.URL + "/__preview__/diagram")
	if err != nil {
		t.Fatal(err)
	}
	var upd DiagramUpdate
	json.NewDecoder(resp.Body).Decode(&upd)
	resp.Body.Close()
	if upd.Seq != 1 || !strings.Contains(upd.Code, "n1") {
		t.Errorf("diagram = %+v", upd)
	}

	resp, err = http.Get(ts.URL + "/__preview__/status")
	if err != nil {
		t.Fatal(err)
	}
	var status map[string]any
	json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if status["status"] != "running" {
		t.Errorf("status = %v", status)
	}

	resp, _ = http.Get(ts.URL + "/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPreviewServer_WebsocketPush(t *testing.T) {
	p := NewPreviewServer(0, nil)
	p.Publish("", "first")
	ts := httptest.NewServer(p.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/__preview__/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var upd DiagramUpdate
	if err := conn.ReadJSON(&upd); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if upd.Code != "first" {
		t.Errorf("initial = %+v", upd)
	}

	p.Publish("", "second")
	if err := conn.ReadJSON(&upd); err != nil {
		t.Fatalf("read push: %v", err)
	}
	if upd.Code != "second" || upd.Seq != 2 {
		t.Errorf("pushed = %+v", upd)
	}
}

func TestPreviewServer_RunAndStop(t *testing.T) {
	port, err := FindAvailablePort(19060, 19080)
	if err != nil {
		t.Fatalf("Failed to find available port: %v", err)
	}
	p := NewPreviewServer(port, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, false) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(p.URL() + "/__preview__/status")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestNoCacheMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test"))
	})
	handler := noCacheMiddleware(inner)

	req, _ := http.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Cache-Control") == "" {
		t.Error("Expected Cache-Control header")
	}
	if rec.Header().Get("Pragma") != "no-cache" {
		t.Errorf("Expected Pragma: no-cache, got %s", rec.Header().Get("Pragma"))
	}
	if rec.Header().Get("Expires") != "0" {
		t.Errorf("Expected Expires: 0, got %s", rec.Header().Get("Expires"))
	}
}

func TestNoCacheMiddleware_OPTIONS(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Inner handler should not be called for OPTIONS")
	})
	handler := noCacheMiddleware(inner)

	req, _ := http.NewRequest("OPTIONS", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for OPTIONS, got %d", rec.Code)
	}
}
