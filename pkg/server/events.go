package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// EventNodesChanged tells clients to re-fetch the node list.
const EventNodesChanged = "nodes_changed"

// Event is pushed to connected clients over the event stream.
type Event struct {
	Type      string `json:"type"`
	Workspace string `json:"workspace,omitempty"`
}

const writeWait = 5 * time.Second

// hub tracks event stream connections by workspace.
type hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*websocket.Conn]string
	onCount func(int)
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, clients: make(map[*websocket.Conn]string)}
}

func (h *hub) add(conn *websocket.Conn, workspace string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = workspace
	h.countChanged()
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		h.countChanged()
	}
}

func (h *hub) countChanged() {
	if h.onCount != nil {
		h.onCount(len(h.clients))
	}
}

// broadcast sends ev to clients of workspace, or to everyone when workspace
// is empty. Writes happen under the lock so a connection never has two
// concurrent writers.
func (h *hub) broadcast(workspace string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ws := range h.clients {
		if workspace != "" && ws != workspace {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("dropping event client", "error", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
	h.countChanged()
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.clients, conn)
	}
	h.countChanged()
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
			return s.originAllowed(origin)
		},
	}
}

// handleEvents streams Event values for the caller's workspace until the
// client disconnects.
func (s *Server) handleEvents(c *gin.Context) {
	up := s.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("event stream upgrade failed", "error", err)
		return
	}
	workspace := c.GetString(workspaceKey)
	s.hub.add(conn, workspace)
	s.logger.Debug("event client connected", "workspace", workspace)

	// Reads only detect disconnects; clients never send anything useful.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(conn)
	s.logger.Debug("event client disconnected", "workspace", workspace)
}
