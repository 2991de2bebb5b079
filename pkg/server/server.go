// Package server exposes a node store over HTTP with per-browser workspaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/kraitsura/flowtree/pkg/model"
	"github.com/kraitsura/flowtree/pkg/store"
)

// WorkspaceMaxAge is the lifetime of the workspace cookie, one year.
const WorkspaceMaxAge = 31536000

const workspaceKey = "workspace"

// StoreFactory returns the store scoped to a workspace.
type StoreFactory func(workspace string) store.Store

// Config configures a Server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	// MutationRate limits create/update/delete requests per second across
	// all clients. Zero disables limiting.
	MutationRate  float64
	MutationBurst int
	Logger        *slog.Logger
}

// DefaultConfig returns the settings used by `ft serve`.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:8000",
		AllowedOrigins: []string{"http://localhost:3000"},
		MutationRate:   50,
		MutationBurst:  100,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Server routes /api/nodes to a StoreFactory.
type Server struct {
	cfg     Config
	stores  StoreFactory
	logger  *slog.Logger
	engine  *gin.Engine
	hub     *hub
	limiter *rate.Limiter
	metrics *metrics
}

// New builds the router. It does not start listening.
func New(stores StoreFactory, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		stores:  stores,
		logger:  logger,
		hub:     newHub(logger),
		metrics: newMetrics(),
	}
	s.hub.onCount = func(n int) { s.metrics.clients.Set(float64(n)) }
	if cfg.MutationRate > 0 {
		burst := cfg.MutationBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MutationRate), burst)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests(), s.cors(), s.workspace())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/nodes")
	api.GET("", s.handleList)
	api.GET("/ws", s.handleEvents)
	api.POST("", s.limit(), s.handleCreate)
	api.PATCH("/:id", s.limit(), s.handleUpdate)
	api.DELETE("/:id", s.limit(), s.handleDelete)

	s.engine = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Registry returns the prometheus registry holding the server's metrics.
func (s *Server) Registry() *prometheus.Registry { return s.metrics.registry }

// Run listens on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("node API listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down node API")
		s.hub.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Notify tells connected clients of workspace that its nodes changed. The
// watcher calls it when the database is modified outside this server.
func (s *Server) Notify(workspace string) {
	s.hub.broadcast(workspace, Event{Type: EventNodesChanged, Workspace: workspace})
}

// NotifyAll tells every connected client to refresh.
func (s *Server) NotifyAll() {
	s.hub.broadcast("", Event{Type: EventNodesChanged})
}

func (s *Server) storeFor(c *gin.Context) store.Store {
	return s.stores(c.GetString(workspaceKey))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleList(c *gin.Context) {
	nodes, err := s.storeFor(c).List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nodes)
}

func (s *Server) handleCreate(c *gin.Context) {
	var fields model.NodeFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
		return
	}
	node, err := s.storeFor(c).Create(c.Request.Context(), fields)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.mutations.WithLabelValues("create").Inc()
	s.Notify(c.GetString(workspaceKey))
	c.JSON(http.StatusCreated, node)
}

func (s *Server) handleUpdate(c *gin.Context) {
	id, ok := nodeID(c)
	if !ok {
		return
	}
	var fields model.NodeFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
		return
	}
	node, err := s.storeFor(c).Update(c.Request.Context(), id, fields)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.mutations.WithLabelValues("update").Inc()
	s.Notify(c.GetString(workspaceKey))
	c.JSON(http.StatusOK, node)
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := nodeID(c)
	if !ok {
		return
	}
	if err := s.storeFor(c).Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.mutations.WithLabelValues("delete").Inc()
	s.Notify(c.GetString(workspaceKey))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func nodeID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: fmt.Sprintf("invalid node id %q", c.Param("id"))})
		return 0, false
	}
	return id, true
}

// fail maps store errors onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Node not found"})
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
	default:
		s.logger.Error("store operation failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "internal error"})
	}
}

// workspace assigns a workspace id from the cookie, minting one when absent,
// and refreshes the cookie on every response.
func (s *Server) workspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := c.Cookie(store.WorkspaceCookie)
		if err != nil || ws == "" {
			ws = uuid.NewString()
		}
		c.Set(workspaceKey, ws)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(store.WorkspaceCookie, ws, WorkspaceMaxAge, "/", "", false, true)
		c.Next()
	}
}

// cors allows credentialed requests from the configured origins.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if c.Request.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				if req := c.GetHeader("Access-Control-Request-Headers"); req != "" {
					h.Set("Access-Control-Allow-Headers", req)
				}
				h.Set("Access-Control-Max-Age", "600")
				c.AbortWithStatus(http.StatusOK)
				return
			}
		}
		c.Next()
	}
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Detail: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.metrics.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.latency.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed,
		)
	}
}
