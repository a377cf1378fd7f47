package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wilson-pinto/medical-agent-poc/internal/engine"
	"github.com/wilson-pinto/medical-agent-poc/internal/events"
	"github.com/wilson-pinto/medical-agent-poc/internal/metrics"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

type (
	// Server implements the HTTP API server for the workflow engine
	Server struct {
		engine    *engine.Engine
		hub       *events.Hub
		artifacts ArtifactReader
		sockets   map[*Client]struct{}
		mu        sync.Mutex
	}

	// ArtifactReader retrieves rendered artifacts by key
	ArtifactReader interface {
		Get(ctx context.Context, key string) ([]byte, error)
	}

	// Option configures a Server
	Option func(*Server)
)

var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrSessionMismatch = errors.New("session ID does not match path")
	ErrNoArtifacts     = errors.New("artifact store not configured")
)

// WithArtifacts enables the summary endpoint
func WithArtifacts(r ArtifactReader) Option {
	return func(s *Server) {
		s.artifacts = r
	}
}

// NewServer creates a new HTTP API server
func NewServer(eng *engine.Engine, hub *events.Hub, opts ...Option) *Server {
	s := &Server{
		engine:  eng,
		hub:     hub,
		sockets: map[*Client]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))
	router.Use(metrics.Middleware())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessions := router.Group("/sessions")
	{
		sessions.POST("", s.submitSession)
		sessions.GET("/:sessionID", s.getSession)
		sessions.DELETE("/:sessionID", s.clearSession)
		sessions.POST("/:sessionID/resume", s.resumeSession)
		sessions.GET("/:sessionID/summary", s.getSummary)
		sessions.GET("/:sessionID/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[c] = struct{}{}
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, c)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			slog.String("path", c.FullPath()),
			log.Error(err))
	}
	c.AbortWithStatusJSON(status, api.ErrorResponse{
		Error:  err.Error(),
		Status: status,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound),
		errors.Is(err, ErrNoArtifacts):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSessionBusy),
		errors.Is(err, engine.ErrSessionExists),
		errors.Is(err, engine.ErrIterationLimit):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEmptyDocument),
		errors.Is(err, ErrInvalidJSON),
		errors.Is(err, ErrSessionMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func invalidJSON(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
}
