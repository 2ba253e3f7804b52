package server

import (
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/richvergo/subtract-sub005/internal/artifact"
	"github.com/richvergo/subtract-sub005/internal/engine"
	"github.com/richvergo/subtract-sub005/internal/events"
	"github.com/richvergo/subtract-sub005/pkg/util"
)

// Server implements the HTTP API of the workflow runner
type Server struct {
	engine    *engine.Engine
	hub       *events.Hub
	artifacts artifact.Getter
	sockets   util.Set[*Client]
	mu        sync.Mutex
}

// NewServer creates a new HTTP API server. artifacts may be nil, in which
// case screenshot downloads are not served
func NewServer(
	eng *engine.Engine, hub *events.Hub, artifacts artifact.Getter,
) *Server {
	return &Server{
		engine:    eng,
		hub:       hub,
		artifacts: artifacts,
		sockets:   util.Set[*Client]{},
	}
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

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers", "Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)

	eng := router.Group("/engine")
	{
		// Workflow endpoints
		eng.GET("/workflow", s.listWorkflows)
		eng.GET("/workflow/:workflowID", s.getWorkflow)

		// Run endpoints
		eng.GET("/run", s.listRuns)
		eng.POST("/run/:workflowID", s.startRun)
		eng.GET("/run/:runID", s.getRun)

		// Screenshots
		eng.GET("/artifact/*key", s.getArtifact)

		// WebSocket
		eng.GET("/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := s.sockets.Items()
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
