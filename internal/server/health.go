package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

const (
	ServiceName    = "workflow-runner"
	ServiceVersion = "1.0.0"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: ServiceName,
		Version: ServiceVersion,
		Status:  "healthy",
	})
}
