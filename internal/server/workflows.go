package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

var (
	ErrListWorkflows = errors.New("failed to list workflows")
	ErrGetWorkflow   = errors.New("failed to get workflow")
)

func (s *Server) listWorkflows(c *gin.Context) {
	ids, err := s.engine.ListWorkflows(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrListWorkflows, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.WorkflowsListResponse{
		Workflows: ids,
		Count:     len(ids),
	})
}

func (s *Server) getWorkflow(c *gin.Context) {
	id := api.WorkflowID(c.Param("workflowID"))

	def, err := s.engine.GetWorkflow(c.Request.Context(), id)
	if err == nil {
		c.JSON(http.StatusOK, def)
		return
	}

	if errors.Is(err, store.ErrWorkflowNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrGetWorkflow, err),
		Status: http.StatusInternalServerError,
	})
}
