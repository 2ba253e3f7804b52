package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/richvergo/subtract-sub005/internal/artifact"
	"github.com/richvergo/subtract-sub005/internal/engine"
	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

var (
	ErrInvalidJSON      = errors.New("invalid JSON request")
	ErrStartRun         = errors.New("failed to start run")
	ErrGetRun           = errors.New("failed to get run")
	ErrListRuns         = errors.New("failed to list runs")
	ErrGetArtifact      = errors.New("failed to get artifact")
	ErrArtifactsMissing = errors.New("artifact storage not configured")
)

// startRun executes a stored workflow synchronously and responds with the
// RunResult. A failed run is still a successful request; only problems
// that prevent the run from starting produce an error status
func (s *Server) startRun(c *gin.Context) {
	id := api.WorkflowID(c.Param("workflowID"))

	var req api.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	res, err := s.engine.Run(c.Request.Context(), id, req.RunConfig)
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrWorkflowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrResourceAcquisition):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrStartRun, err),
		Status: status,
	})
}

func (s *Server) getRun(c *gin.Context) {
	id := api.RunID(c.Param("runID"))

	rec, err := s.engine.GetRun(c.Request.Context(), id)
	if err == nil {
		c.JSON(http.StatusOK, rec)
		return
	}

	if errors.Is(err, store.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrGetRun, err),
		Status: http.StatusInternalServerError,
	})
}

func (s *Server) listRuns(c *gin.Context) {
	id := api.WorkflowID(c.Query("workflow"))

	runs, err := s.engine.ListRuns(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrListRuns, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.RunsListResponse{
		Runs:  runs,
		Count: len(runs),
	})
}

func (s *Server) getArtifact(c *gin.Context) {
	if s.artifacts == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  ErrArtifactsMissing.Error(),
			Status: http.StatusNotFound,
		})
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	data, err := s.artifacts.Get(c.Request.Context(), key)
	if err == nil {
		c.Data(http.StatusOK, "image/png", data)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, artifact.ErrBadKey):
		status = http.StatusBadRequest
	case errors.Is(err, artifact.ErrNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrGetArtifact, err),
		Status: status,
	})
}
