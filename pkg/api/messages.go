package api

type (
	// StartRunRequest contains parameters for starting a run over HTTP
	StartRunRequest struct {
		RunConfig
	}

	// RunsListResponse contains persisted run records
	RunsListResponse struct {
		Runs  []*RunRecord `json:"runs"`
		Count int          `json:"count"`
	}

	// WorkflowsListResponse contains the IDs of every stored workflow
	WorkflowsListResponse struct {
		Workflows []WorkflowID `json:"workflows"`
		Count     int          `json:"count"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}

	// MessageResponse contains a simple message string
	MessageResponse struct {
		Message string `json:"message"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)
