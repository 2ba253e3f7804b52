package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/log"
)

type (
	// Client talks to a running workflow-runner server
	Client interface {
		StartRun(
			context.Context, api.WorkflowID, api.RunConfig,
		) (*api.RunResult, error)
		GetRun(context.Context, api.RunID) (*api.RunRecord, error)
		ListRuns(context.Context, api.WorkflowID) ([]*api.RunRecord, error)
		ListWorkflows(context.Context) ([]api.WorkflowID, error)
	}

	// HTTPClient implements Client over the engine's REST surface
	HTTPClient struct {
		httpClient *http.Client
		baseURL    string
	}
)

const userAgent = "workflow-runner-client/1.0"

var (
	ErrHTTPError = errors.New("server returned HTTP error")
	ErrNotFound  = errors.New("not found")
	ErrNoBaseURL = errors.New("server URL is required")
)

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the server at baseURL
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// StartRun executes a stored workflow and waits for its result
func (c *HTTPClient) StartRun(
	ctx context.Context, id api.WorkflowID, run api.RunConfig,
) (*api.RunResult, error) {
	body, err := json.Marshal(api.StartRunRequest{RunConfig: run})
	if err != nil {
		return nil, err
	}

	var res api.RunResult
	path := "/engine/run/" + url.PathEscape(string(id))
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		slog.Error("Run request failed",
			log.WorkflowID(id),
			log.Error(err))
		return nil, err
	}
	return &res, nil
}

// GetRun fetches the persisted record of a run
func (c *HTTPClient) GetRun(
	ctx context.Context, id api.RunID,
) (*api.RunRecord, error) {
	var rec api.RunRecord
	path := "/engine/run/" + url.PathEscape(string(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns lists run records, optionally restricted to one workflow
func (c *HTTPClient) ListRuns(
	ctx context.Context, id api.WorkflowID,
) ([]*api.RunRecord, error) {
	path := "/engine/run"
	if id != "" {
		path += "?workflow=" + url.QueryEscape(string(id))
	}
	var res api.RunsListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Runs, nil
}

func (c *HTTPClient) ListWorkflows(
	ctx context.Context,
) ([]api.WorkflowID, error) {
	var res api.WorkflowsListResponse
	err := c.do(ctx, http.MethodGet, "/engine/workflow", nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Workflows, nil
}

func (c *HTTPClient) do(
	ctx context.Context, method, path string, body []byte, out any,
) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("HTTP request failed",
			slog.String("path", path),
			slog.Duration("duration", time.Since(start)),
			log.Error(err))
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}

func statusError(code int, data []byte) error {
	msg := string(data)
	var er api.ErrorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	if code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return fmt.Errorf("%w: HTTP %d: %s", ErrHTTPError, code, msg)
}
