// Package api is the HTTP client for the task service's search and
// transition endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

const (
	// defaultTimeout is the per-request timeout.
	defaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 512

	searchPath = "/api/tasks/search"
)

// Client talks to the task service. It implements search.Fetcher and
// task.Transitioner.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		verr := errors.NewValidationError("api base url must be an absolute http(s) url").
			WithField("api.base_url").
			WithValue(baseURL)
		if err != nil {
			verr = verr.WithCause(err)
		}
		return nil, verr
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(u.String(), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("api")
	return c, nil
}

// searchRequest is the search endpoint's request body. Pagination totals are
// response data and are not sent.
type searchRequest struct {
	Text       string            `json:"text"`
	Filter     search.TaskFilter `json:"filter"`
	Sort       search.SortConfig `json:"sort"`
	Pagination pageRequest       `json:"pagination"`
}

type pageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type transitionRequest struct {
	NewState taskstate.State `json:"new_state"`
}

// Search runs q against the search endpoint.
func (c *Client) Search(ctx context.Context, q search.Query) (search.Response, error) {
	body := searchRequest{
		Text:   q.Text,
		Filter: q.Filter.Clone(),
		Sort:   q.Sort,
		Pagination: pageRequest{
			Page:     q.Pagination.Page,
			PageSize: q.Pagination.PageSize,
		},
	}

	var resp search.Response
	if err := c.post(ctx, "search", searchPath, body, &resp); err != nil {
		return search.Response{}, err
	}
	if resp.Tasks == nil {
		resp.Tasks = []task.Task{}
	}
	for i, t := range resp.Tasks {
		if err := t.Validate(); err != nil {
			return search.Response{}, errors.NewValidationError("search response contains an invalid task").
				WithField(fmt.Sprintf("tasks[%d]", i)).
				WithCause(errors.Join(errors.ErrMalformedPayload, err))
		}
	}
	if resp.TotalItems < 0 || resp.TotalPages < 0 {
		return search.Response{}, errors.NewValidationError("search response totals must not be negative").
			WithField("total_items").
			WithCause(errors.ErrMalformedPayload)
	}

	c.logger.Debug("search completed",
		"text", q.Text,
		"page", q.Pagination.Page,
		"results", len(resp.Tasks),
		"total_items", resp.TotalItems)
	return resp, nil
}

// Transition asks the service to move taskID to the given state and returns
// the task as the service now sees it.
func (c *Client) Transition(ctx context.Context, taskID string, to taskstate.State) (task.Task, error) {
	if taskID == "" {
		return task.Task{}, errors.NewValidationError("task id is required").WithField("id")
	}

	var t task.Task
	endpoint := "/api/tasks/" + url.PathEscape(taskID) + "/transition"
	if err := c.post(ctx, "transition", endpoint, transitionRequest{NewState: to}, &t); err != nil {
		var connErr *errors.ConnectionError
		if errors.As(err, &connErr) && connErr.StatusCode == http.StatusNotFound {
			return task.Task{}, errors.NewNotFoundError("task", taskID).WithCause(err)
		}
		return task.Task{}, err
	}
	if t.ID == "" {
		t.ID = taskID
	}
	if err := t.Validate(); err != nil {
		return task.Task{}, errors.NewValidationError("transition response is not a valid task").
			WithField("task").
			WithCause(errors.Join(errors.ErrMalformedPayload, err))
	}
	return t, nil
}

// post sends body as JSON and decodes a 2xx response into out.
func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	endpoint := c.baseURL + path

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("request failed", "operation", op, "error", err.Error())
		return errors.NewConnectionError(op, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("response received",
		"operation", op,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.NewConnectionError(op, endpoint, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))).
			WithStatusCode(resp.StatusCode).
			WithRetryable(retryableStatus(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewValidationError("response is not valid JSON").
			WithField(op).
			WithCause(errors.Join(errors.ErrMalformedPayload, err))
	}
	return nil
}

// retryableStatus reports whether a failed request may succeed if repeated.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
