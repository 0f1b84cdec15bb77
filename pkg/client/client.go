// Package client is a Go SDK for the dataset-validator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// Client is a Go SDK for dataset-validator API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new dataset-validator client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error reported by the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Summary mirrors the server-side finding counts
type Summary struct {
	Total    int                       `json:"total"`
	Errors   int                       `json:"errors"`
	Warnings int                       `json:"warnings"`
	Score    int                       `json:"score"`
	ByEntity map[models.EntityKind]int `json:"by_entity"`
	ByCheck  map[string]int            `json:"by_check"`
}

// Run is a stored validation run as returned by the API
type Run struct {
	models.Run
	Summary Summary `json:"summary"`
}

// FindingOptions narrows the findings returned with a run
type FindingOptions struct {
	Severity models.Severity
	Entity   models.EntityKind
	Check    string
}

func (o FindingOptions) query() url.Values {
	q := url.Values{}
	if o.Severity != "" {
		q.Set("severity", string(o.Severity))
	}
	if o.Entity != "" {
		q.Set("entity", string(o.Entity))
	}
	if o.Check != "" {
		q.Set("check", o.Check)
	}
	return q
}

// ListOptions contains options for listing runs
type ListOptions struct {
	DatasetName string
	Fingerprint string
	Limit       int
	Offset      int
}

// Validate submits an inline dataset and returns the stored run
func (c *Client) Validate(ctx context.Context, name string, ds models.Dataset, opts FindingOptions) (*Run, error) {
	body, err := json.Marshal(models.ValidateRequest{Name: name, Dataset: ds})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var run Run
	if err := c.call(ctx, http.MethodPost, withQuery("/api/v1/validate", opts.query()), bytes.NewReader(body), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ValidateDataset validates a dataset loaded on the server by name
func (c *Client) ValidateDataset(ctx context.Context, name string, opts FindingOptions) (*Run, error) {
	path := "/api/v1/datasets/" + url.PathEscape(name) + "/validate"

	var run Run
	if err := c.call(ctx, http.MethodPost, withQuery(path, opts.query()), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run by ID
func (c *Client) GetRun(ctx context.Context, id string, opts FindingOptions) (*Run, error) {
	path := "/api/v1/runs/" + url.PathEscape(id)

	var run Run
	if err := c.call(ctx, http.MethodGet, withQuery(path, opts.query()), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns retrieves stored runs newest first, without findings
func (c *Client) ListRuns(ctx context.Context, opts ListOptions) ([]*models.Run, error) {
	q := url.Values{}
	if opts.DatasetName != "" {
		q.Set("dataset", opts.DatasetName)
	}
	if opts.Fingerprint != "" {
		q.Set("fingerprint", opts.Fingerprint)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var data struct {
		Runs  []*models.Run `json:"runs"`
		Total int           `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, withQuery("/api/v1/runs", q), nil, &data); err != nil {
		return nil, err
	}
	return data.Runs, nil
}

// ListDatasets retrieves the datasets loaded on the server
func (c *Client) ListDatasets(ctx context.Context) ([]models.DatasetInfo, error) {
	var data struct {
		Datasets []models.DatasetInfo `json:"datasets"`
		Total    int                  `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/datasets", nil, &data); err != nil {
		return nil, err
	}
	return data.Datasets, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// call performs a request and unwraps the response envelope into out
func (c *Client) call(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		if result.Error == nil {
			return &APIError{StatusCode: http.StatusOK, Code: "unknown", Message: "request failed"}
		}
		result.Error.StatusCode = http.StatusOK
		return result.Error
	}

	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "http_error", Message: string(respBody)}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return nil, apiErr
	}

	return respBody, nil
}
