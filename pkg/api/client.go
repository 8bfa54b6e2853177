// Package api provides typed access to the incidentd REST surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/statuspulse/incidentd/pkg/incident"
)

// DefaultTimeout bounds every pull query; exceeding it surfaces as a query
// failure, never a retry.
const DefaultTimeout = 10 * time.Second

// Client provides typed access to the incident API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Incidents runs a filtered, paginated query.
func (c *Client) Incidents(ctx context.Context, filter incident.Filter, page incident.PageRequest) (*incident.QueryResult, error) {
	params := url.Values{}
	page = page.Normalize()
	params.Set("page", strconv.Itoa(page.Page))
	params.Set("limit", strconv.Itoa(page.Limit))
	if filter.Severity != "" {
		params.Set("severity", filter.Severity)
	}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if filter.Service != "" {
		params.Set("service", filter.Service)
	}
	if filter.Search != "" {
		params.Set("search", filter.Search)
	}
	var result incident.QueryResult
	if err := c.do(ctx, http.MethodGet, "/incidents?"+params.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Incident fetches a single incident by id.
func (c *Client) Incident(ctx context.Context, id string) (*incident.Incident, error) {
	var inc incident.Incident
	if err := c.do(ctx, http.MethodGet, "/incidents/"+url.PathEscape(id), nil, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// Create submits a draft; unset fields get generated defaults server-side.
func (c *Client) Create(ctx context.Context, draft incident.Draft) (*incident.Incident, error) {
	var inc incident.Incident
	if err := c.do(ctx, http.MethodPost, "/incidents", draft, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// Update applies a partial patch.
func (c *Client) Update(ctx context.Context, id string, patch incident.Patch) (*incident.Incident, error) {
	var inc incident.Incident
	if err := c.do(ctx, http.MethodPatch, "/incidents/"+url.PathEscape(id), patch, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// Resolve forces the incident into resolved state.
func (c *Client) Resolve(ctx context.Context, id string) (*incident.Incident, error) {
	var inc incident.Incident
	if err := c.do(ctx, http.MethodPatch, "/incidents/"+url.PathEscape(id)+"/resolve", nil, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// Delete removes an incident.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/incidents/"+url.PathEscape(id), nil, nil)
}

// Health probes the server health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var payload struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &payload); err != nil {
		return err
	}
	if payload.Status != "ok" {
		return fmt.Errorf("server reported status %q", payload.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return ""
	}
	return payload.Error
}
