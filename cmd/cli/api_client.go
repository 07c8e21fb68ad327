// Package cli provides CLI helpers for making authenticated API calls.
// This file implements the HTTP client used by commands that talk to a
// running scandash server.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/scandash/scandash/internal/config"
)

const clientTimeout = 30 * time.Second

// APIClient provides authenticated HTTP client functionality for CLI
// commands.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	userAgent  string
}

// APIError represents an API error response.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("API error (status %d, request %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// NewAPIClient creates a new API client. The bearer token comes from the
// SCANDASH_TOKEN environment variable; servers with authentication enabled
// require it for every command.
func NewAPIClient() (*APIClient, error) {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return &APIClient{
		baseURL:    fmt.Sprintf("http://%s/api/v1", cfg.GetAPIAddress()),
		token:      os.Getenv("SCANDASH_TOKEN"),
		httpClient: &http.Client{Timeout: clientTimeout},
		userAgent:  "scandash-cli/" + version,
	}, nil
}

// Get performs a GET request and decodes the JSON response into dest.
func (c *APIClient) Get(path string, dest interface{}) error {
	return c.do(http.MethodGet, path, nil, dest)
}

// Post performs a POST request with a JSON body and decodes the response.
func (c *APIClient) Post(path string, body, dest interface{}) error {
	return c.do(http.MethodPost, path, body, dest)
}

func (c *APIClient) do(method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseAPIError builds an APIError from an error response body.
func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errBody struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
		apiErr.Message = errBody.Message
		if apiErr.Message == "" {
			apiErr.Message = errBody.Error
		}
		apiErr.RequestID = errBody.RequestID
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}
