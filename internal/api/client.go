package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/lexshelf/version"
)

// Client is an HTTP client for the lexshelf API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 3 * time.Minute, // covers one full pipeline invocation
		},
		attempts: 3,
		delay:    500 * time.Millisecond,
	}
}

// StatusError is a non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Get performs a GET request and decodes the JSON response.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs a POST request with JSON body and decodes the response.
func (c *Client) Post(ctx context.Context, path string, body any, result any) error {
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, raw, result)
}

// do sends one request. Only refused connections are retried, which covers
// a server that is still starting; anything the server answered is final.
func (c *Client) do(ctx context.Context, method, path string, body []byte, result any) error {
	resp, err := retry.DoWithData(
		func() (*http.Response, error) {
			var r io.Reader
			if body != nil {
				r = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
			if err != nil {
				return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			req.Header.Set("User-Agent", "lexshelf-cli/"+version.GitRelease)
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				if errors.Is(err, syscall.ECONNREFUSED) {
					return nil, err
				}
				return nil, retry.Unrecoverable(err)
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, result)
}

func (c *Client) handleResponse(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// ErrorResponse matches the server's error response format.
type ErrorResponse struct {
	Error string `json:"error"`
}
