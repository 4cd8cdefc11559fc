// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/netutil"
)

// RequestTimeout bounds every request made with the default HTTP
// client. Connecting the radio modules blocks on serial handshakes
// that take several seconds, so the bound is generous.
const RequestTimeout = 30 * time.Second

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the backend address (e.g., "http://localhost:5000").
	BaseURL string
	// HTTPClient is used for all requests. If nil, a client with
	// Timeout = RequestTimeout is used. An injected client keeps its
	// own timeout.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Clock stamps stats and measures ping latency. If nil, clock.Real().
	Clock clock.Clock
}

// Client talks to one backend. It holds no state between requests and
// is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	clock      clock.Clock
}

// NewClient creates a Client for config.BaseURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api: BaseURL %q must use http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: RequestTimeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		clock:      clk,
	}, nil
}

// BaseURL returns the backend address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the HTTP client used for requests, so that the
// push channel's polling transport shares its connection pool.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do performs one JSON request. body, when non-nil, is encoded as the
// request body; out, when non-nil, receives the decoded 2xx response.
// Every failure is an [*Error].
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindClientConfig, Message: MessageClientConfig,
				Method: method, Path: path, Err: fmt.Errorf("encoding request body: %w", err)}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &Error{Kind: KindClientConfig, Message: MessageClientConfig,
			Method: method, Path: path, Err: err}
	}
	requestID := uuid.NewString()
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-ID", requestID)

	start := c.clock.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug("request failed without a response",
			"method", method, "path", path, "request_id", requestID, "error", err)
		return &Error{Kind: KindUnreachable, Message: MessageUnreachable,
			Method: method, Path: path, Err: err}
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return &Error{Kind: KindUnreachable, Message: MessageUnreachable,
			Method: method, Path: path, Err: fmt.Errorf("reading response body: %w", err)}
	}
	c.logger.Debug("request complete",
		"method", method, "path", path, "request_id", requestID,
		"status", response.StatusCode, "duration", clock.Since(c.clock, start))

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &Error{
			Kind:       KindServerError,
			Message:    serverMessage(responseBody),
			StatusCode: response.StatusCode,
			Method:     method,
			Path:       path,
			Body:       string(responseBody),
		}
	}

	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return &Error{
			Kind:       KindServerError,
			Message:    "invalid response from server",
			StatusCode: response.StatusCode,
			Method:     method,
			Path:       path,
			Body:       string(responseBody),
			Err:        err,
		}
	}
	return nil
}

// serverMessage extracts the display text of an error response.
func serverMessage(body []byte) string {
	var envelope struct {
		Error   any `json:"error"`
		Message any `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		for _, field := range []any{envelope.Error, envelope.Message} {
			if text, ok := field.(string); ok && text != "" {
				return text
			}
		}
	}
	return MessageServerError
}
