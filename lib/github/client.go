// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/registry/lib/clock"
)

const apiVersion = "2022-11-28"

const defaultBaseURL = "https://api.github.com"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Config configures a Client.
type Config struct {
	// BaseURL defaults to https://api.github.com. Must use HTTPS.
	BaseURL string

	// Token is a personal access or installation token with
	// read:org scope. Required.
	Token string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Client issues authenticated GET requests to the GitHub API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	rateLimit  *rateLimitTracker
	clock      clock.Clock
	logger     *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("github: Token is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		rateLimit:  newRateLimitTracker(clk),
		clock:      clk,
		logger:     logger,
	}, nil
}

// get fetches path and decodes the JSON response into result. A rate
// limited response is retried once after the advertised reset.
func (client *Client) get(ctx context.Context, path string, result any) error {
	for attempt := 0; ; attempt++ {
		status, header, body, err := client.send(ctx, path)
		if err != nil {
			return err
		}
		if status >= 200 && status < 300 {
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("github: decoding %s: %w", path, err)
			}
			return nil
		}

		apiError := parseAPIError(status, body)
		if attempt > 0 || !apiError.rateLimited() {
			return apiError
		}
		wait := client.rateLimit.retryAfter(header)
		if wait <= 0 {
			return apiError
		}
		client.logger.Info("github rate limited, backing off", "duration", wait, "path", path)
		select {
		case <-client.clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (client *Client) send(ctx context.Context, path string) (int, http.Header, []byte, error) {
	if err := client.rateLimit.wait(ctx); err != nil {
		return 0, nil, nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+path, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("github: creating request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+client.token)
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", apiVersion)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("github: GET %s: %w", path, err)
	}
	defer response.Body.Close()
	client.rateLimit.update(response.Header)

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("github: reading %s: %w", path, err)
	}
	return response.StatusCode, response.Header, body, nil
}
