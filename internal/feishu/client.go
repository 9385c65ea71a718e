package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production Feishu open platform endpoint.
const DefaultBaseURL = "https://open.feishu.cn"

const (
	// DefaultPageSize is used by every paginated listing call.
	DefaultPageSize = 50
	// DefaultMaxExportPolls bounds AwaitExport: 30 polls at 2s ≈ 60s.
	DefaultMaxExportPolls = 30

	exportPollInterval = 2 * time.Second

	// The open API throttles per app; pacing requests client-side keeps a
	// large discovery run from tripping the server-side limiter.
	requestsPerSecond = 10
)

// Client is a typed HTTP client for the Feishu open API. Every
// authenticated request goes through the send wrapper, which attaches the
// bearer token from the TokenStore and recovers from a single 401 by
// refreshing; callers never deal with token lifetime.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenStore
	limiter    *rate.Limiter
	logger     *slog.Logger

	appID     string
	appSecret string

	// pollInterval is exportPollInterval in production; tests shorten it.
	pollInterval time.Duration
}

// NewClient creates a Feishu API client. baseURL is typically
// DefaultBaseURL; appID/appSecret identify the OAuth application.
func NewClient(baseURL string, httpClient *http.Client, tokens *TokenStore, appID, appSecret string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		tokens:       tokens,
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:       logger,
		appID:        appID,
		appSecret:    appSecret,
		pollInterval: exportPollInterval,
	}
}

// send executes one authenticated request. If no access token is cached it
// refreshes first; on a 401 it refreshes and retries exactly once. The
// caller owns the response body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	access, _ := c.tokens.Tokens()
	if access == "" {
		if _, err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		access, _ = c.tokens.Tokens()
	}

	resp, err := c.doOnce(ctx, method, path, query, body, access)
	if err != nil {
		return nil, fmt.Errorf("feishu: %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.logger.Info("access token rejected, refreshing", "path", path)

		if _, err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		access, _ = c.tokens.Tokens()

		resp, err = c.doOnce(ctx, method, path, query, body, access)
		if err != nil {
			return nil, fmt.Errorf("feishu: %s %s: %w", method, path, err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			return nil, ErrAuthExpired
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, upstreamErr(-1, "%s %s: HTTP %d: %s", method, path, resp.StatusCode, string(errBody))
	}

	return resp, nil
}

// doOnce executes a single HTTP request (no auth recovery).
func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body interface{}, access string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+access)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeEnvelope parses the {code, msg, data} wrapper and unwraps data.
func decodeEnvelope[T any](resp *http.Response) (*T, error) {
	defer resp.Body.Close()

	var env apiResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("feishu: decoding response: %w", err)
	}
	if env.Code != 0 {
		return nil, &APIError{Code: env.Code, Msg: env.Msg}
	}
	if env.Data == nil {
		return nil, upstreamErr(-1, "response envelope has no data")
	}
	return env.Data, nil
}

// getData is the common GET-and-decode path.
func getData[T any](ctx context.Context, c *Client, path string, query url.Values) (*T, error) {
	resp, err := c.send(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return decodeEnvelope[T](resp)
}

// postData is the common POST-and-decode path.
func postData[T any](ctx context.Context, c *Client, path string, body interface{}) (*T, error) {
	resp, err := c.send(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	return decodeEnvelope[T](resp)
}
