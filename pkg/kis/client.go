package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond
)

// Client wraps access to the brokerage REST endpoints.
type Client struct {
	cfg        *Config
	baseURL    string
	httpClient *http.Client
	auth       *Auth
	maxRetries int
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the configured endpoint URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithAuth injects a pre-built token manager (shared across clients).
func WithAuth(auth *Auth) Option {
	return func(c *Client) {
		if auth != nil {
			c.auth = auth
		}
	}
}

// NewClient constructs an API client for the given configuration.
func NewClient(cfg *Config, opts ...Option) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	client := &Client{
		cfg:        cfg,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.auth == nil {
		client.auth = NewAuth(cfg, client.httpClient)
	}
	return client
}

func (c *Client) headers(ctx context.Context, trID string) (http.Header, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+token)
	h.Set("appKey", c.cfg.AppKey)
	h.Set("appSecret", c.cfg.AppSecret)
	h.Set("tr_id", trID)
	return h, nil
}

// get issues a GET with retries and decodes the JSON response into result.
func (c *Client) get(ctx context.Context, path, trID string, params url.Values, result interface{}) error {
	headers, err := c.headers(ctx, trID)
	if err != nil {
		return err
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.doRequest(ctx, http.MethodGet, endpoint, headers, nil, result)
}

// post issues a POST with retries and decodes the JSON response into result.
func (c *Client) post(ctx context.Context, path, trID string, body interface{}, result interface{}) error {
	headers, err := c.headers(ctx, trID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("kis: encode request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, c.baseURL+path, headers, payload, result)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, headers http.Header, payload []byte, result interface{}) error {
	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return fmt.Errorf("kis: build request: %w", err)
		}
		httpReq.Header = headers.Clone()

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
		} else {
			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("kis: read response: %w", readErr)
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = fmt.Errorf("kis: http status %d: %s", resp.StatusCode, string(respBody))
			} else {
				if result != nil {
					if err := json.Unmarshal(respBody, result); err != nil {
						return fmt.Errorf("kis: decode response: %w", err)
					}
				}
				return nil
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			continue
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("kis: request failed without error detail")
}
