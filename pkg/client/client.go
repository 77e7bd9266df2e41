// Package client talks to a running recollsup server.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	itls "github.com/loykin/recollsup/internal/tls"
)

const defaultBaseURL = "http://127.0.0.1:8765/api"

// Client provides HTTP access to the supervisor API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
	TLS     *TLSClientConfig
}

// TLSClientConfig configures HTTPS when the API sits behind a TLS proxy.
type TLSClientConfig struct {
	CACert     string
	ServerName string
	SkipVerify bool
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: defaultBaseURL, Timeout: 30 * time.Second}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := &http.Transport{}
	if config.TLS != nil {
		tlsConfig, err := setupClientTLS(config.TLS)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}
}

// IsReachable checks if the server is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("server unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var st DaemonStatus
	err := c.do(ctx, http.MethodGet, c.baseURL+"/status", nil, &st)
	return st, err
}

// Start (re)starts the indexing daemon.
func (c *Client) Start(ctx context.Context, req StartRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.lifecycleURL("/start", req.Async), body, nil)
}

func (c *Client) Stop(ctx context.Context, async bool) error {
	return c.do(ctx, http.MethodPost, c.lifecycleURL("/stop", async), nil, nil)
}

// Reindex restarts the daemon with a full index reset.
func (c *Client) Reindex(ctx context.Context, async bool) error {
	return c.do(ctx, http.MethodPost, c.lifecycleURL("/reindex", async), nil, nil)
}

// Search runs a filtered search through the server.
func (c *Client) Search(ctx context.Context, q, filter string) (SearchResponse, error) {
	return c.SearchDir(ctx, "", q, filter)
}

// SearchDir runs a filtered search limited to documents below dir.
func (c *Client) SearchDir(ctx context.Context, dir, q, filter string) (SearchResponse, error) {
	v := url.Values{"q": {q}}
	if filter != "" {
		v.Set("filter", filter)
	}
	if dir != "" {
		v.Set("dir", dir)
	}
	var resp SearchResponse
	err := c.do(ctx, http.MethodGet, c.baseURL+"/search?"+v.Encode(), nil, &resp)
	return resp, err
}

// History returns up to n recent lifecycle events, newest last.
func (c *Client) History(ctx context.Context, n int) ([]HistoryEvent, error) {
	var events []HistoryEvent
	err := c.do(ctx, http.MethodGet, c.baseURL+"/history?n="+strconv.Itoa(n), nil, &events)
	return events, err
}

func (c *Client) lifecycleURL(path string, async bool) string {
	if async {
		return c.baseURL + path + "?async=1"
	}
	return c.baseURL + path
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error (%d): %s", resp.StatusCode, errorResp.Error)
}

func setupClientTLS(cfg *TLSClientConfig) (*tls.Config, error) {
	return itls.ClientConfig(cfg.CACert, cfg.ServerName, cfg.SkipVerify)
}
