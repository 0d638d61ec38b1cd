// Package client is a Go client for the mcwarden HTTP command API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:8080/api"
	DefaultTimeout = 10 * time.Second
)

type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // optional
	TLS     *TLSClientConfig
}

// TLSClientConfig verifies daemons that serve self-signed certificates.
type TLSClientConfig struct {
	CACert     string // PEM file added to the system pool
	ServerName string
	SkipVerify bool
}

// New builds a client. TLS settings only matter for https base URLs.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLS != nil {
		tlsConfig, err := setupClientTLS(*config.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}, nil
}

// IsReachable reports whether the daemon answers its status endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.GetState(ctx)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
	}
	return err == nil
}

// SendCommand posts one chat line and returns the daemon's reply.
func (c *Client) SendCommand(ctx context.Context, req CommandRequest) (Reply, error) {
	var reply Reply
	data, err := json.Marshal(req)
	if err != nil {
		return reply, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Debug("Sending command", "caller", req.Caller, "text", req.Text)
	err = c.do(ctx, http.MethodPost, c.baseURL+"/command", data, &reply)
	return reply, err
}

func (c *Client) GetState(ctx context.Context) (State, error) {
	var st State
	err := c.do(ctx, http.MethodGet, c.baseURL+"/status", nil, &st)
	return st, err
}

// GetNotifications returns buffered notifications newer than since; a zero
// since returns the whole buffer.
func (c *Client) GetNotifications(ctx context.Context, since time.Time) ([]Notification, error) {
	u := c.baseURL + "/notifications"
	if !since.IsZero() {
		u += "?since=" + url.QueryEscape(since.Format(time.RFC3339Nano))
	}
	var out []Notification
	err := c.do(ctx, http.MethodGet, u, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}

// IsRateLimited reports whether err is the daemon's per-caller limit.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

func setupClientTLS(cfg TLSClientConfig) (*tls.Config, error) {
	// #nosec G402 -- SkipVerify is an explicit operator opt-in
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.SkipVerify,
	}
	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}
