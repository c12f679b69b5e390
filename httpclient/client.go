// Package httpclient provides a bounded HTTP client for the SDK's two
// outbound collaborators: the hosted backend and the email endpoint.
package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

var (
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrResponseTooLarge = errors.New("response body too large")
)

// Config controls client-wide bounds.
type Config struct {
	// TimeoutMS is the overall request timeout in milliseconds.
	TimeoutMS int

	// ConnectTimeoutMS is the connection timeout in milliseconds.
	ConnectTimeoutMS int

	// MaxRedirects is the maximum number of redirects to follow.
	MaxRedirects int

	// MaxResponseBytes caps response bodies read through ReadBody.
	MaxResponseBytes int64
}

// DefaultConfig mirrors the executor's 10s request budget.
func DefaultConfig() *Config {
	return &Config{
		TimeoutMS:        10000,
		ConnectTimeoutMS: 2000,
		MaxRedirects:     3,
		MaxResponseBytes: 1048576,
	}
}

// Client is a bounded HTTP client.
type Client struct {
	cfg        *Config
	httpClient *http.Client
}

// New creates a new bounded client.
// The client ignores proxy environment variables.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
	}

	transport := &http.Transport{
		Proxy:           nil,
		DialContext:     dialer.DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	maxRedirects := cfg.MaxRedirects
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("%w: exceeded limit of %d", ErrTooManyRedirects, maxRedirects)
				}
				return nil
			},
		},
	}
}

// Do performs an HTTP request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// ReadBody reads and closes the response body, enforcing the size cap.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.cfg.MaxResponseBytes)
	}
	return body, nil
}
