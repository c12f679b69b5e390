// Package backend is a client for the hosted FlowCraft backend: PostgREST
// table queries plus named remote procedures. Every call yields a Result
// whose Error field must be checked explicitly; the backend owns all real
// logic (joins, constraints, row-level security) and its rejections are
// authoritative.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/flowcraft-app/flowcraft-go/config"
	"github.com/flowcraft-app/flowcraft-go/httpclient"
)

// TokenSource supplies the caller's bearer token. When it returns an
// empty string the public anon key is used instead.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource wrapping a fixed token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Client talks to the backend REST and RPC surface.
type Client struct {
	baseURL string
	anonKey string
	schema  string
	http    *httpclient.Client
	tokens  TokenSource
}

// New creates a backend client. tokens may be nil for anonymous access.
func New(cfg config.BackendConfig, hc *httpclient.Client, tokens TokenSource) *Client {
	if hc == nil {
		hc = httpclient.New(nil)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		schema:  cfg.Schema,
		http:    hc,
		tokens:  tokens,
	}
}

// From starts a table query.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table, method: http.MethodGet}
}

// RPC invokes a named server-side procedure with the given parameters.
func (c *Client) RPC(ctx context.Context, name string, params any) (*Result, error) {
	var body bytes.Buffer
	if params == nil {
		params = map[string]any{}
	}
	if err := json.NewEncoder(&body).Encode(params); err != nil {
		return nil, fmt.Errorf("failed to encode rpc params: %w", err)
	}

	url := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req)
}

func (c *Client) bearer() string {
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			return tok
		}
	}
	return c.anonKey
}

// send performs the request and folds backend-reported errors into the
// Result rather than the returned error. The error return carries only
// transport-level failures.
func (c *Client) send(req *http.Request) (*Result, error) {
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	if c.schema != "" {
		req.Header.Set("Accept-Profile", c.schema)
		req.Header.Set("Content-Profile", c.schema)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	body, err := c.http.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		be := &Error{}
		if jsonErr := json.Unmarshal(body, be); jsonErr != nil || be.Message == "" {
			be.Code = fmt.Sprintf("%d", resp.StatusCode)
			if be.Message == "" {
				be.Message = strings.TrimSpace(string(body))
			}
			if be.Message == "" {
				be.Message = resp.Status
			}
		}
		return &Result{Error: be}, nil
	}

	return &Result{Data: json.RawMessage(body)}, nil
}
