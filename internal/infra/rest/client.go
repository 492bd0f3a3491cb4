// Package rest implements the REST gateways the core reconciles against.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"storefront/config"
	"storefront/internal/errors"
)

// Client is the shared HTTP client under both gateways.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient builds the shared REST client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	timeout := cfg.API.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:    cfg.API.BaseURL,
		authToken:  cfg.Principal.AuthToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return errors.Errorf("api error: %s %s status=%d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}

	return nil
}

// listEnvelope matches the three list shapes the backend is known to
// return: a bare array, or an object wrapping it under data, messages or
// content.
type listEnvelope struct {
	Data     json.RawMessage `json:"data"`
	Messages json.RawMessage `json:"messages"`
	Content  json.RawMessage `json:"content"`
}

// unwrapList extracts the array part of a list response regardless of
// which of the known shapes the backend used.
func unwrapList(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty list response")
	}

	if trimmed[0] == '[' {
		return trimmed, nil
	}

	var envelope listEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, errors.Wrap(err, "unwrap list response")
	}

	for _, candidate := range []json.RawMessage{envelope.Data, envelope.Messages, envelope.Content} {
		inner := bytes.TrimSpace(candidate)
		if len(inner) > 0 && inner[0] == '[' {
			return inner, nil
		}
	}

	return nil, errors.New("list response in unknown shape")
}
