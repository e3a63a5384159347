// Package memoryctx is a thin client for the managed memory service the
// advisor uses for per-client personalization context.
//
// The service owns the full fact lifecycle (extraction, deduplication,
// promotion, expiry); this client only searches and appends. It is treated as
// an optional enrichment: every failure is absorbed by the caller and advice
// proceeds without memory context.
package memoryctx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one memory service call.
const DefaultTimeout = 5 * time.Second

// Memory is one stored fact about a client.
type Memory struct {
	ID      string  `json:"id"`
	Content string  `json:"memory"`
	Score   float64 `json:"score,omitempty"`
}

// Client talks to the managed memory service.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. baseURL is required; httpClient nil gets a client
// with DefaultTimeout.
func New(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("memory service base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Search returns the stored facts most relevant to the query for one client.
func (c *Client) Search(ctx context.Context, clientID, query string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"user_id": clientID,
		"query":   query,
		"limit":   limit,
	}

	var resp struct {
		Memories []Memory `json:"memories"`
	}
	if err := c.post(ctx, "/v1/memories/search", body, &resp); err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}
	return resp.Memories, nil
}

// Add records an interaction for the service to distill into facts. The
// service decides what, if anything, is worth keeping.
func (c *Client) Add(ctx context.Context, clientID, question, answer string) error {
	body := map[string]any{
		"user_id": clientID,
		"messages": []map[string]string{
			{"role": "user", "content": question},
			{"role": "assistant", "content": answer},
		},
	}
	if err := c.post(ctx, "/v1/memories", body, nil); err != nil {
		return fmt.Errorf("memory add: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
