package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"neural_consensus/internal/domain"
)

const (
	defaultTimeout           = 5 * time.Minute
	maxHTTPErrorBodyReadSize = 64 * 1024
	maxResponseBytes         = 16 * 1024 * 1024
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *log.Logger
	Client  *http.Client
}

// Client talks to the consensus backend. Generate issues exactly one
// request; retries are left to the user.
type Client struct {
	baseURL string
	logger  *log.Logger
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("empty backend base url")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend base url %q: %w", base, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base,
		logger:  cfg.Logger,
		http:    client,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Generate(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("marshal run request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.RunResult{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
		return domain.RunResult{}, &TransportError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return domain.RunResult{}, &TransportError{Err: fmt.Errorf("read generate response: %w", err)}
	}
	if len(raw) > maxResponseBytes {
		return domain.RunResult{}, &DecodeError{Err: fmt.Errorf("response exceeds %d bytes", maxResponseBytes)}
	}
	result, err := decodeResult(raw)
	if err != nil {
		return domain.RunResult{}, err
	}
	c.logger.Printf("backend generate done status=%d bytes=%d elapsed=%s", resp.StatusCode, len(raw), time.Since(started).Round(time.Millisecond))
	return result, nil
}

// Status probes the backend health route.
func (c *Client) Status(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return "", fmt.Errorf("create status request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
	if resp.StatusCode >= 300 {
		return "", &TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &DecodeError{Err: err}
	}
	return payload.Status, nil
}

// decodeResult requires a JSON object; every field inside it is optional.
func decodeResult(raw []byte) (domain.RunResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.RunResult{}, &DecodeError{Err: fmt.Errorf("expected JSON object, got %q", trimText(string(trimmed), 80))}
	}
	var result domain.RunResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return domain.RunResult{}, &DecodeError{Err: err}
	}
	if result.ExpertResponses == nil {
		result.ExpertResponses = map[string]string{}
	}
	return result, nil
}

func trimText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
