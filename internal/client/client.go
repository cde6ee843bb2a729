package client

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

// maxErrorBodyLen caps provider error bodies carried in errors and logs.
const maxErrorBodyLen = 512

// httpDoer is the shared plumbing for all service clients: JSON in, JSON
// out, failures mapped onto the provider error taxonomy.
type httpDoer struct {
	service    string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newDoer(service, baseURL string, timeout time.Duration, logger *slog.Logger) httpDoer {
	if logger == nil {
		logger = slog.Default()
	}
	return httpDoer{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// postJSON sends payload to path and decodes the response into result
// (which may be nil to discard the body).
func (d httpDoer) postJSON(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return d.do(req, result)
}

// getJSON fetches path and decodes the response into result.
func (d httpDoer) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return d.do(req, result)
}

func (d httpDoer) do(req *http.Request, result any) error {
	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(d.service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(d.service, err)
	}

	d.logger.Debug("request completed",
		"service", d.service,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{
			Service:    d.service,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBodyLen),
		}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal %s response: %w", d.service, err)
		}
	}
	return nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
