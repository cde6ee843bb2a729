package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Analysis is the generative-AI output for a scraped community: an
// archetype label, a prose summary, and a mascot image URL.
type Analysis struct {
	Archetype string `json:"archetype"`
	Summary   string `json:"summary"`
	MascotURL string `json:"mascot_url"`
}

// AnalyzeClient talks to the hosted AI analysis service. The service may
// be unavailable; callers render a pending placeholder in that case rather
// than failing the pipeline.
type AnalyzeClient struct {
	doer httpDoer
}

// NewAnalyzeClient creates an analysis client for the given base URL.
func NewAnalyzeClient(baseURL string, timeout time.Duration, logger *slog.Logger) *AnalyzeClient {
	return &AnalyzeClient{doer: newDoer("analyze", baseURL, timeout, logger)}
}

// Analyze submits a scrape result for community analysis.
func (c *AnalyzeClient) Analyze(ctx context.Context, query string, result json.RawMessage) (*Analysis, error) {
	req := struct {
		Query  string          `json:"query"`
		Result json.RawMessage `json:"result"`
	}{Query: query, Result: result}

	var analysis Analysis
	if err := c.doer.postJSON(ctx, "/analyze", req, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}
