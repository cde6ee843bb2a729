package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/identifyhq/identify/internal/telemetry"
)

// ScrapeClient submits scrape jobs to the hosted scrape provider.
type ScrapeClient struct {
	doer httpDoer
}

// NewScrapeClient creates a scraper client for the given base URL. The
// timeout here is a transport ceiling; the orchestrator applies the real
// per-job deadline through the context.
func NewScrapeClient(baseURL string, timeout time.Duration, logger *slog.Logger) *ScrapeClient {
	return &ScrapeClient{doer: newDoer("scraper", baseURL, timeout, logger)}
}

// scrapeRequest is the provider's wire contract. The impatience score is
// advisory; how the provider uses it (pacing, depth) is its own business.
type scrapeRequest struct {
	Sources         wireSources `json:"sources"`
	ImpatienceScore float64     `json:"impatience_score"`
	DeviceID        string      `json:"device_id"`
}

// Scrape runs one scrape job and returns the provider's payload verbatim.
// A NaN or out-of-range score is replaced by the bootstrap default before
// it goes on the wire.
func (c *ScrapeClient) Scrape(ctx context.Context, sources map[string]string, impatienceScore float64, deviceID string) (json.RawMessage, error) {
	if math.IsNaN(impatienceScore) || impatienceScore < 0 || impatienceScore > 1 {
		c.doer.logger.Warn("invalid impatience score, sending default",
			"score", impatienceScore, "device_id", deviceID)
		impatienceScore = telemetry.DefaultScore
	}

	req := scrapeRequest{
		Sources:         wireSourcesFromMap(sources),
		ImpatienceScore: impatienceScore,
		DeviceID:        deviceID,
	}

	var result json.RawMessage
	if err := c.doer.postJSON(ctx, "/scrape", req, &result); err != nil {
		return nil, err
	}
	return result, nil
}
