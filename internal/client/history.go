package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// SearchRecord is one persisted lookup in the history service.
type SearchRecord struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"userId"`
	Query     string          `json:"query"`
	Platforms []string        `json:"platforms"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"createdAt,omitempty"`
}

// HistoryClient talks to the document storage backend. All writes are
// best-effort from the pipeline's point of view; only the caller decides
// whether a failure matters.
type HistoryClient struct {
	doer httpDoer
}

// NewHistoryClient creates a history client for the given base URL.
func NewHistoryClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HistoryClient {
	return &HistoryClient{doer: newDoer("history", baseURL, timeout, logger)}
}

// SaveSearch persists a completed lookup.
func (c *HistoryClient) SaveSearch(ctx context.Context, rec SearchRecord) error {
	return c.doer.postJSON(ctx, "/search", rec, nil)
}

// History lists a user's persisted lookups.
func (c *HistoryClient) History(ctx context.Context, userID string) ([]SearchRecord, error) {
	var records []SearchRecord
	if err := c.doer.getJSON(ctx, "/history/"+userID, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Search fetches a single persisted lookup by id.
func (c *HistoryClient) Search(ctx context.Context, id string) (*SearchRecord, error) {
	var rec SearchRecord
	if err := c.doer.getJSON(ctx, "/search/"+id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
