package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/identifyhq/identify/internal/session"
)

// Mock implements all four external service surfaces in-process with
// canned, deterministic fixtures. Used by --mock runs and tests.
type Mock struct {
	mu    sync.Mutex
	saved []SearchRecord
}

// NewMock creates an empty mock backend.
func NewMock() *Mock {
	return &Mock{}
}

// Resolve fabricates plausible profile URLs from the query.
func (m *Mock) Resolve(_ context.Context, query string) (map[string]string, error) {
	handle := slugify(query)
	return map[string]string{
		session.PlatformReddit:    "https://reddit.com/user/" + handle,
		session.PlatformYouTube:   "https://youtube.com/@" + handle,
		session.PlatformInstagram: "https://instagram.com/" + handle,
		session.PlatformLinkedIn:  "https://linkedin.com/in/" + handle,
	}, nil
}

// Scrape returns a fixture payload that echoes the submitted job, so
// downstream stages have something realistic to carry.
func (m *Mock) Scrape(_ context.Context, sources map[string]string, impatienceScore float64, deviceID string) (json.RawMessage, error) {
	payload := map[string]any{
		"device_id":        deviceID,
		"impatience_score": impatienceScore,
		"platforms":        map[string]any{},
	}
	platforms := payload["platforms"].(map[string]any)
	for platform, url := range sources {
		platforms[platform] = map[string]any{
			"url":       url,
			"posts":     3,
			"followers": 1200,
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SaveSearch stores the record in memory and assigns it an id.
func (m *Mock) SaveSearch(_ context.Context, rec SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.saved = append(m.saved, rec)
	return nil
}

// History lists stored records for userID, most recent first.
func (m *Mock) History(_ context.Context, userID string) ([]SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SearchRecord
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].UserID == userID {
			out = append(out, m.saved[i])
		}
	}
	return out, nil
}

// Search fetches a stored record by id.
func (m *Mock) Search(_ context.Context, id string) (*SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.saved {
		if m.saved[i].ID == id {
			rec := m.saved[i]
			return &rec, nil
		}
	}
	return nil, &ProviderError{Service: "history", StatusCode: 404, Body: fmt.Sprintf("search %q not found", id)}
}

// Analyze returns a fixture community analysis.
func (m *Mock) Analyze(_ context.Context, query string, _ json.RawMessage) (*Analysis, error) {
	return &Analysis{
		Archetype: "The Builder",
		Summary:   fmt.Sprintf("The %s community skews hands-on and optimistic.", query),
		MascotURL: "https://example.com/mascots/" + slugify(query) + ".png",
	}, nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return b.String()
}
