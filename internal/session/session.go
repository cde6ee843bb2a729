// Package session models one identity lookup: a query plus the confirmed
// set of profile URLs, from submission through the displayed result.
package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Platform ids recognized by the resolver and scraper.
const (
	PlatformReddit    = "reddit"
	PlatformYouTube   = "youtube"
	PlatformInstagram = "instagram"
	PlatformLinkedIn  = "linkedin"
)

// Platforms returns the recognized platform ids in display order.
func Platforms() []string {
	return []string{PlatformReddit, PlatformYouTube, PlatformInstagram, PlatformLinkedIn}
}

// Input validation errors, resolved locally before any network call.
var (
	// ErrEmptyQuery indicates a blank or whitespace-only query.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrInvalidURL indicates a source value that is neither empty nor an
	// absolute http(s) URL.
	ErrInvalidURL = errors.New("source must be an absolute URL or empty")

	// ErrUnknownPlatform indicates a platform id outside Platforms().
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrImmutable indicates an edit after the session was confirmed.
	ErrImmutable = errors.New("session is confirmed and no longer editable")
)

// Session is one query and its source set. Sources are editable until
// Confirm, immutable while a scrape is running, and editable again only if
// the scrape fails and the session is reopened.
type Session struct {
	id    string
	query string

	mu        sync.RWMutex
	sources   map[string]string
	confirmed bool
}

// New creates a session for a trimmed, non-empty query.
func New(query string) (*Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return &Session{
		id:      uuid.New().String()[:8], // short id for convenience
		query:   query,
		sources: make(map[string]string),
	}, nil
}

// ID returns the session's short identifier.
func (s *Session) ID() string { return s.id }

// Query returns the trimmed query.
func (s *Session) Query() string { return s.query }

// SetSource records the profile URL for a platform. An empty URL clears
// the platform. Fails once the session is confirmed.
func (s *Session) SetSource(platform, rawURL string) error {
	if !knownPlatform(platform) {
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	rawURL = strings.TrimSpace(rawURL)
	if err := validateSourceURL(rawURL); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmed {
		return ErrImmutable
	}
	if rawURL == "" {
		delete(s.sources, platform)
		return nil
	}
	s.sources[platform] = rawURL
	return nil
}

// SetSources applies a whole source mapping, skipping unknown platforms
// and rejecting malformed URLs.
func (s *Session) SetSources(sources map[string]string) error {
	for platform, rawURL := range sources {
		if !knownPlatform(platform) {
			continue
		}
		if err := s.SetSource(platform, rawURL); err != nil {
			return err
		}
	}
	return nil
}

// Sources returns a copy of the current source mapping.
func (s *Session) Sources() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.sources))
	for k, v := range s.sources {
		out[k] = v
	}
	return out
}

// Confirm freezes the source set. Idempotent.
func (s *Session) Confirm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = true
}

// Reopen makes the session editable again after a failed scrape.
func (s *Session) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = false
}

// Confirmed reports whether the source set is frozen.
func (s *Session) Confirmed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmed
}

func knownPlatform(platform string) bool {
	switch platform {
	case PlatformReddit, PlatformYouTube, PlatformInstagram, PlatformLinkedIn:
		return true
	}
	return false
}

func validateSourceURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return nil
}
