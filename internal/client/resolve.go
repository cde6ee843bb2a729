package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/identifyhq/identify/internal/session"
)

// wireSources is the resolver's source shape on the wire. Field names
// follow the hosted service's contract; empty strings mean "no profile
// found" for that platform.
type wireSources struct {
	RedditURL    string `json:"redditUrl"`
	YouTubeURL   string `json:"youtubeUrl"`
	InstagramURL string `json:"instagramUrl"`
	LinkedInURL  string `json:"linkedinUrl"`
}

func (w wireSources) toMap() map[string]string {
	m := make(map[string]string, 4)
	if w.RedditURL != "" {
		m[session.PlatformReddit] = w.RedditURL
	}
	if w.YouTubeURL != "" {
		m[session.PlatformYouTube] = w.YouTubeURL
	}
	if w.InstagramURL != "" {
		m[session.PlatformInstagram] = w.InstagramURL
	}
	if w.LinkedInURL != "" {
		m[session.PlatformLinkedIn] = w.LinkedInURL
	}
	return m
}

func wireSourcesFromMap(m map[string]string) wireSources {
	return wireSources{
		RedditURL:    m[session.PlatformReddit],
		YouTubeURL:   m[session.PlatformYouTube],
		InstagramURL: m[session.PlatformInstagram],
		LinkedInURL:  m[session.PlatformLinkedIn],
	}
}

// ResolveClient resolves a free-form query into candidate profile URLs.
type ResolveClient struct {
	doer httpDoer
}

// NewResolveClient creates a resolver client for the given base URL.
func NewResolveClient(baseURL string, timeout time.Duration, logger *slog.Logger) *ResolveClient {
	return &ResolveClient{doer: newDoer("resolver", baseURL, timeout, logger)}
}

// Resolve asks the hosted resolver for candidate profile URLs. The
// returned mapping contains only platforms with a non-empty URL; it may be
// empty, never nil.
func (c *ResolveClient) Resolve(ctx context.Context, query string) (map[string]string, error) {
	req := struct {
		Query string `json:"query"`
	}{Query: query}

	var resp struct {
		Query   string      `json:"query"`
		Sources wireSources `json:"sources"`
	}
	if err := c.doer.postJSON(ctx, "/resolve-sources", req, &resp); err != nil {
		return nil, err
	}
	return resp.Sources.toMap(), nil
}
