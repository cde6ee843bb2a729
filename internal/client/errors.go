// Package client provides typed HTTP clients for the external services:
// source resolution, scraping, history persistence, and AI analysis.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Sentinel errors for provider failures. Use errors.Is() in calling code.
var (
	// ErrProviderUnavailable indicates a network or connection failure
	// before any HTTP response arrived.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrTimeout indicates the call did not resolve within its deadline.
	ErrTimeout = errors.New("provider timed out")
)

// ProviderError is a non-2xx response with a body.
type ProviderError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Body)
}

// classifyTransportError maps a transport-level error onto the taxonomy:
// deadline-style failures become ErrTimeout, everything else
// ErrProviderUnavailable.
func classifyTransportError(service string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, service, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, service, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, service, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, service, err)
}
