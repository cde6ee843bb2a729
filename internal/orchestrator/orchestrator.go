// Package orchestrator drives one scrape job through its lifecycle:
// read the impatience score, submit the job, settle the wait period, and
// persist the new score on success.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/identifyhq/identify/internal/client"
	"github.com/identifyhq/identify/internal/session"
	"github.com/identifyhq/identify/internal/store"
	"github.com/identifyhq/identify/internal/telemetry"
)

// State is the orchestrator's position in its lifecycle.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingSubmission State = "awaiting_submission"
	StateInFlight           State = "in_flight"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// State machine errors.
var (
	// ErrNotConfirmed indicates Submit before Confirm.
	ErrNotConfirmed = errors.New("no confirmed session awaiting submission")

	// ErrAlreadyInFlight indicates a duplicate submission; exactly one
	// scrape job may be in flight per session.
	ErrAlreadyInFlight = errors.New("scrape job already in flight")

	// ErrAbandoned indicates the user left before the scrape resolved;
	// the abandonment write took precedence over the late result.
	ErrAbandoned = errors.New("session abandoned before scrape resolved")
)

// Provider is the external scrape service. Implementations must honor
// context cancellation and return errors from the client taxonomy.
type Provider interface {
	Scrape(ctx context.Context, sources map[string]string, impatienceScore float64, deviceID string) (json.RawMessage, error)
}

// Orchestrator sequences one session's scrape. It owns the telemetry wait
// period: the period opens at submission and closes at resolution or
// abandonment, and only completed waits feed the scorer.
type Orchestrator struct {
	provider  Provider
	scores    *store.Store
	collector *telemetry.Collector
	timeout   time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	sess      *session.Session
	abandoned bool
	cancelJob context.CancelFunc
}

// New creates an orchestrator in the Idle state and wires the collector's
// abandonment path: an unload mid-wait writes the fixed high-impatience
// score synchronously and marks the job abandoned.
func New(provider Provider, scores *store.Store, collector *telemetry.Collector, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		provider:  provider,
		scores:    scores,
		collector: collector,
		timeout:   timeout,
		logger:    logger,
		state:     StateIdle,
	}
	collector.OnAbandon(func(score float64) {
		// Synchronous: must complete before the host process may exit.
		deviceID := scores.DeviceID(context.Background())
		scores.SetScore(context.Background(), deviceID, score)

		var cancel context.CancelFunc
		o.mu.Lock()
		if o.state == StateInFlight {
			o.state = StateFailed
			o.abandoned = true
			cancel = o.cancelJob
		}
		o.mu.Unlock()

		// The user is gone; cancel the pending provider call rather than
		// letting it run out its timeout.
		if cancel != nil {
			cancel()
		}

		logger.Info("wait period abandoned", "device_id", deviceID, "score", score)
	})
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Abandoned reports whether an abandonment write closed this session.
func (o *Orchestrator) Abandoned() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abandoned
}

// Confirm freezes the session's sources and moves Idle to
// AwaitingSubmission. Confirming an already-awaiting session (a retry
// after a re-entered failure) just re-freezes the sources.
func (o *Orchestrator) Confirm(sess *session.Session) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle && o.state != StateAwaitingSubmission {
		return fmt.Errorf("cannot confirm in state %q", o.state)
	}
	sess.Confirm()
	o.sess = sess
	o.state = StateAwaitingSubmission
	return nil
}

// Submit runs the confirmed scrape job and blocks until it resolves.
// Duplicate submissions are suppressed here, not by the caller. On success
// the wait period's telemetry is scored and persisted; on failure the
// score store is left untouched and the typed error is returned.
func (o *Orchestrator) Submit(ctx context.Context) (json.RawMessage, error) {
	o.mu.Lock()
	switch o.state {
	case StateInFlight:
		o.mu.Unlock()
		return nil, ErrAlreadyInFlight
	case StateAwaitingSubmission:
		// proceed
	default:
		o.mu.Unlock()
		return nil, fmt.Errorf("%w (state %q)", ErrNotConfirmed, o.state)
	}
	o.state = StateInFlight
	sources := o.sess.Sources()
	jobCtx, cancel := context.WithTimeout(ctx, o.timeout)
	o.cancelJob = cancel
	o.mu.Unlock()
	defer cancel()

	deviceID := o.scores.DeviceID(ctx)
	score := o.scores.Score(ctx, deviceID)

	o.collector.Start()
	o.logger.Info("scrape submitted",
		"device_id", deviceID,
		"impatience_score", score,
		"platforms", len(sources),
	)

	result, err := o.provider.Scrape(jobCtx, sources, score, deviceID)

	// Close the wait period first: counters reflect only events that
	// arrived strictly before resolution.
	sample, open := o.collector.Close()
	if !open {
		// Abandonment raced the result and wins.
		return nil, ErrAbandoned
	}

	if err != nil {
		err = classify(err)
		o.mu.Lock()
		o.state = StateFailed
		o.mu.Unlock()
		o.logger.Warn("scrape failed", "device_id", deviceID, "error", err)
		return nil, err
	}

	newScore := telemetry.ScoreSample(sample)
	o.scores.SetScore(ctx, deviceID, newScore)

	o.mu.Lock()
	o.state = StateCompleted
	o.mu.Unlock()

	o.logger.Info("scrape completed",
		"device_id", deviceID,
		"wait_ms", sample.WaitDuration.Milliseconds(),
		"total_clicks", sample.TotalClicks,
		"rage_events", sample.RageClickEvents,
		"tab_switches", sample.TabSwitches,
		"new_score", newScore,
	)
	return result, nil
}

// Reenter moves Failed back to AwaitingSubmission so the caller can retry.
// Retry policy itself lives with the caller; the orchestrator never
// retries on its own.
func (o *Orchestrator) Reenter() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateFailed {
		return fmt.Errorf("cannot re-enter from state %q", o.state)
	}
	if o.abandoned {
		return ErrAbandoned
	}
	o.state = StateAwaitingSubmission
	return nil
}

// classify maps raw provider errors onto the taxonomy in case a provider
// surfaces a bare context error instead of a client-wrapped one.
func classify(err error) error {
	switch {
	case errors.Is(err, client.ErrTimeout),
		errors.Is(err, client.ErrProviderUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", client.ErrTimeout, err)
	}
	var provErr *client.ProviderError
	if errors.As(err, &provErr) {
		return err
	}
	return fmt.Errorf("%w: %v", client.ErrProviderUnavailable, err)
}
