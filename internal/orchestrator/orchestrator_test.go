package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identifyhq/identify/internal/client"
	"github.com/identifyhq/identify/internal/session"
	"github.com/identifyhq/identify/internal/store"
	"github.com/identifyhq/identify/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// providerFunc adapts a function to the Provider interface.
type providerFunc func(ctx context.Context, sources map[string]string, impatienceScore float64, deviceID string) (json.RawMessage, error)

func (f providerFunc) Scrape(ctx context.Context, sources map[string]string, impatienceScore float64, deviceID string) (json.RawMessage, error) {
	return f(ctx, sources, impatienceScore, deviceID)
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New("someone")
	require.NoError(t, err)
	require.NoError(t, sess.SetSource(session.PlatformReddit, "https://reddit.com/user/someone"))
	return sess
}

func fixture(t *testing.T, provider Provider) (*Orchestrator, *store.Store, *telemetry.Collector) {
	t.Helper()
	scores := store.New(store.NewMemoryKV(), "dev-test", testLogger())
	collector := telemetry.NewCollector(nil)
	orch := New(provider, scores, collector, 5*time.Second, testLogger())
	return orch, scores, collector
}

func TestSubmitSuccess(t *testing.T) {
	ctx := context.Background()

	var gotScore float64
	var gotDevice string
	var collector *telemetry.Collector

	provider := providerFunc(func(_ context.Context, sources map[string]string, score float64, deviceID string) (json.RawMessage, error) {
		gotScore = score
		gotDevice = deviceID
		// Interaction arrives while the job is in flight.
		for i := 0; i < 12; i++ {
			collector.Deliver(telemetry.Event{Type: telemetry.EventClick, At: time.Now().Add(time.Duration(i) * 400 * time.Millisecond)})
		}
		collector.Deliver(telemetry.Event{Type: telemetry.EventVisibilityHidden})
		return json.RawMessage(`{"ok": true}`), nil
	})

	orch, scores, c := fixture(t, provider)
	collector = c

	// Seed a prior score so we can observe it being passed and replaced.
	scores.SetScore(ctx, "dev-test", 0.7)

	sess := newSession(t)
	require.NoError(t, orch.Confirm(sess))
	assert.Equal(t, StateAwaitingSubmission, orch.State())

	result, err := orch.Submit(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(result))
	assert.Equal(t, StateCompleted, orch.State())

	assert.Equal(t, 0.7, gotScore, "job carries the prior score")
	assert.Equal(t, "dev-test", gotDevice)

	// 12 slow clicks (+0.1) and one tab switch (+0.1) over a short wait.
	assert.InDelta(t, 0.5, scores.Score(ctx, "dev-test"), 1e-9)
}

func TestSubmitRequiresConfirm(t *testing.T) {
	orch, _, _ := fixture(t, providerFunc(func(context.Context, map[string]string, float64, string) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}))

	_, err := orch.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestSubmitSuppressesDuplicates(t *testing.T) {
	release := make(chan struct{})
	provider := providerFunc(func(ctx context.Context, _ map[string]string, _ float64, _ string) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`{}`), nil
	})

	orch, _, _ := fixture(t, provider)
	require.NoError(t, orch.Confirm(newSession(t)))

	done := make(chan error, 1)
	go func() {
		_, err := orch.Submit(context.Background())
		done <- err
	}()

	// Wait for the first submission to be in flight.
	require.Eventually(t, func() bool {
		return orch.State() == StateInFlight
	}, time.Second, 5*time.Millisecond)

	_, err := orch.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyInFlight)

	close(release)
	require.NoError(t, <-done)

	// After completion a further submit is rejected too.
	_, err = orch.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestSubmitProviderErrorLeavesScoreUntouched(t *testing.T) {
	ctx := context.Background()
	provider := providerFunc(func(context.Context, map[string]string, float64, string) (json.RawMessage, error) {
		return nil, &client.ProviderError{Service: "scraper", StatusCode: http.StatusBadGateway, Body: "upstream sad"}
	})

	orch, scores, _ := fixture(t, provider)
	scores.SetScore(ctx, "dev-test", 0.7)

	require.NoError(t, orch.Confirm(newSession(t)))
	_, err := orch.Submit(ctx)

	var provErr *client.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, StateFailed, orch.State())
	assert.Equal(t, 0.7, scores.Score(ctx, "dev-test"), "a failed scrape is not an impatience signal")
}

func TestSubmitTimeoutAllowsRetry(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	provider := providerFunc(func(jobCtx context.Context, _ map[string]string, _ float64, _ string) (json.RawMessage, error) {
		attempts++
		if attempts == 1 {
			<-jobCtx.Done()
			return nil, jobCtx.Err()
		}
		return json.RawMessage(`{"ok": true}`), nil
	})

	scores := store.New(store.NewMemoryKV(), "dev-test", testLogger())
	scores.SetScore(ctx, "dev-test", 0.7)
	collector := telemetry.NewCollector(nil)
	orch := New(provider, scores, collector, 30*time.Millisecond, testLogger())

	sess := newSession(t)
	require.NoError(t, orch.Confirm(sess))

	_, err := orch.Submit(ctx)
	assert.ErrorIs(t, err, client.ErrTimeout)
	assert.Equal(t, StateFailed, orch.State())
	assert.Equal(t, 0.7, scores.Score(ctx, "dev-test"), "timeout must not mutate the stored score")

	// The caller re-enters the editable state and resubmits.
	require.NoError(t, orch.Reenter())
	assert.Equal(t, StateAwaitingSubmission, orch.State())

	result, err := orch.Submit(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(result))
}

func TestAbandonMidFlight(t *testing.T) {
	ctx := context.Background()
	var collector *telemetry.Collector

	provider := providerFunc(func(context.Context, map[string]string, float64, string) (json.RawMessage, error) {
		// Telemetry gathered so far must not matter: unload wins.
		collector.Deliver(telemetry.Event{Type: telemetry.EventClick})
		collector.Deliver(telemetry.Event{Type: telemetry.EventUnload})
		// The provider still "succeeds", too late.
		return json.RawMessage(`{"ok": true}`), nil
	})

	orch, scores, c := fixture(t, provider)
	collector = c

	require.NoError(t, orch.Confirm(newSession(t)))
	_, err := orch.Submit(ctx)
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Equal(t, StateFailed, orch.State())

	assert.Equal(t, telemetry.AbandonScore, scores.Score(ctx, "dev-test"),
		"abandonment writes the fixed score regardless of counters")

	// An abandoned session cannot be re-entered.
	assert.ErrorIs(t, orch.Reenter(), ErrAbandoned)
}

func TestAbandonCancelsInFlightScrape(t *testing.T) {
	ctx := context.Background()
	var collector *telemetry.Collector
	cancelled := make(chan struct{}, 1)

	provider := providerFunc(func(jobCtx context.Context, _ map[string]string, _ float64, _ string) (json.RawMessage, error) {
		collector.Deliver(telemetry.Event{Type: telemetry.EventUnload})
		// The unload must have cancelled this job's context already.
		select {
		case <-jobCtx.Done():
			cancelled <- struct{}{}
			return nil, jobCtx.Err()
		case <-time.After(500 * time.Millisecond):
			return json.RawMessage(`{"ok": true}`), nil
		}
	})

	orch, scores, c := fixture(t, provider)
	collector = c

	require.NoError(t, orch.Confirm(newSession(t)))
	_, err := orch.Submit(ctx)
	assert.ErrorIs(t, err, ErrAbandoned)

	select {
	case <-cancelled:
	default:
		t.Fatal("pending scrape work was not cancelled on abandonment")
	}
	assert.Equal(t, telemetry.AbandonScore, scores.Score(ctx, "dev-test"))
}

func TestReenterOnlyFromFailed(t *testing.T) {
	orch, _, _ := fixture(t, providerFunc(func(context.Context, map[string]string, float64, string) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}))

	assert.Error(t, orch.Reenter(), "idle orchestrator has nothing to re-enter")

	require.NoError(t, orch.Confirm(newSession(t)))
	assert.Error(t, orch.Reenter())
}
