package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identifyhq/identify/internal/client"
	"github.com/identifyhq/identify/internal/orchestrator"
	"github.com/identifyhq/identify/internal/session"
	"github.com/identifyhq/identify/internal/store"
	"github.com/identifyhq/identify/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeBackend implements Resolver, History, Analyzer and the scrape
// Provider with programmable failures.
type fakeBackend struct {
	mu sync.Mutex

	resolveErr error
	scrapeErr  error
	saveErr    error
	analyzeErr error

	scrapeCalls int
	saved       []client.SearchRecord
}

func (f *fakeBackend) Resolve(_ context.Context, query string) (map[string]string, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return map[string]string{
		session.PlatformReddit:  "https://reddit.com/user/x",
		session.PlatformYouTube: "https://youtube.com/@x",
	}, nil
}

func (f *fakeBackend) Scrape(_ context.Context, sources map[string]string, score float64, deviceID string) (json.RawMessage, error) {
	f.mu.Lock()
	f.scrapeCalls++
	err := f.scrapeErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(`{"scraped": true}`), nil
}

func (f *fakeBackend) SaveSearch(_ context.Context, rec client.SearchRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	f.saved = append(f.saved, rec)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Analyze(_ context.Context, query string, _ json.RawMessage) (*client.Analysis, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &client.Analysis{Archetype: "The Tester", Summary: "ok", MascotURL: "https://x/m.png"}, nil
}

func (f *fakeBackend) setScrapeErr(err error) {
	f.mu.Lock()
	f.scrapeErr = err
	f.mu.Unlock()
}

func testDeps(f *fakeBackend) Deps {
	return Deps{
		Resolver: f,
		Provider: f,
		History:  f,
		Analyzer: f,
		Scores:   store.New(store.NewMemoryKV(), "dev-test", testLogger()),
		Timeout:  time.Second,
		UserID:   "demo-user",
		Logger:   testLogger(),
	}
}

func TestPipelineHappyPath(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{}

	p, err := New(ctx, "Some One", testDeps(f))
	require.NoError(t, err)

	snap := p.Snapshot()
	assert.Equal(t, PhaseEditing, snap.Phase)
	assert.Equal(t, "Some One", snap.Query)
	assert.Len(t, snap.Sources, 2)

	// User edits one source before confirming.
	require.NoError(t, p.SetSource(session.PlatformInstagram, "https://instagram.com/x"))

	require.NoError(t, p.Confirm(ctx))

	snap = p.Snapshot()
	assert.Equal(t, PhaseDisplay, snap.Phase)
	assert.JSONEq(t, `{"scraped": true}`, string(snap.Result))
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, "The Tester", snap.Analysis.Archetype)

	require.Len(t, f.saved, 1)
	assert.Equal(t, "demo-user", f.saved[0].UserID)
	assert.ElementsMatch(t, []string{session.PlatformReddit, session.PlatformYouTube, session.PlatformInstagram}, f.saved[0].Platforms)
}

func TestPipelineRejectsEmptyQuery(t *testing.T) {
	_, err := New(context.Background(), "   ", testDeps(&fakeBackend{}))
	assert.ErrorIs(t, err, session.ErrEmptyQuery)
}

func TestPipelineResolveFailureSurfaces(t *testing.T) {
	f := &fakeBackend{resolveErr: client.ErrProviderUnavailable}
	_, err := New(context.Background(), "someone", testDeps(f))
	assert.ErrorIs(t, err, client.ErrProviderUnavailable)
}

func TestPipelineScrapeFailureReturnsToEditing(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{}
	deps := testDeps(f)
	deps.Scores.SetScore(ctx, "dev-test", 0.7)

	p, err := New(ctx, "someone", deps)
	require.NoError(t, err)

	f.setScrapeErr(client.ErrTimeout)
	err = p.Confirm(ctx)
	assert.ErrorIs(t, err, client.ErrTimeout)

	snap := p.Snapshot()
	assert.Equal(t, PhaseEditing, snap.Phase, "failed scrape leaves the session editable")
	assert.NotEmpty(t, snap.Failure)
	assert.Equal(t, 0.7, deps.Scores.Score(ctx, "dev-test"), "score store untouched on failure")

	// Session is editable again and a retry goes through.
	require.NoError(t, p.SetSource(session.PlatformReddit, "https://reddit.com/user/other"))
	f.setScrapeErr(nil)
	require.NoError(t, p.Confirm(ctx))
	assert.Equal(t, PhaseDisplay, p.Snapshot().Phase)
	assert.Equal(t, 2, f.scrapeCalls)
}

func TestPipelinePersistFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{saveErr: errors.New("history down")}

	p, err := New(ctx, "someone", testDeps(f))
	require.NoError(t, err)
	require.NoError(t, p.Confirm(ctx))

	snap := p.Snapshot()
	assert.Equal(t, PhaseDisplay, snap.Phase)
	assert.JSONEq(t, `{"scraped": true}`, string(snap.Result), "persist failure never rolls back the scrape")
}

func TestPipelineAnalyzeFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{analyzeErr: client.ErrProviderUnavailable}

	p, err := New(ctx, "someone", testDeps(f))
	require.NoError(t, err)
	require.NoError(t, p.Confirm(ctx))

	snap := p.Snapshot()
	assert.Equal(t, PhaseDisplay, snap.Phase)
	assert.Nil(t, snap.Analysis, "analysis stays pending when the AI service is down")
	assert.NotNil(t, snap.Result)
}

func TestPipelineUnloadDuringScrape(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{}
	deps := testDeps(f)

	entered := make(chan struct{})
	release := make(chan struct{})
	deps.Provider = blockingProvider{entered: entered, release: release}

	p, err := New(ctx, "someone", deps)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Confirm(ctx) }()

	// Once the provider has been entered the wait period is open.
	<-entered
	p.Deliver(telemetry.Event{Type: telemetry.EventUnload})

	// The abandonment write is synchronous: the fixed score is stored
	// before the provider even resolves.
	assert.Equal(t, telemetry.AbandonScore, deps.Scores.Score(ctx, "dev-test"))

	close(release)
	err = <-done
	assert.ErrorIs(t, err, orchestrator.ErrAbandoned, "late success is discarded")
	assert.Equal(t, PhaseAbandoned, p.Snapshot().Phase)
}

func TestPipelineLateUnloadAfterResolveIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{}
	deps := testDeps(f)

	p, err := New(ctx, "someone", deps)
	require.NoError(t, err)

	// The narrow window where the scrape already resolved (wait period
	// closed) but the phase transition has not landed yet: an unload here
	// must not mark the session abandoned or leave a stale failure.
	p.mu.Lock()
	p.phase = PhaseScraping
	p.mu.Unlock()

	p.Deliver(telemetry.Event{Type: telemetry.EventUnload})

	snap := p.Snapshot()
	assert.Equal(t, PhaseScraping, snap.Phase, "a closed wait period means the unload is not an abandonment")
	assert.Empty(t, snap.Failure)
	assert.Equal(t, telemetry.DefaultScore, deps.Scores.Score(ctx, "dev-test"))
}

func TestPipelineConfirmAsyncRejectsDuplicateSynchronously(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	f := &fakeBackend{}
	deps := testDeps(f)
	deps.Provider = blockingProvider{release: release}

	p, err := New(ctx, "someone", deps)
	require.NoError(t, err)

	done := make(chan error, 1)
	require.NoError(t, p.ConfirmAsync(ctx, func(err error) { done <- err }))

	// The loser is told immediately, before any work detaches.
	assert.ErrorIs(t, p.ConfirmAsync(ctx, nil), orchestrator.ErrAlreadyInFlight)

	close(release)
	require.NoError(t, <-done)

	snap := p.Snapshot()
	assert.Equal(t, PhaseDisplay, snap.Phase)
	assert.Empty(t, snap.Failure)
}

func TestPipelineUnloadWhileEditingIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{}
	deps := testDeps(f)

	p, err := New(ctx, "someone", deps)
	require.NoError(t, err)

	// No wait period is open: nothing is written, phase is unchanged.
	p.Deliver(telemetry.Event{Type: telemetry.EventUnload})
	assert.Equal(t, PhaseEditing, p.Snapshot().Phase)
	assert.Equal(t, telemetry.DefaultScore, deps.Scores.Score(ctx, "dev-test"))
}

func TestPipelineDuplicateConfirmSuppressed(t *testing.T) {
	ctx := context.Background()
	blocked := make(chan struct{})
	f := &fakeBackend{}

	deps := testDeps(f)
	deps.Provider = blockingProvider{release: blocked}

	p, err := New(ctx, "someone", deps)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Confirm(ctx) }()

	require.Eventually(t, func() bool {
		return p.Snapshot().Phase == PhaseScraping
	}, time.Second, 5*time.Millisecond)

	err = p.Confirm(ctx)
	assert.Error(t, err, "second confirm while scraping must be suppressed")

	close(blocked)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseDisplay, p.Snapshot().Phase)
}

// blockingProvider holds the scrape open until released, signalling entry
// when an entered channel is provided.
type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingProvider) Scrape(ctx context.Context, _ map[string]string, _ float64, _ string) (json.RawMessage, error) {
	if b.entered != nil {
		close(b.entered)
	}
	select {
	case <-b.release:
		return json.RawMessage(`{"scraped": true}`), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{}
	m := NewManager()

	p1, err := New(ctx, "first", testDeps(f))
	require.NoError(t, err)
	p2, err := New(ctx, "second", testDeps(f))
	require.NoError(t, err)

	m.Add(p1)
	m.Add(p2)

	assert.Equal(t, p1, m.Get(p1.ID()))
	assert.Nil(t, m.Get("missing"))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Snapshot().Query, "most recent first")

	m.Remove(p1.ID())
	assert.Nil(t, m.Get(p1.ID()))
}
