// Package pipeline ties the lookup stages together: resolve sources, edit
// loop, scrape orchestration, best-effort persistence, AI analysis, and
// the final display state.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/identifyhq/identify/internal/client"
	"github.com/identifyhq/identify/internal/orchestrator"
	"github.com/identifyhq/identify/internal/session"
	"github.com/identifyhq/identify/internal/store"
	"github.com/identifyhq/identify/internal/telemetry"
)

// Phase is the pipeline's position in the lookup flow.
type Phase string

const (
	PhaseEditing   Phase = "editing"
	PhaseScraping  Phase = "scraping"
	PhaseAnalyzing Phase = "analyzing"
	PhaseDisplay   Phase = "display"
	PhaseAbandoned Phase = "abandoned"
)

// Resolver resolves a query into candidate profile URLs.
type Resolver interface {
	Resolve(ctx context.Context, query string) (map[string]string, error)
}

// History persists completed lookups. Failures are logged, never fatal.
type History interface {
	SaveSearch(ctx context.Context, rec client.SearchRecord) error
}

// Analyzer produces the AI community analysis. Failures leave the
// analysis pending rather than failing the lookup.
type Analyzer interface {
	Analyze(ctx context.Context, query string, result json.RawMessage) (*client.Analysis, error)
}

// Deps bundles everything a pipeline needs.
type Deps struct {
	Resolver Resolver
	Provider orchestrator.Provider
	History  History
	Analyzer Analyzer
	Scores   *store.Store
	Timeout  time.Duration
	UserID   string
	Logger   *slog.Logger
}

// Pipeline runs one session from query to displayed result. Each external
// call is independently fallible: a failure at persist or analyze never
// rolls back a successful scrape.
type Pipeline struct {
	deps      Deps
	collector *telemetry.Collector
	orch      *orchestrator.Orchestrator
	logger    *slog.Logger
	startedAt time.Time

	mu       sync.Mutex
	sess     *session.Session
	phase    Phase
	result   json.RawMessage
	analysis *client.Analysis
	failure  string
}

// Snapshot is a point-in-time copy of pipeline state for callers.
type Snapshot struct {
	ID      string            `json:"id"`
	Query   string            `json:"query"`
	Phase   Phase             `json:"phase"`
	Sources map[string]string `json:"sources"`
	Result  json.RawMessage   `json:"result,omitempty"`
	// Analysis is nil while pending or unavailable.
	Analysis *client.Analysis `json:"analysis,omitempty"`
	Failure  string           `json:"failure,omitempty"`
}

// New starts a pipeline for query: validates it, resolves candidate
// sources, and enters the edit loop. Validation errors
// (session.ErrEmptyQuery) are returned before any network call.
func New(ctx context.Context, query string, deps Deps) (*Pipeline, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	sess, err := session.New(query)
	if err != nil {
		return nil, err
	}

	sources, err := deps.Resolver.Resolve(ctx, sess.Query())
	if err != nil {
		return nil, err
	}
	if err := sess.SetSources(sources); err != nil {
		// Resolver handed back a malformed URL; drop it rather than
		// blocking the edit loop.
		deps.Logger.Warn("resolver returned invalid source", "error", err)
	}

	collector := telemetry.NewCollector(nil)
	p := &Pipeline{
		deps:      deps,
		collector: collector,
		orch:      orchestrator.New(deps.Provider, deps.Scores, collector, deps.Timeout, deps.Logger),
		logger:    deps.Logger.With("session_id", sess.ID()),
		startedAt: time.Now(),
		sess:      sess,
		phase:     PhaseEditing,
	}

	p.logger.Info("session started", "query", sess.Query(), "resolved_platforms", len(sources))
	return p, nil
}

// ID returns the session's short identifier.
func (p *Pipeline) ID() string { return p.sess.ID() }

// StartedAt returns the pipeline's creation time.
func (p *Pipeline) StartedAt() time.Time { return p.startedAt }

// SetSource forwards a user edit to the session during the edit loop.
func (p *Pipeline) SetSource(platform, url string) error {
	return p.sess.SetSource(platform, url)
}

// Deliver pushes a host telemetry event into the wait period. Events
// outside an open wait period are discarded by the collector; an unload
// mid-flight triggers the abandonment write and closes the session. The
// session is only marked abandoned once the orchestrator confirms the
// wait period was still open, so an unload that races an already-resolved
// scrape leaves the session untouched.
func (p *Pipeline) Deliver(ev telemetry.Event) {
	p.collector.Deliver(ev)

	if ev.Type == telemetry.EventUnload && p.orch.Abandoned() {
		p.mu.Lock()
		if p.phase == PhaseScraping {
			p.phase = PhaseAbandoned
			p.failure = "abandoned"
		}
		p.mu.Unlock()
	}
}

// begin atomically claims the editing-to-scraping transition. Exactly one
// confirm wins; the rest get ErrAlreadyInFlight synchronously.
func (p *Pipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != PhaseEditing {
		return orchestrator.ErrAlreadyInFlight
	}
	p.phase = PhaseScraping
	p.failure = ""
	return nil
}

// Confirm freezes the sources and runs the rest of the flow: scrape,
// persist, analyze, display. It blocks until the flow settles; callers
// wanting asynchrony use ConfirmAsync or run it on their own goroutine.
// On scrape failure the session is reopened for editing and the typed
// error is returned.
func (p *Pipeline) Confirm(ctx context.Context) error {
	if err := p.begin(); err != nil {
		return err
	}
	return p.run(ctx)
}

// ConfirmAsync claims the transition synchronously, so a duplicate confirm
// is rejected before any work detaches, then runs the flow on its own
// goroutine. onDone, if non-nil, receives the flow's outcome.
func (p *Pipeline) ConfirmAsync(ctx context.Context, onDone func(error)) error {
	if err := p.begin(); err != nil {
		return err
	}
	go func() {
		err := p.run(ctx)
		if onDone != nil {
			onDone(err)
		}
	}()
	return nil
}

func (p *Pipeline) run(ctx context.Context) error {
	if err := p.orch.Confirm(p.sess); err != nil {
		p.fail(err)
		return err
	}

	result, err := p.orch.Submit(ctx)
	if err != nil {
		if p.orch.Abandoned() {
			p.mu.Lock()
			p.phase = PhaseAbandoned
			p.failure = "abandoned"
			p.mu.Unlock()
			return err
		}
		p.fail(err)
		p.sess.Reopen()
		// Best effort: a retry re-enters AwaitingSubmission.
		_ = p.orch.Reenter()
		return err
	}

	p.mu.Lock()
	p.result = result
	p.phase = PhaseAnalyzing
	p.failure = ""
	p.mu.Unlock()

	p.persist(ctx, result)
	p.analyze(ctx, result)

	p.mu.Lock()
	p.phase = PhaseDisplay
	p.mu.Unlock()
	p.logger.Info("session displayed")
	return nil
}

// persist saves the lookup to the history service, best-effort.
func (p *Pipeline) persist(ctx context.Context, result json.RawMessage) {
	sources := p.sess.Sources()
	platforms := make([]string, 0, len(sources))
	for _, platform := range session.Platforms() {
		if _, ok := sources[platform]; ok {
			platforms = append(platforms, platform)
		}
	}

	err := p.deps.History.SaveSearch(ctx, client.SearchRecord{
		UserID:    p.deps.UserID,
		Query:     p.sess.Query(),
		Platforms: platforms,
		Result:    result,
	})
	if err != nil {
		p.logger.Warn("history persist failed, continuing", "error", err)
	}
}

// analyze requests the AI community analysis, leaving it pending on error.
func (p *Pipeline) analyze(ctx context.Context, result json.RawMessage) {
	analysis, err := p.deps.Analyzer.Analyze(ctx, p.sess.Query(), result)
	if err != nil {
		p.logger.Warn("analysis unavailable, leaving pending", "error", err)
		return
	}
	p.mu.Lock()
	p.analysis = analysis
	p.mu.Unlock()
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase == PhaseScraping {
		p.phase = PhaseEditing
	}
	if p.failure == "" {
		p.failure = err.Error()
	}
}

// Snapshot returns a copy of the pipeline's observable state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		ID:       p.sess.ID(),
		Query:    p.sess.Query(),
		Phase:    p.phase,
		Sources:  p.sess.Sources(),
		Result:   p.result,
		Analysis: p.analysis,
		Failure:  p.failure,
	}
}
