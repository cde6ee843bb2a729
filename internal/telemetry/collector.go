// Package telemetry observes user interaction events during a wait period
// and reduces them into an impatience score.
package telemetry

import (
	"sync"
	"time"
)

const (
	// RageWindow is the sliding window within which clicks are counted
	// toward a rage burst.
	RageWindow = 2000 * time.Millisecond

	// RageThreshold is the number of clicks inside RageWindow that
	// registers one rage click event.
	RageThreshold = 7

	// AbandonScore is written when the host reports an unload before the
	// wait period completed. It deliberately ignores any telemetry already
	// gathered.
	AbandonScore = 0.9
)

// EventType identifies a host interaction event.
type EventType string

const (
	EventClick            EventType = "click"
	EventVisibilityHidden EventType = "visibility_hidden"
	EventUnload           EventType = "unload"
)

// Event is a typed interaction event pushed by the host environment.
// A zero At means "now".
type Event struct {
	Type EventType
	At   time.Time
}

// Sample holds the counters of one completed wait period.
type Sample struct {
	TotalClicks     int
	RageClickEvents int
	TabSwitches     int
	WaitDuration    time.Duration
}

// Collector maintains rolling interaction counters for a single wait
// period. Events delivered outside an open wait period are discarded.
// All methods are thread-safe.
type Collector struct {
	mu   sync.Mutex
	now  func() time.Time
	open bool

	windowStart time.Time
	clicks      []time.Time
	totalClicks int
	rageEvents  int
	tabSwitches int

	// onAbandon receives AbandonScore synchronously when an unload arrives
	// mid-wait. It runs without the collector lock held.
	onAbandon func(score float64)
}

// NewCollector creates a collector. A nil now function defaults to time.Now.
func NewCollector(now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{now: now}
}

// OnAbandon registers the abandonment sink. The callback must complete
// synchronously; the unload path performs no asynchronous work.
func (c *Collector) OnAbandon(fn func(score float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAbandon = fn
}

// Start opens a new wait period, resetting all counters.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.windowStart = c.now()
	c.clicks = nil
	c.totalClicks = 0
	c.rageEvents = 0
	c.tabSwitches = 0
}

// Deliver routes a host event into the collector. Click and visibility
// events only mutate in-memory counters; an unload triggers the
// abandonment write and closes the wait period.
func (c *Collector) Deliver(ev Event) {
	at := ev.At
	if at.IsZero() {
		at = c.now()
	}

	switch ev.Type {
	case EventClick:
		c.recordClick(at)
	case EventVisibilityHidden:
		c.recordHidden()
	case EventUnload:
		c.Abandon()
	}
}

func (c *Collector) recordClick(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}

	c.totalClicks++

	// Drop clicks that fell out of the sliding window, then append.
	cutoff := at.Add(-RageWindow)
	kept := c.clicks[:0]
	for _, t := range c.clicks {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.clicks = append(kept, at)

	if len(c.clicks) >= RageThreshold {
		// One burst counts once; counting resumes fresh. A sustained
		// click storm can register multiple rage events.
		c.rageEvents++
		c.clicks = c.clicks[:0]
	}
}

func (c *Collector) recordHidden() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.tabSwitches++
}

// Abandon closes the wait period and pushes AbandonScore into the
// registered sink. It is a no-op when no wait period is open, and never
// panics even if no sink is registered.
func (c *Collector) Abandon() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	fn := c.onAbandon
	c.mu.Unlock()

	if fn != nil {
		fn(AbandonScore)
	}
}

// Close ends the wait period normally and returns the final counters.
// It reports false when the period was already closed (for example by an
// abandonment that raced a late success).
func (c *Collector) Close() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return Sample{}, false
	}
	c.open = false
	return Sample{
		TotalClicks:     c.totalClicks,
		RageClickEvents: c.rageEvents,
		TabSwitches:     c.tabSwitches,
		WaitDuration:    c.now().Sub(c.windowStart),
	}, true
}
