package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/identifyhq/identify/internal/pipeline"
	"github.com/identifyhq/identify/internal/telemetry"
)

// eventMessage is the wire shape the host UI pushes on the telemetry
// socket. TS is unix milliseconds; zero means "on arrival".
type eventMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts,omitempty"`
}

// handleEvents upgrades to a websocket and feeds host interaction events
// into the session's wait period. An explicit unload message — or an
// abrupt close while a scrape is in flight — triggers the abandonment
// path.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	p := s.manager.Get(chi.URLParam(r, "id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", p.ID(), "error", err)
		return
	}
	defer conn.Close()

	for {
		var msg eventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			// A dropped socket mid-scrape is an abandonment: the host
			// went away without saying goodbye.
			if p.Snapshot().Phase == pipeline.PhaseScraping {
				s.logger.Info("event socket dropped mid-flight, treating as unload", "session_id", p.ID())
				p.Deliver(telemetry.Event{Type: telemetry.EventUnload})
			}
			return
		}

		ev := telemetry.Event{}
		switch msg.Type {
		case "click":
			ev.Type = telemetry.EventClick
		case "visibility_hidden":
			ev.Type = telemetry.EventVisibilityHidden
		case "unload":
			ev.Type = telemetry.EventUnload
		default:
			s.logger.Debug("ignoring unknown telemetry event", "session_id", p.ID(), "type", msg.Type)
			continue
		}
		if msg.TS > 0 {
			ev.At = time.UnixMilli(msg.TS)
		}

		p.Deliver(ev)

		if ev.Type == telemetry.EventUnload {
			// The abandonment write has already completed synchronously.
			return
		}
	}
}
