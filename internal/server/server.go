// Package server exposes the lookup pipeline over HTTP for the host UI:
// REST for session control, a websocket for telemetry events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/identifyhq/identify/internal/client"
	"github.com/identifyhq/identify/internal/pipeline"
)

// HistoryProxy is the read side of the history service, proxied to the
// host UI.
type HistoryProxy interface {
	History(ctx context.Context, userID string) ([]client.SearchRecord, error)
	Search(ctx context.Context, id string) (*client.SearchRecord, error)
}

// Server wires HTTP handlers to the pipeline manager.
type Server struct {
	deps     pipeline.Deps
	manager  *pipeline.Manager
	history  HistoryProxy
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a server. deps seeds every new pipeline; history serves the
// proxied read endpoints.
func New(deps pipeline.Deps, history HistoryProxy, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		deps:    deps,
		manager: pipeline.NewManager(),
		history: history,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // host UI runs on its own origin in dev
			},
		},
	}
}

// Handler builds the daemon's route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Patch("/sessions/{id}/sources", s.handleSetSource)
		r.Post("/sessions/{id}/confirm", s.handleConfirm)
		r.Get("/sessions/{id}/events", s.handleEvents)

		r.Get("/history", s.handleHistory)
		r.Get("/search/{id}", s.handleSearch)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	return r
}

// Manager exposes the session manager, mainly for tests.
func (s *Server) Manager() *pipeline.Manager {
	return s.manager
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
