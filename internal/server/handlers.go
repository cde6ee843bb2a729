package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/identifyhq/identify/internal/client"
	"github.com/identifyhq/identify/internal/orchestrator"
	"github.com/identifyhq/identify/internal/pipeline"
	"github.com/identifyhq/identify/internal/session"
)

// handleCreateSession starts a new lookup: validates the query, resolves
// candidate sources, and returns the editable session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := pipeline.New(r.Context(), req.Query, s.deps)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	s.manager.Add(p)
	writeJSON(w, http.StatusCreated, p.Snapshot())
}

// handleGetSession returns the session's phase and result snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	p := s.manager.Get(chi.URLParam(r, "id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, p.Snapshot())
}

// handleSetSource applies one edit-loop change to the session's sources.
func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	p := s.manager.Get(chi.URLParam(r, "id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req struct {
		Platform string `json:"platform"`
		URL      string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := p.SetSource(req.Platform, req.URL); err != nil {
		switch {
		case errors.Is(err, session.ErrImmutable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, p.Snapshot())
}

// handleConfirm freezes the sources and runs the scrape flow in the
// background; the host polls the session for the outcome.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	p := s.manager.Get(chi.URLParam(r, "id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	// The transition is claimed synchronously, so exactly one of any
	// simultaneous confirms gets the 202; the flow itself is detached from
	// the request and outlives it.
	err := p.ConfirmAsync(context.Background(), func(err error) {
		if err != nil {
			s.logger.Warn("orchestration failed", "session_id", p.ID(), "error", err)
		}
	})
	if err != nil {
		writeError(w, http.StatusConflict, "session is not editable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": p.ID(), "status": "submitted"})
}

// handleHistory proxies the user's lookup history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.History(r.Context(), s.deps.UserID)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	if records == nil {
		records = []client.SearchRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleSearch proxies a single persisted lookup.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Search(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeTaxonomyError maps pipeline and client errors onto HTTP statuses.
func (s *Server) writeTaxonomyError(w http.ResponseWriter, err error) {
	var provErr *client.ProviderError
	switch {
	case errors.Is(err, session.ErrEmptyQuery),
		errors.Is(err, session.ErrInvalidURL),
		errors.Is(err, session.ErrUnknownPlatform):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrAlreadyInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, client.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, client.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &provErr):
		writeError(w, http.StatusBadGateway, provErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
