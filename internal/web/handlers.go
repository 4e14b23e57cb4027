package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ggbi/imob-import/internal/imob"
)

// handleCreateSession opens a fresh import session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.service.CreateSession()
	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": sess.ID})
}

// handleProcess runs the read side of the pipeline for a paste and returns
// the preview of the resulting pending batch.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var in imob.ProcessInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	preview, err := s.service.Process(r.Context(), sessionID, in)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// handleInsert drains the session's pending buffer into the store. On a
// batch failure the report is returned alongside the error so the
// operator sees how far the run got.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	report, err := s.service.Insert(r.Context(), sessionID)
	if err != nil {
		if report.FailedBatch > 0 {
			writeJSON(w, http.StatusBadGateway, insertFailure{
				Error:  err.Error(),
				Report: report,
			})
			return
		}
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// insertFailure pairs a partial-failure report with its error message.
type insertFailure struct {
	Error  string            `json:"error"`
	Report imob.InsertReport `json:"report"`
}

// handlePreview re-renders the session's current pending state.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	preview, err := s.service.Preview(sessionID)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// handleListDashboards returns the configured dashboard slots.
func (s *Server) handleListDashboards(w http.ResponseWriter, r *http.Request) {
	dashboards, err := s.dashboards.ListDashboards(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dashboards)
}

// handleSaveDashboard creates or replaces one dashboard slot.
func (s *Server) handleSaveDashboard(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var in struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.URL == "" {
		writeError(w, r, http.StatusBadRequest, "url is required")
		return
	}

	if err := s.dashboards.SaveDashboard(r.Context(), key, in.Title, in.URL); err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports liveness and, when a ping function is configured,
// datastore reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps pipeline errors onto HTTP statuses: operator input
// mistakes are 4xx, remote-store failures are 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, imob.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, imob.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, imob.ErrEmptyInput),
		errors.Is(err, imob.ErrMissingSelectors),
		errors.Is(err, imob.ErrNoValidKeys),
		errors.Is(err, imob.ErrNothingToInsert):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
