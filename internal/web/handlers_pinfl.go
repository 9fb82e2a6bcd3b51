package web

// handlers_pinfl.go drives the two-step PINFL replacement: create a
// session, upload the source register, then upload the PINFL results to
// receive the joined workbook.

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.service.CreateSession(r.Context())
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleAttachSource stores the source register on the session.
func (s *Server) handleAttachSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.service.Session(r.Context(), id); err != nil {
		respondJobError(w, r, err)
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		respondJobError(w, r, err)
		return
	}

	sess, err := s.service.AttachSource(r.Context(), id, up.name, up.data)
	if err != nil {
		respondJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleCompleteSession runs the join and returns the joined workbook.
// The replacement counts travel in headers; the log itself is in the
// configured replacement log file.
func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	up, err := s.readUpload(w, r)
	if err != nil {
		respondJobError(w, r, err)
		return
	}

	out, err := s.service.CompleteSession(r.Context(), id, up.name, up.data)
	if err != nil {
		respondJobError(w, r, err)
		return
	}

	w.Header().Set("X-Job-ID", out.JobID)
	w.Header().Set("X-Replacements", strconv.Itoa(out.Replacements))
	w.Header().Set("X-Defaulted", strconv.Itoa(out.Defaulted))
	w.Header().Set("X-Misses", strconv.Itoa(out.Misses))
	writeFile(w, out.File, contentTypeXLSX)
}

func (s *Server) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.AbandonSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondJobError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
