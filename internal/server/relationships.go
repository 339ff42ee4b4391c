package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/rapport/internal/graph"
)

// readRequest resolves the common parameters of relationship reads.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	now, err := s.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "now must be RFC3339")
		return "", time.Time{}, false
	}
	return chi.URLParam(r, "userID"), now, true
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	userID, now, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Graph(userID, now))
}

func (s *Server) handleToneShifts(w http.ResponseWriter, r *http.Request) {
	userID, now, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	shifts := s.engine.ToneShifts(userID, now)
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of":       now,
		"count":       len(shifts),
		"tone_shifts": shifts,
	})
}

func (s *Server) handleNeglected(w http.ResponseWriter, r *http.Request) {
	userID, now, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	items := s.engine.Neglected(userID, now)
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of":     now,
		"count":     len(items),
		"neglected": items,
	})
}

func (s *Server) handleKeyContacts(w http.ResponseWriter, r *http.Request) {
	userID, now, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ranked := s.engine.KeyContacts(userID, now, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of":        now,
		"count":        len(ranked),
		"key_contacts": ranked,
	})
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	userID, now, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	res, err := s.engine.Clusters(userID, now)
	if errors.Is(err, graph.ErrInsufficientData) {
		writeJSON(w, http.StatusOK, map[string]any{
			"as_of":    now,
			"status":   "insufficient_data",
			"reason":   err.Error(),
			"clusters": res.Clusters,
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of":     now,
		"status":    "ok",
		"threshold": res.Threshold,
		"clusters":  res.Clusters,
	})
}

func (s *Server) handleAttention(w http.ResponseWriter, r *http.Request) {
	userID, now, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	items := s.engine.Attention(r.Context(), userID, now)
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of": now,
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handleContactDetail(w http.ResponseWriter, r *http.Request) {
	userID, now, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	detail, err := s.engine.ContactDetail(r.Context(), userID, chi.URLParam(r, "contactID"), now)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
