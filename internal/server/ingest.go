package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/graph"
	"github.com/lazypower/rapport/internal/ingest"
)

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read body failed")
		return nil, false
	}
	return body, true
}

// handleIngest accepts one interaction object or an array of them. Each
// event is validated and folded on its own; a single object reports its
// outcome through the status code.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	items, batch, err := splitBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if s.limiter != nil && !s.limiter.allow(userID, len(items), time.Now()) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "ingest rate limit exceeded")
		return
	}

	results := make([]ingest.Result, 0, len(items))
	var lastErr error
	for _, raw := range items {
		var in graph.Interaction
		if err := decodeStrict(raw, &in); err != nil {
			lastErr = fmt.Errorf("%w: %v", graph.ErrMalformedInteraction, err)
			results = append(results, ingest.Result{
				Outcome: ingest.OutcomeRejected,
				Error:   lastErr.Error(),
			})
			continue
		}
		res, err := s.ingest.Ingest(r.Context(), userID, in)
		if err != nil {
			lastErr = err
		}
		results = append(results, res)
	}

	if !batch {
		status := http.StatusOK
		if lastErr != nil {
			status = statusFor(lastErr)
		}
		writeJSON(w, status, results[0])
		return
	}

	counts := make(map[graph.Outcome]int)
	for _, res := range results {
		counts[res.Outcome]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(results),
		"outcome": counts,
		"results": results,
	})
}

// handleCommitments stores commitment items pushed by the tracker.
func (s *Server) handleCommitments(w http.ResponseWriter, r *http.Request) {
	if s.commitments == nil {
		writeError(w, http.StatusServiceUnavailable, "commitment store not configured")
		return
	}
	userID := chi.URLParam(r, "userID")
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	items, _, err := splitBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	parsed := make([]engine.Commitment, 0, len(items))
	for i, raw := range items {
		var c engine.Commitment
		if err := decodeStrict(raw, &c); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("item %d: invalid json: %v", i, err))
			return
		}
		if err := s.validateCommitment(c); err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("item %d: %v", i, err))
			return
		}
		parsed = append(parsed, c)
	}

	saved := make([]engine.Commitment, 0, len(parsed))
	for _, c := range parsed {
		stored, err := s.commitments.SaveCommitment(r.Context(), userID, c)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		saved = append(saved, stored)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"count":       len(saved),
		"commitments": saved,
	})
}

func (s *Server) validateCommitment(c engine.Commitment) error {
	if c.Status != "" && !c.Status.Valid() {
		return fmt.Errorf("status: unknown value %q", c.Status)
	}
	if err := s.validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, len(verrs))
			for i, fe := range verrs {
				parts[i] = fe.Field() + ": failed " + fe.Tag()
			}
			return errors.New(strings.Join(parts, "; "))
		}
		return err
	}
	return nil
}

// handlePatchContact applies a direct user edit.
func (s *Server) handlePatchContact(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	contactID := chi.URLParam(r, "contactID")
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var patch graph.ContactPatch
	if err := decodeStrict(body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "patch changes nothing")
		return
	}
	c, err := s.ingest.PatchContact(r.Context(), userID, contactID, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleRemoveContact soft-deprecates a contact; its history is kept.
func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.ingest.RemoveContact(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "contactID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleAdjustImportance runs one round of the opt-in automatic importance
// adjustment.
func (s *Server) handleAdjustImportance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	now, err := s.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "now must be RFC3339")
		return
	}
	suggestions, err := s.engine.SuggestAdjustments(userID, now)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	adjusted := []graph.Contact{}
	if len(suggestions) > 0 {
		adjusted, err = s.ingest.ApplyAdjustments(r.Context(), userID, suggestions, s.engine.Params().Adjust.MaxStep)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if adjusted == nil {
			adjusted = []graph.Contact{}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": suggestions,
		"adjusted":    adjusted,
	})
}
