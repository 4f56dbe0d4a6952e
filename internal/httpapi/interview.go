package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/antoniostano/interviewer/internal/interview"
)

type setupRequest struct {
	JobDescription  string `json:"job_description"`
	CandidateResume string `json:"candidate_resume"`
	Resume          string `json:"resume"`
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}

	var req setupRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.metrics.SetupRequests.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	resume := req.CandidateResume
	if strings.TrimSpace(resume) == "" {
		resume = req.Resume
	}

	err = s.contexts.Set(r.Context(), interview.Context{
		UserID:         userID,
		JobDescription: req.JobDescription,
		Resume:         resume,
	})
	switch {
	case errors.Is(err, interview.ErrMissingField):
		s.metrics.SetupRequests.WithLabelValues("missing_field").Inc()
		respondError(w, http.StatusBadRequest, "missing_field", err.Error())
		return
	case err != nil:
		s.metrics.SetupRequests.WithLabelValues("error").Inc()
		s.logger.Error("store interview context", "user_id", userID, "err", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not store interview context")
		return
	}

	s.metrics.SetupRequests.WithLabelValues("configured").Inc()
	s.logger.Info("interview configured", "user_id", userID,
		"job_description_chars", len(req.JobDescription), "resume_chars", len(resume))
	respondJSON(w, http.StatusOK, statusResponse{Status: "configured"})
}

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 500
)

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}
	if s.archive == nil {
		respondError(w, http.StatusNotFound, "transcripts_disabled", "transcript archive not configured")
		return
	}

	limit := defaultTranscriptLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	turns, err := s.archive.Recent(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("load transcript", "user_id", userID, "err", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not load transcript")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"turns":   turns,
	})
}
