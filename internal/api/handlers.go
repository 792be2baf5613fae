package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/coaching-engine/internal/leads"
	"github.com/terra-clan/coaching-engine/internal/pricing"
	"github.com/terra-clan/coaching-engine/internal/recommend"
	"github.com/terra-clan/coaching-engine/internal/session"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps a domain error to its HTTP status and error code
func respondServiceError(w http.ResponseWriter, err error, action string) {
	status, code, message := classifyError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "action", action, "error", err)
		message = "failed to " + action
	}
	respondError(w, status, code, message)
}

// classifyError returns the HTTP status, error code and client message for err
func classifyError(err error) (int, string, string) {
	var ce *calculatorError
	if errors.As(err, &ce) {
		return http.StatusBadRequest, ce.code, ce.message
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "not_found", "session not found"
	case errors.Is(err, session.ErrUnknownService):
		return http.StatusBadRequest, "unknown_service", err.Error()
	case errors.Is(err, pricing.ErrInvalidTier):
		return http.StatusBadRequest, "invalid_tier", err.Error()
	case errors.Is(err, pricing.ErrEmptySelection):
		return http.StatusBadRequest, "empty_selection", err.Error()
	case errors.Is(err, recommend.ErrUnknownQuestion):
		return http.StatusBadRequest, "unknown_question", err.Error()
	case errors.Is(err, recommend.ErrInvalidOption):
		return http.StatusBadRequest, "invalid_option", err.Error()
	case errors.Is(err, recommend.ErrAnswerRequired):
		return http.StatusBadRequest, "answer_required", err.Error()
	case errors.Is(err, recommend.ErrNoPreviousQuestion),
		errors.Is(err, recommend.ErrQuizComplete),
		errors.Is(err, recommend.ErrQuizNotComplete),
		errors.Is(err, recommend.ErrQuizCalculating):
		return http.StatusConflict, "quiz_state", err.Error()
	case errors.Is(err, leads.ErrIncompleteForm):
		return http.StatusUnprocessableEntity, "incomplete_form", err.Error()
	case errors.Is(err, leads.ErrInvalidSource):
		return http.StatusBadRequest, "invalid_source", err.Error()
	case errors.Is(err, leads.ErrDuplicateSubmission):
		return http.StatusTooManyRequests, "duplicate_submission", err.Error()
	case errors.Is(err, session.ErrCatalogMissing):
		return http.StatusServiceUnavailable, "not_ready", "catalog not loaded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled", "request cancelled"
	}
	return http.StatusInternalServerError, "internal_error", "internal error"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Catalog loaded and session store reachable
	if err := s.sessions.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
