package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/coaching-engine/internal/models"
)

// Session handlers: calculator selection, quiz flow and session-bound leads

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	sess, err := s.sessions.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, "create session")
		return
	}

	view, err := s.sessions.View(r.Context(), sess.ID)
	if err != nil {
		respondServiceError(w, err, "create session")
		return
	}

	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "get session")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err, "delete session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session deleted",
	})
}

// respondSessionView returns the refreshed view after a calculator mutation
func (s *Server) respondSessionView(w http.ResponseWriter, r *http.Request, id, action string) {
	view, err := s.sessions.View(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, action)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleToggleService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.ToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ServiceID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "service_id is required")
		return
	}

	if _, err := s.sessions.ToggleService(r.Context(), id, req.ServiceID); err != nil {
		respondServiceError(w, err, "toggle service")
		return
	}
	s.respondSessionView(w, r, id, "toggle service")
}

func (s *Server) handleResetSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.sessions.ResetSelection(r.Context(), id); err != nil {
		respondServiceError(w, err, "reset selection")
		return
	}
	s.respondSessionView(w, r, id, "reset selection")
}

func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.TierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_tier", err.Error())
		return
	}

	if _, err := s.sessions.SetTier(r.Context(), id, tier); err != nil {
		respondServiceError(w, err, "set tier")
		return
	}
	s.respondSessionView(w, r, id, "set tier")
}

func (s *Server) handleSetROI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.ROIRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := s.sessions.SetROI(r.Context(), id, req.Enabled); err != nil {
		respondServiceError(w, err, "set roi")
		return
	}
	s.respondSessionView(w, r, id, "set roi")
}

func (s *Server) handleSessionQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.sessions.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "calculate quote")
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// Quiz handlers

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Quiz(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "get quiz")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := s.sessions.Answer(r.Context(), chi.URLParam(r, "id"), req.QuestionID, req.Answer)
	if err != nil {
		respondServiceError(w, err, "record answer")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Next(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "advance quiz")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handlePreviousQuestion(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Previous(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "go back")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleRetakeQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Retake(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "retake quiz")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSessionLead(w http.ResponseWriter, r *http.Request) {
	var lead models.Lead
	if !decodeJSON(w, r, &lead) {
		return
	}
	lead.Quote = nil

	receipt, err := s.sessions.SubmitLead(r.Context(), chi.URLParam(r, "id"), lead)
	if err != nil {
		respondServiceError(w, err, "submit lead")
		return
	}
	respondJSON(w, http.StatusAccepted, receipt)
}
