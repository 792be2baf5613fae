package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/coaching-engine/internal/catalog"
	"github.com/terra-clan/coaching-engine/internal/metrics"
	"github.com/terra-clan/coaching-engine/internal/models"
	"github.com/terra-clan/coaching-engine/internal/pricing"
	"github.com/terra-clan/coaching-engine/internal/recommend"
	"github.com/terra-clan/coaching-engine/internal/session"
)

// Catalog handlers: browsing, stateless calculations and the contact form

func (s *Server) currentCatalog(w http.ResponseWriter) *catalog.Catalog {
	c := s.catalogs.Current()
	if c == nil {
		respondServiceError(w, session.ErrCatalogMissing, "load catalog")
	}
	return c
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	c := s.currentCatalog(w)
	if c == nil {
		return
	}

	services := c.Services()
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := make([]models.Service, 0, len(services))
		for _, svc := range services {
			if svc.Category == category {
				filtered = append(filtered, svc)
			}
		}
		services = filtered
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"services": services,
		"total":    len(services),
	})
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	c := s.currentCatalog(w)
	if c == nil {
		return
	}

	svc, ok := c.Service(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "service not found")
		return
	}
	respondJSON(w, http.StatusOK, svc)
}

func (s *Server) handleComplementary(w http.ResponseWriter, r *http.Request) {
	c := s.currentCatalog(w)
	if c == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := c.Service(id); !ok {
		respondError(w, http.StatusNotFound, "not_found", "service not found")
		return
	}

	addOns := pricing.NewEngine(c).AddOns([]string{id})
	services := make([]models.Service, 0, len(addOns))
	for _, addOn := range addOns {
		if svc, ok := c.Service(addOn); ok {
			services = append(services, *svc)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"services": services,
		"total":    len(services),
	})
}

func (s *Server) handleListDiscounts(w http.ResponseWriter, r *http.Request) {
	c := s.currentCatalog(w)
	if c == nil {
		return
	}

	discounts := c.Discounts()
	if discounts == nil {
		discounts = []models.DiscountTier{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"discounts": discounts,
	})
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	c := s.currentCatalog(w)
	if c == nil {
		return
	}

	questions := c.Questions()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
		"total":     len(questions),
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req models.QuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c := s.currentCatalog(w)
	if c == nil {
		return
	}

	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_tier", err.Error())
		return
	}

	q, err := pricing.NewEngine(c).QuoteWithROI(req.Services, tier, req.IncludeROI)
	if err != nil {
		respondServiceError(w, err, "calculate quote")
		return
	}

	metrics.QuotesCalculated.WithLabelValues(string(tier)).Inc()
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c := s.currentCatalog(w)
	if c == nil {
		return
	}

	recs := recommend.NewEngine(c).Score(req.Answers)
	metrics.RecommendationsServed.Inc()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recs,
		"total":           len(recs),
	})
}

func (s *Server) handleSubmitLead(w http.ResponseWriter, r *http.Request) {
	var lead models.Lead
	if !decodeJSON(w, r, &lead) {
		return
	}
	// Quotes are only attached server-side from a session
	lead.Quote = nil

	receipt, err := s.leads.Submit(r.Context(), lead)
	if err != nil {
		respondServiceError(w, err, "submit lead")
		return
	}

	respondJSON(w, http.StatusAccepted, receipt)
}
