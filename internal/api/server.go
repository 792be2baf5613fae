package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/terra-clan/coaching-engine/internal/config"
	"github.com/terra-clan/coaching-engine/internal/leads"
	"github.com/terra-clan/coaching-engine/internal/session"
)

// Server represents the HTTP API server
type Server struct {
	config   config.ServerConfig
	metrics  config.MetricsConfig
	router   *chi.Mux
	catalogs session.CatalogSource
	sessions session.Manager
	leads    *leads.Submitter
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	metricsCfg config.MetricsConfig,
	catalogs session.CatalogSource,
	manager session.Manager,
	submitter *leads.Submitter,
) *Server {
	s := &Server{
		config:   cfg,
		metrics:  metricsCfg,
		catalogs: catalogs,
		sessions: manager,
		leads:    submitter,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	if s.metrics.Enabled {
		r.Use(s.metricsMiddleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check (outside versioned API)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Catalog
		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.handleListServices)
			r.Get("/{id}", s.handleGetService)
			r.Get("/{id}/complementary", s.handleComplementary)
		})
		r.Get("/discounts", s.handleListDiscounts)
		r.Get("/questions", s.handleListQuestions)

		// Stateless calculations
		r.Post("/quote", s.handleQuote)
		r.Post("/recommendations", s.handleRecommend)
		r.Post("/leads", s.handleSubmitLead)

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)

				r.Post("/selection/toggle", s.handleToggleService)
				r.Delete("/selection", s.handleResetSelection)
				r.Put("/tier", s.handleSetTier)
				r.Put("/roi", s.handleSetROI)
				r.Get("/quote", s.handleSessionQuote)
				r.Get("/calculator", s.handleCalculatorWS)

				r.Route("/quiz", func(r chi.Router) {
					r.Get("/", s.handleGetQuiz)
					r.Post("/answers", s.handleAnswer)
					r.Post("/next", s.handleNextQuestion)
					r.Post("/previous", s.handlePreviousQuestion)
					r.Post("/retake", s.handleRetakeQuiz)
				})

				r.Post("/leads", s.handleSessionLead)
			})
		})
	})

	s.router = r
}
