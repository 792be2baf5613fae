// Package session holds the per-visitor calculator selection and quiz answers.
// Sessions are ephemeral and expire after a sliding idle TTL.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/coaching-engine/internal/catalog"
	"github.com/terra-clan/coaching-engine/internal/leads"
	"github.com/terra-clan/coaching-engine/internal/metrics"
	"github.com/terra-clan/coaching-engine/internal/models"
	"github.com/terra-clan/coaching-engine/internal/pacing"
	"github.com/terra-clan/coaching-engine/internal/pricing"
	"github.com/terra-clan/coaching-engine/internal/recommend"
)

// DefaultTTL is the idle lifetime of a session
const DefaultTTL = 2 * time.Hour

// Common errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownService  = errors.New("unknown service")
	ErrCatalogMissing  = errors.New("catalog not loaded")
)

// Manager defines the interface for session management
type Manager interface {
	Create(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	View(ctx context.Context, id string) (*models.SessionView, error)
	Delete(ctx context.Context, id string) error

	ToggleService(ctx context.Context, id, serviceID string) (*models.Session, error)
	ResetSelection(ctx context.Context, id string) (*models.Session, error)
	SetTier(ctx context.Context, id string, tier models.PricingTier) (*models.Session, error)
	SetROI(ctx context.Context, id string, enabled bool) (*models.Session, error)
	Quote(ctx context.Context, id string) (*models.Quote, error)

	Quiz(ctx context.Context, id string) (*models.QuizView, error)
	Answer(ctx context.Context, id, questionID string, answer models.Answer) (*models.QuizView, error)
	Next(ctx context.Context, id string) (*models.QuizView, error)
	Previous(ctx context.Context, id string) (*models.QuizView, error)
	Retake(ctx context.Context, id string) (*models.QuizView, error)

	SubmitLead(ctx context.Context, id string, lead models.Lead) (*models.LeadReceipt, error)

	Ping(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	GetExpired(ctx context.Context) ([]*models.Session, error)
	Close() error
}

// CatalogSource returns the catalog snapshot in effect
type CatalogSource interface {
	Current() *catalog.Catalog
}

// Options configures a SessionManager
type Options struct {
	TTL       time.Duration
	QuizDelay pacing.Delayer
	Leads     *leads.Submitter
}

// SessionManager implements Manager over a Store
type SessionManager struct {
	store     Store
	catalogs  CatalogSource
	ttl       time.Duration
	quizDelay pacing.Delayer
	leads     *leads.Submitter

	// One writer per session; entries live while a caller holds or waits on them
	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a new SessionManager
func NewManager(store Store, catalogs CatalogSource, opts Options) *SessionManager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.QuizDelay == nil {
		opts.QuizDelay = pacing.None()
	}
	if opts.Leads == nil {
		opts.Leads = leads.NewSubmitter(leads.Options{})
	}

	return &SessionManager{
		store:     store,
		catalogs:  catalogs,
		ttl:       opts.TTL,
		quizDelay: opts.QuizDelay,
		leads:     opts.Leads,
		locks:     make(map[string]*sessionLock),
	}
}

// Ping checks if the session store is reachable
func (m *SessionManager) Ping(ctx context.Context) error {
	if m.catalogs.Current() == nil {
		return ErrCatalogMissing
	}
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("session store ping failed: %w", err)
	}
	return nil
}

// Close releases the store
func (m *SessionManager) Close() error {
	return m.store.Close()
}

// Create starts a new session, optionally pre-selecting services
func (m *SessionManager) Create(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	cat, err := m.catalog()
	if err != nil {
		return nil, err
	}

	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pricing.ErrInvalidTier, err)
	}

	var selection models.Selection
	for _, serviceID := range req.Services {
		if _, ok := cat.Service(serviceID); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
		}
		if !selection.Contains(serviceID) {
			selection = selection.Toggle(serviceID)
		}
	}
	if selection == nil {
		selection = models.Selection{}
	}

	now := time.Now().UTC()
	s := &models.Session{
		ID:         uuid.New().String(),
		Selection:  selection,
		Tier:       tier,
		ROIEnabled: req.ROIEnabled,
		Quiz:       models.NewQuizProgress(),
		CreatedAt:  now,
	}
	s.Touch(m.ttl)

	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	metrics.SessionsActive.Inc()
	slog.Info("session created", "id", s.ID, "tier", s.Tier, "services", len(s.Selection))

	return s, nil
}

// Get returns a live session
func (m *SessionManager) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.load(ctx, id)
}

// View returns the session together with its current quote and quiz step
func (m *SessionManager) View(ctx context.Context, id string) (*models.SessionView, error) {
	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	cat, err := m.catalog()
	if err != nil {
		return nil, err
	}

	q, err := pricing.NewEngine(cat).QuoteWithROI(s.Selection, s.Tier, s.ROIEnabled)
	if err != nil {
		return nil, err
	}
	flow := recommend.NewFlow(recommend.NewEngine(cat), &s.Quiz, m.quizDelay)

	return &models.SessionView{
		ID:         s.ID,
		Selection:  s.Selection,
		Tier:       s.Tier,
		ROIEnabled: s.ROIEnabled,
		Quote:      q,
		Quiz:       flow.View(),
		ExpiresAt:  s.ExpiresAt,
	}, nil
}

// Delete removes a session
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	metrics.SessionsActive.Dec()
	slog.Info("session deleted", "id", id)
	return nil
}

// ToggleService adds or removes one service from the selection
func (m *SessionManager) ToggleService(ctx context.Context, id, serviceID string) (*models.Session, error) {
	cat, err := m.catalog()
	if err != nil {
		return nil, err
	}
	if _, ok := cat.Service(serviceID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	return m.update(ctx, id, func(s *models.Session) error {
		s.Selection = s.Selection.Toggle(serviceID)
		return nil
	})
}

// ResetSelection clears the selection
func (m *SessionManager) ResetSelection(ctx context.Context, id string) (*models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		s.Selection = models.Selection{}
		return nil
	})
}

// SetTier changes the pricing tier
func (m *SessionManager) SetTier(ctx context.Context, id string, tier models.PricingTier) (*models.Session, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", pricing.ErrInvalidTier, tier)
	}
	return m.update(ctx, id, func(s *models.Session) error {
		s.Tier = tier
		return nil
	})
}

// SetROI turns the ROI projection on or off
func (m *SessionManager) SetROI(ctx context.Context, id string, enabled bool) (*models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		s.ROIEnabled = enabled
		return nil
	})
}

// Quote prices the current selection
func (m *SessionManager) Quote(ctx context.Context, id string) (*models.Quote, error) {
	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	cat, err := m.catalog()
	if err != nil {
		return nil, err
	}

	q, err := pricing.NewEngine(cat).QuoteWithROI(s.Selection, s.Tier, s.ROIEnabled)
	if err != nil {
		return nil, err
	}
	metrics.QuotesCalculated.WithLabelValues(string(s.Tier)).Inc()
	return q, nil
}

// Quiz returns the current quiz step
func (m *SessionManager) Quiz(ctx context.Context, id string) (*models.QuizView, error) {
	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	cat, err := m.catalog()
	if err != nil {
		return nil, err
	}

	view := recommend.NewFlow(recommend.NewEngine(cat), &s.Quiz, m.quizDelay).View()
	return &view, nil
}

// Answer records the answer for the current question
func (m *SessionManager) Answer(ctx context.Context, id, questionID string, answer models.Answer) (*models.QuizView, error) {
	return m.quizStep(ctx, id, "answer", func(_ context.Context, f *recommend.Flow) error {
		return f.Answer(questionID, answer)
	})
}

// Next moves to the next question, or scores the quiz on the last one
func (m *SessionManager) Next(ctx context.Context, id string) (*models.QuizView, error) {
	return m.quizStep(ctx, id, "next", func(ctx context.Context, f *recommend.Flow) error {
		if err := f.Next(ctx); err != nil {
			return err
		}
		if f.Status() == models.QuizComplete {
			metrics.RecommendationsServed.Inc()
			metrics.QuizTransitions.WithLabelValues("complete").Inc()
		}
		return nil
	})
}

// Previous moves back one question
func (m *SessionManager) Previous(ctx context.Context, id string) (*models.QuizView, error) {
	return m.quizStep(ctx, id, "previous", func(_ context.Context, f *recommend.Flow) error {
		return f.Previous()
	})
}

// Retake restarts a completed quiz
func (m *SessionManager) Retake(ctx context.Context, id string) (*models.QuizView, error) {
	return m.quizStep(ctx, id, "retake", func(_ context.Context, f *recommend.Flow) error {
		return f.Retake()
	})
}

// SubmitLead submits a lead form enriched with the session's selection, quote or quiz results
func (m *SessionManager) SubmitLead(ctx context.Context, id string, lead models.Lead) (*models.LeadReceipt, error) {
	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	cat, err := m.catalog()
	if err != nil {
		return nil, err
	}

	lead.SessionID = s.ID
	if lead.Source == "" {
		lead.Source = models.SourceCalculator
		if s.Quiz.Status == models.QuizComplete && len(s.Selection) == 0 {
			lead.Source = models.SourceQuiz
		}
	}

	if len(lead.Services) == 0 {
		switch lead.Source {
		case models.SourceQuiz:
			for _, r := range s.Quiz.Results {
				lead.Services = append(lead.Services, r.ServiceID)
			}
		default:
			lead.Services = s.Selection.Clone()
		}
	}

	if lead.Source == models.SourceCalculator && len(s.Selection) > 0 {
		q, err := pricing.NewEngine(cat).QuoteWithROI(s.Selection, s.Tier, s.ROIEnabled)
		if err != nil {
			return nil, err
		}
		lead.Quote = q
	}

	receipt, err := m.leads.Submit(ctx, lead)
	if err != nil {
		return nil, err
	}

	// Keep the session alive after a successful submission
	if _, err := m.update(ctx, id, func(*models.Session) error { return nil }); err != nil {
		slog.Warn("failed to refresh session after lead submission", "id", id, "error", err)
	}

	return receipt, nil
}

// Count returns the number of live sessions
func (m *SessionManager) Count(ctx context.Context) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range all {
		if !s.IsExpired() {
			n++
		}
	}
	return n, nil
}

// GetExpired returns sessions whose idle TTL has elapsed but are still stored
func (m *SessionManager) GetExpired(ctx context.Context) ([]*models.Session, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var expired []*models.Session
	for _, s := range all {
		if s.IsExpired() {
			expired = append(expired, s)
		}
	}
	return expired, nil
}

// quizStep runs one state machine transition on a session
func (m *SessionManager) quizStep(ctx context.Context, id, event string, step func(context.Context, *recommend.Flow) error) (*models.QuizView, error) {
	cat, err := m.catalog()
	if err != nil {
		return nil, err
	}
	engine := recommend.NewEngine(cat)

	var view models.QuizView
	_, err = m.update(ctx, id, func(s *models.Session) error {
		flow := recommend.NewFlow(engine, &s.Quiz, m.quizDelay)
		if err := step(ctx, flow); err != nil {
			return err
		}
		view = flow.View()
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.QuizTransitions.WithLabelValues(event).Inc()
	return &view, nil
}

// update loads, mutates and saves a session under its lock, sliding the TTL
func (m *SessionManager) update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(s); err != nil {
		return nil, err
	}

	s.Touch(m.ttl)
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return s, nil
}

// load fetches a session, treating expired sessions as missing
func (m *SessionManager) load(ctx context.Context, id string) (*models.Session, error) {
	s, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if s == nil || s.IsExpired() {
		return nil, ErrSessionNotFound
	}
	if s.Selection == nil {
		s.Selection = models.Selection{}
	}
	return s, nil
}

func (m *SessionManager) catalog() (*catalog.Catalog, error) {
	c := m.catalogs.Current()
	if c == nil {
		return nil, ErrCatalogMissing
	}
	return c, nil
}

// lock serializes writers of one session. The returned func releases the lock and
// drops the entry once nobody else holds or waits on it.
func (m *SessionManager) lock(id string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.locksMu.Unlock()
	}
}
