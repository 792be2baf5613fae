// Package leads accepts lead-capture form submissions. Submissions are checked,
// paced to feel like a real round trip, handed to a Notifier and then dropped.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/coaching-engine/internal/metrics"
	"github.com/terra-clan/coaching-engine/internal/models"
	"github.com/terra-clan/coaching-engine/internal/pacing"
)

// DefaultDuplicateWindow blocks identical resubmissions for this long
const DefaultDuplicateWindow = 3 * time.Minute

var (
	ErrIncompleteForm      = errors.New("name and a valid email are required")
	ErrDuplicateSubmission = errors.New("duplicate submission, please wait before submitting again")
	ErrInvalidSource       = errors.New("invalid lead source")
)

// Notifier receives accepted leads
type Notifier interface {
	Notify(ctx context.Context, lead models.Lead, receipt models.LeadReceipt) error
}

// LogNotifier writes accepted leads to the structured log
type LogNotifier struct{}

// Notify logs the lead without its free-text message
func (LogNotifier) Notify(_ context.Context, lead models.Lead, receipt models.LeadReceipt) error {
	attrs := []any{
		"id", receipt.ID,
		"source", lead.Source,
		"email", lead.Email,
		"services", lead.Services,
	}
	if lead.SessionID != "" {
		attrs = append(attrs, "session_id", lead.SessionID)
	}
	if lead.Quote != nil {
		attrs = append(attrs, "quote_total", lead.Quote.Total)
	}
	slog.Info("lead received", attrs...)
	return nil
}

// Options configures a Submitter
type Options struct {
	Delay           pacing.Delayer
	DuplicateWindow time.Duration
	Notifier        Notifier
}

// Submitter validates and forwards lead submissions
type Submitter struct {
	delay    pacing.Delayer
	window   time.Duration
	notifier Notifier
	now      func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time
}

// NewSubmitter creates a submitter, filling in defaults for unset options
func NewSubmitter(opts Options) *Submitter {
	if opts.Delay == nil {
		opts.Delay = pacing.None()
	}
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = DefaultDuplicateWindow
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}

	return &Submitter{
		delay:    opts.Delay,
		window:   opts.DuplicateWindow,
		notifier: opts.Notifier,
		now:      time.Now,
		recent:   make(map[string]time.Time),
	}
}

// Submit runs one simulated submission
func (s *Submitter) Submit(ctx context.Context, lead models.Lead) (*models.LeadReceipt, error) {
	lead.Normalize()

	if err := Validate(lead); err != nil {
		metrics.LeadsSubmitted.WithLabelValues(string(lead.Source), "rejected").Inc()
		return nil, err
	}

	key := submissionKey(lead)
	if !s.reserve(key) {
		slog.Warn("duplicate lead blocked", "source", lead.Source, "email", lead.Email)
		metrics.LeadsSubmitted.WithLabelValues(string(lead.Source), "duplicate").Inc()
		return nil, ErrDuplicateSubmission
	}

	if err := s.delay.Wait(ctx); err != nil {
		s.release(key)
		return nil, fmt.Errorf("submission interrupted: %w", err)
	}

	receipt := models.LeadReceipt{
		ID:         uuid.New().String(),
		Source:     lead.Source,
		Status:     "received",
		ReceivedAt: s.now().UTC(),
	}

	if err := s.notifier.Notify(ctx, lead, receipt); err != nil {
		s.release(key)
		metrics.LeadsSubmitted.WithLabelValues(string(lead.Source), "failed").Inc()
		return nil, fmt.Errorf("failed to deliver lead: %w", err)
	}

	metrics.LeadsSubmitted.WithLabelValues(string(lead.Source), "accepted").Inc()
	return &receipt, nil
}

// Validate applies the form-completeness rule to a normalized lead
func Validate(lead models.Lead) error {
	switch lead.Source {
	case models.SourceContact, models.SourceCalculator, models.SourceQuiz:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidSource, lead.Source)
	}

	if lead.Name == "" || lead.Email == "" {
		return ErrIncompleteForm
	}
	at := strings.Index(lead.Email, "@")
	if at <= 0 || at == len(lead.Email)-1 {
		return ErrIncompleteForm
	}
	return nil
}

// reserve records the key unless it was seen within the window
func (s *Submitter) reserve(key string) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, at := range s.recent {
		if now.Sub(at) >= s.window {
			delete(s.recent, k)
		}
	}

	if at, ok := s.recent[key]; ok && now.Sub(at) < s.window {
		return false
	}
	s.recent[key] = now
	return true
}

func (s *Submitter) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recent, key)
}

func submissionKey(lead models.Lead) string {
	return string(lead.Source) + "|" + lead.Email
}
