package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/coaching-engine/internal/catalog"
	"github.com/terra-clan/coaching-engine/internal/leads"
	"github.com/terra-clan/coaching-engine/internal/models"
	"github.com/terra-clan/coaching-engine/internal/pricing"
	"github.com/terra-clan/coaching-engine/internal/recommend"
)

type capturingNotifier struct {
	mu    sync.Mutex
	leads []models.Lead
}

func (n *capturingNotifier) Notify(_ context.Context, lead models.Lead, _ models.LeadReceipt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leads = append(n.leads, lead)
	return nil
}

func newTestManager(t *testing.T, store Store) (*SessionManager, *capturingNotifier) {
	t.Helper()
	loader := catalog.NewLoader()
	require.NoError(t, loader.LoadDefaults())

	notifier := &capturingNotifier{}
	m := NewManager(store, loader, Options{
		TTL:   time.Hour,
		Leads: leads.NewSubmitter(leads.Options{Notifier: notifier}),
	})
	t.Cleanup(func() { m.Close() })
	return m, notifier
}

func TestManager_CreateDefaults(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, models.TierMid, s.Tier)
	assert.NotNil(t, s.Selection)
	assert.Empty(t, s.Selection)
	assert.Equal(t, models.QuizAnswering, s.Quiz.Status)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.ExpiresAt, 5*time.Second)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestManager_CreateValidation(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	_, err := m.Create(ctx, models.CreateSessionRequest{Tier: "platinum"})
	assert.ErrorIs(t, err, pricing.ErrInvalidTier)

	_, err = m.Create(ctx, models.CreateSessionRequest{Services: []string{"no-such-service"}})
	assert.ErrorIs(t, err, ErrUnknownService)

	s, err := m.Create(ctx, models.CreateSessionRequest{
		Tier:     "high",
		Services: []string{"leadership-coaching", "leadership-coaching", "brand-positioning-workshop"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.Selection{"leadership-coaching", "brand-positioning-workshop"}, s.Selection)
	assert.Equal(t, models.TierHigh, s.Tier)
}

func TestManager_GetMissing(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())

	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, m.Delete(context.Background(), "missing"), ErrSessionNotFound)
}

func TestManager_ToggleRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{Services: []string{"business-strategy-intensive"}})
	require.NoError(t, err)

	s, err = m.ToggleService(ctx, s.ID, "marketing-growth-system")
	require.NoError(t, err)
	assert.Equal(t, models.Selection{"business-strategy-intensive", "marketing-growth-system"}, s.Selection)

	s, err = m.ToggleService(ctx, s.ID, "marketing-growth-system")
	require.NoError(t, err)
	assert.Equal(t, models.Selection{"business-strategy-intensive"}, s.Selection)

	_, err = m.ToggleService(ctx, s.ID, "no-such-service")
	assert.ErrorIs(t, err, ErrUnknownService)

	s, err = m.ResetSelection(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, s.Selection)
}

func TestManager_QuoteFollowsTierAndROI(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{
		Services: []string{"business-strategy-intensive", "marketing-growth-system"},
	})
	require.NoError(t, err)

	q, err := m.Quote(ctx, s.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3560.125, q.Total, 1e-9)
	assert.Nil(t, q.ROI)

	_, err = m.SetTier(ctx, s.ID, models.TierLow)
	require.NoError(t, err)
	_, err = m.SetROI(ctx, s.ID, true)
	require.NoError(t, err)

	q, err = m.Quote(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TierLow, q.Tier)
	assert.InDelta(t, (1000.0+1495.0)*0.95, q.Total, 1e-9)
	require.NotNil(t, q.ROI)
	assert.InDelta(t, 4.5, q.ROI.AverageMultiplier, 1e-9)

	_, err = m.SetTier(ctx, s.ID, "premium")
	assert.ErrorIs(t, err, pricing.ErrInvalidTier)
}

func TestManager_View(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	view, err := m.View(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Quote)
	assert.Equal(t, 0.0, view.Quote.Total)
	assert.Equal(t, 1, view.Quiz.CurrentStep)
	require.NotNil(t, view.Quiz.Question)
	assert.Equal(t, "stage", view.Quiz.Question.ID)
}

func TestManager_QuizFlow(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	_, err = m.Next(ctx, s.ID)
	assert.ErrorIs(t, err, recommend.ErrAnswerRequired)

	steps := []struct {
		question string
		answer   models.Answer
	}{
		{"stage", models.SingleAnswer("side-hustle")},
		{"challenges", models.MultiAnswer("time-management")},
		{"goal", models.SingleAnswer("replace-income")},
		{"budget", models.SingleAnswer("starter")},
	}

	var view *models.QuizView
	for _, step := range steps {
		_, err = m.Answer(ctx, s.ID, step.question, step.answer)
		require.NoError(t, err)
		view, err = m.Next(ctx, s.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, models.QuizComplete, view.Status)
	require.Len(t, view.Results, 1)
	assert.Equal(t, 73, view.Results[0].MatchPercentage)

	// State survives a reload from the store
	view, err = m.Quiz(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuizComplete, view.Status)

	_, err = m.Previous(ctx, s.ID)
	assert.ErrorIs(t, err, recommend.ErrQuizComplete)

	view, err = m.Retake(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuizAnswering, view.Status)
	assert.Equal(t, 1, view.CurrentStep)
	assert.Nil(t, view.Answer)
}

func TestManager_SubmitLeadFromCalculator(t *testing.T) {
	m, notifier := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{
		Services: []string{"business-strategy-intensive", "marketing-growth-system"},
	})
	require.NoError(t, err)

	receipt, err := m.SubmitLead(ctx, s.ID, models.Lead{Name: "Sam", Email: "sam@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceCalculator, receipt.Source)

	require.Len(t, notifier.leads, 1)
	lead := notifier.leads[0]
	assert.Equal(t, s.ID, lead.SessionID)
	assert.Equal(t, []string{"business-strategy-intensive", "marketing-growth-system"}, lead.Services)
	require.NotNil(t, lead.Quote)
	assert.InDelta(t, 3560.125, lead.Quote.Total, 1e-9)

	_, err = m.SubmitLead(ctx, s.ID, models.Lead{Name: "Sam", Email: "sam@example.com"})
	assert.ErrorIs(t, err, leads.ErrDuplicateSubmission)

	_, err = m.SubmitLead(ctx, s.ID, models.Lead{Name: "Sam"})
	assert.ErrorIs(t, err, leads.ErrIncompleteForm)
}

func TestManager_SubmitLeadFromQuiz(t *testing.T) {
	m, notifier := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	for _, a := range []models.Answer{
		models.SingleAnswer("growing"),
		models.MultiAnswer("processes"),
		models.SingleAnswer("step-back"),
		models.SingleAnswer("premium"),
	} {
		_, err = m.Answer(ctx, s.ID, "", a)
		require.NoError(t, err)
		_, err = m.Next(ctx, s.ID)
		require.NoError(t, err)
	}

	_, err = m.SubmitLead(ctx, s.ID, models.Lead{Name: "Alex", Email: "alex@example.com"})
	require.NoError(t, err)

	require.Len(t, notifier.leads, 1)
	lead := notifier.leads[0]
	assert.Equal(t, models.SourceQuiz, lead.Source)
	assert.Equal(t, []string{"operations-optimization", "leadership-coaching"}, lead.Services)
	assert.Nil(t, lead.Quote)
}

func TestManager_ExpiredSessions(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)
	ctx := context.Background()

	live, err := m.Create(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	stale := &models.Session{
		ID:        "stale",
		Selection: models.Selection{},
		Tier:      models.TierMid,
		Quiz:      models.NewQuizProgress(),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Save(ctx, stale, time.Hour))

	_, err = m.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	expired, err := m.GetExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "stale", expired[0].ID)

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, m.Delete(ctx, "stale"))
	expired, err = m.GetExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	_, err = m.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestManager_MutationsSlideTTL(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)
	first := s.ExpiresAt

	time.Sleep(10 * time.Millisecond)
	s, err = m.SetROI(ctx, s.ID, true)
	require.NoError(t, err)
	assert.True(t, s.ExpiresAt.After(first))
}

func TestManager_ConcurrentToggles(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	ids := []string{
		"business-strategy-intensive",
		"marketing-growth-system",
		"side-hustle-accelerator",
		"operations-optimization",
		"leadership-coaching",
		"financial-clarity-program",
		"brand-positioning-workshop",
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := m.ToggleService(ctx, s.ID, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, []string(got.Selection))
	assert.Empty(t, m.locks)
}

func TestManager_LocksReleasedForUnknownSessions(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, err := m.ResetSelection(ctx, fmt.Sprintf("bogus-%d", i))
		require.ErrorIs(t, err, ErrSessionNotFound)
	}
	_, err := m.Next(ctx, "bogus")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, m.Delete(ctx, "bogus"), ErrSessionNotFound)

	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	assert.Empty(t, m.locks)
}

func TestManager_LocksReleasedAfterUpdatesAndDelete(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	s, err := m.Create(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)
	_, err = m.SetTier(ctx, s.ID, models.TierHigh)
	require.NoError(t, err)
	assert.Empty(t, m.locks)

	require.NoError(t, m.Delete(ctx, s.ID))
	assert.Empty(t, m.locks)
}

func TestManager_PingWithoutCatalog(t *testing.T) {
	m := NewManager(NewMemoryStore(), catalog.NewLoader(), Options{})

	assert.ErrorIs(t, m.Ping(context.Background()), ErrCatalogMissing)
	_, err := m.Create(context.Background(), models.CreateSessionRequest{})
	assert.ErrorIs(t, err, ErrCatalogMissing)
}
