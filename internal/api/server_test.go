package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/coaching-engine/internal/catalog"
	"github.com/terra-clan/coaching-engine/internal/config"
	"github.com/terra-clan/coaching-engine/internal/leads"
	"github.com/terra-clan/coaching-engine/internal/models"
	"github.com/terra-clan/coaching-engine/internal/session"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	loader := catalog.NewLoader()
	require.NoError(t, loader.LoadDefaults())

	submitter := leads.NewSubmitter(leads.Options{})
	manager := session.NewManager(session.NewMemoryStore(), loader, session.Options{
		TTL:   time.Hour,
		Leads: submitter,
	})
	t.Cleanup(func() { manager.Close() })

	return NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		config.MetricsConfig{Enabled: true},
		loader,
		manager,
		submitter,
	)
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func createSession(t *testing.T, s *Server, req models.CreateSessionRequest) models.SessionView {
	t.Helper()
	code, env := doRequest(t, s, http.MethodPost, "/api/v1/sessions", req)
	require.Equal(t, http.StatusCreated, code)

	var view models.SessionView
	decodeData(t, env, &view)
	require.NotEmpty(t, view.ID)
	return view
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	code, env := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, env = doRequest(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestReady_NoCatalog(t *testing.T) {
	loader := catalog.NewLoader()
	manager := session.NewManager(session.NewMemoryStore(), loader, session.Options{})
	s := NewServer(config.ServerConfig{Port: 8080}, config.MetricsConfig{}, loader, manager, leads.NewSubmitter(leads.Options{}))

	code, env := doRequest(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_ready", env.Error.Code)

	code, _ = doRequest(t, s, http.MethodGet, "/api/v1/services", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, env := doRequest(t, s, http.MethodGet, "/api/v1/services", nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Services []models.Service `json:"services"`
		Total    int              `json:"total"`
	}
	decodeData(t, env, &list)
	assert.Equal(t, 7, list.Total)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/services?category=marketing", nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &list)
	assert.Equal(t, 2, list.Total)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/services/leadership-coaching", nil)
	require.Equal(t, http.StatusOK, code)
	var svc models.Service
	decodeData(t, env, &svc)
	assert.Equal(t, 4500, svc.PriceMax)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/services/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/services/side-hustle-accelerator/complementary", nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &list)
	require.Len(t, list.Services, 3)
	assert.Equal(t, "brand-positioning-workshop", list.Services[0].ID)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/discounts", nil)
	require.Equal(t, http.StatusOK, code)
	var discounts struct {
		Discounts []models.DiscountTier `json:"discounts"`
	}
	decodeData(t, env, &discounts)
	assert.Len(t, discounts.Discounts, 3)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/questions", nil)
	require.Equal(t, http.StatusOK, code)
	var questions struct {
		Questions []models.Question `json:"questions"`
	}
	decodeData(t, env, &questions)
	require.Len(t, questions.Questions, 4)
	assert.Equal(t, models.MultipleChoice, questions.Questions[1].Cardinality)
}

func TestStatelessQuote(t *testing.T) {
	s := newTestServer(t)

	code, env := doRequest(t, s, http.MethodPost, "/api/v1/quote", models.QuoteRequest{
		Services:   []string{"business-strategy-intensive", "marketing-growth-system"},
		IncludeROI: true,
	})
	require.Equal(t, http.StatusOK, code)

	var q models.Quote
	decodeData(t, env, &q)
	assert.Equal(t, models.TierMid, q.Tier)
	assert.InDelta(t, 3747.5, q.Subtotal, 1e-9)
	assert.InDelta(t, 187.375, q.DiscountAmount, 1e-9)
	assert.InDelta(t, 3560.125, q.Total, 1e-9)
	assert.Equal(t, 60, q.TotalDuration)
	require.NotNil(t, q.ROI)
	assert.Equal(t, 4, q.ROI.PaybackMonths)

	code, env = doRequest(t, s, http.MethodPost, "/api/v1/quote", models.QuoteRequest{})
	require.Equal(t, http.StatusOK, code)
	q = models.Quote{}
	decodeData(t, env, &q)
	assert.Equal(t, 0.0, q.Total)
	assert.Empty(t, q.Lines)
	assert.Nil(t, q.ROI)

	code, env = doRequest(t, s, http.MethodPost, "/api/v1/quote", models.QuoteRequest{Tier: "gold"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_tier", env.Error.Code)
}

func TestInvalidJSON(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quote", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestStatelessRecommendations(t *testing.T) {
	s := newTestServer(t)

	body := map[string]interface{}{
		"answers": map[string]interface{}{
			"stage":      "side-hustle",
			"challenges": []string{"time-management"},
			"goal":       "replace-income",
			"budget":     "starter",
		},
	}

	code, env := doRequest(t, s, http.MethodPost, "/api/v1/recommendations", body)
	require.Equal(t, http.StatusOK, code)

	var out struct {
		Recommendations []models.Recommendation `json:"recommendations"`
	}
	decodeData(t, env, &out)
	require.Len(t, out.Recommendations, 1)
	assert.Equal(t, "side-hustle-accelerator", out.Recommendations[0].ServiceID)
	assert.Equal(t, 73, out.Recommendations[0].MatchPercentage)
}

func TestStatelessRecommendations_RepeatedSingleChoiceToken(t *testing.T) {
	s := newTestServer(t)

	body := map[string]interface{}{
		"answers": map[string]interface{}{
			"stage": []string{"side-hustle", "side-hustle", "side-hustle"},
		},
	}

	code, env := doRequest(t, s, http.MethodPost, "/api/v1/recommendations", body)
	require.Equal(t, http.StatusOK, code)

	var out struct {
		Recommendations []models.Recommendation `json:"recommendations"`
	}
	decodeData(t, env, &out)
	require.Len(t, out.Recommendations, 1)
	assert.Equal(t, 5, out.Recommendations[0].Score)
	assert.Equal(t, 33, out.Recommendations[0].MatchPercentage)
}

func TestResponsesUseSnakeCaseKeys(t *testing.T) {
	s := newTestServer(t)

	code, env := doRequest(t, s, http.MethodPost, "/api/v1/quote", models.QuoteRequest{
		Services:   []string{"business-strategy-intensive", "brand-positioning-workshop"},
		IncludeROI: true,
	})
	require.Equal(t, http.StatusOK, code)

	var quote map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	for _, key := range []string{"discount_rate", "discount_amount", "total_duration",
		"avg_monthly_investment", "recommended_add_ons", "roi"} {
		assert.Contains(t, quote, key)
	}
	assert.NotContains(t, quote, "discountRate")

	lines, ok := quote["services"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "service_id")
	assert.Contains(t, lines[0], "unit_price")
	assert.Contains(t, quote["roi"], "payback_months")

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/services/side-hustle-accelerator", nil)
	require.Equal(t, http.StatusOK, code)
	var service map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &service))
	assert.Contains(t, service, "price_min")
	assert.Contains(t, service, "value_drivers")
	assert.NotContains(t, service, "priceMin")
}

func TestContactLead(t *testing.T) {
	s := newTestServer(t)

	lead := models.Lead{Name: "Robin", Email: "robin@example.com", Message: "Hello"}
	code, env := doRequest(t, s, http.MethodPost, "/api/v1/leads", lead)
	require.Equal(t, http.StatusAccepted, code)

	var receipt models.LeadReceipt
	decodeData(t, env, &receipt)
	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, models.SourceContact, receipt.Source)

	code, env = doRequest(t, s, http.MethodPost, "/api/v1/leads", lead)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "duplicate_submission", env.Error.Code)

	code, env = doRequest(t, s, http.MethodPost, "/api/v1/leads", models.Lead{Name: "Robin", Email: "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "incomplete_form", env.Error.Code)
}

func TestSessionCalculator(t *testing.T) {
	s := newTestServer(t)
	view := createSession(t, s, models.CreateSessionRequest{})
	base := "/api/v1/sessions/" + view.ID

	assert.Equal(t, models.TierMid, view.Tier)
	require.NotNil(t, view.Quote)
	assert.Equal(t, 0.0, view.Quote.Total)

	code, env := doRequest(t, s, http.MethodPost, base+"/selection/toggle",
		models.ToggleRequest{ServiceID: "business-strategy-intensive"})
	require.Equal(t, http.StatusOK, code)
	code, env = doRequest(t, s, http.MethodPost, base+"/selection/toggle",
		models.ToggleRequest{ServiceID: "marketing-growth-system"})
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &view)
	assert.Equal(t, models.Selection{"business-strategy-intensive", "marketing-growth-system"}, view.Selection)
	assert.InDelta(t, 3560.125, view.Quote.Total, 1e-9)

	code, env = doRequest(t, s, http.MethodPost, base+"/selection/toggle", models.ToggleRequest{ServiceID: "ghost"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_service", env.Error.Code)

	code, _ = doRequest(t, s, http.MethodPost, base+"/selection/toggle", models.ToggleRequest{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = doRequest(t, s, http.MethodPut, base+"/tier", models.TierRequest{Tier: "high"})
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &view)
	assert.InDelta(t, 5000.0*0.95, view.Quote.Total, 1e-9)

	code, _ = doRequest(t, s, http.MethodPut, base+"/tier", models.TierRequest{Tier: "ultra"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doRequest(t, s, http.MethodPut, base+"/roi", models.ROIRequest{Enabled: true})
	require.Equal(t, http.StatusOK, code)

	code, env = doRequest(t, s, http.MethodGet, base+"/quote", nil)
	require.Equal(t, http.StatusOK, code)
	var q models.Quote
	decodeData(t, env, &q)
	require.NotNil(t, q.ROI)
	assert.Equal(t, models.TierHigh, q.Tier)

	code, env = doRequest(t, s, http.MethodDelete, base+"/selection", nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &view)
	assert.Empty(t, view.Selection)

	code, _ = doRequest(t, s, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = doRequest(t, s, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestCreateSession_Validation(t *testing.T) {
	s := newTestServer(t)

	code, _ := doRequest(t, s, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{Tier: "gold"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := doRequest(t, s, http.MethodPost, "/api/v1/sessions",
		models.CreateSessionRequest{Services: []string{"ghost"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_service", env.Error.Code)

	// Empty body creates a default session
	code, _ = doRequest(t, s, http.MethodPost, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusCreated, code)
}

func TestSessionQuiz(t *testing.T) {
	s := newTestServer(t)
	view := createSession(t, s, models.CreateSessionRequest{})
	base := "/api/v1/sessions/" + view.ID + "/quiz"

	code, env := doRequest(t, s, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	var quiz models.QuizView
	decodeData(t, env, &quiz)
	assert.Equal(t, 1, quiz.CurrentStep)
	assert.False(t, quiz.CanGoBack)

	code, env = doRequest(t, s, http.MethodPost, base+"/previous", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "quiz_state", env.Error.Code)

	code, env = doRequest(t, s, http.MethodPost, base+"/next", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "answer_required", env.Error.Code)

	code, env = doRequest(t, s, http.MethodPost, base+"/answers", map[string]interface{}{
		"question_id": "stage",
		"answer":      "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_option", env.Error.Code)

	answers := []map[string]interface{}{
		{"question_id": "stage", "answer": "side-hustle"},
		{"question_id": "challenges", "answer": []string{"time-management"}},
		{"question_id": "goal", "answer": "replace-income"},
		{"question_id": "budget", "answer": "starter"},
	}
	for _, a := range answers {
		code, _ = doRequest(t, s, http.MethodPost, base+"/answers", a)
		require.Equal(t, http.StatusOK, code)
		code, env = doRequest(t, s, http.MethodPost, base+"/next", nil)
		require.Equal(t, http.StatusOK, code)
	}

	decodeData(t, env, &quiz)
	assert.Equal(t, models.QuizComplete, quiz.Status)
	require.Len(t, quiz.Results, 1)
	assert.Equal(t, 73, quiz.Results[0].MatchPercentage)

	code, env = doRequest(t, s, http.MethodPost, base+"/next", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions/"+view.ID+"/leads",
		models.Lead{Name: "Casey", Email: "casey@example.com"})
	require.Equal(t, http.StatusAccepted, code)
	var receipt models.LeadReceipt
	decodeData(t, env, &receipt)
	assert.Equal(t, models.SourceQuiz, receipt.Source)

	code, env = doRequest(t, s, http.MethodPost, base+"/retake", nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &quiz)
	assert.Equal(t, models.QuizAnswering, quiz.Status)
	assert.Equal(t, 1, quiz.CurrentStep)

	code, _ = doRequest(t, s, http.MethodPost, base+"/retake", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestUnknownSessionRoutes(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/v1/sessions/missing",
		"/api/v1/sessions/missing/quote",
		"/api/v1/sessions/missing/quiz",
	} {
		code, env := doRequest(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, code, path)
		require.NotNil(t, env.Error, path)
	}

	code, _ := doRequest(t, s, http.MethodGet, "/api/v1/sessions/missing/calculator", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/api/v1/quote", models.QuoteRequest{Services: []string{"leadership-coaching"}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coaching_quotes_calculated_total")
	assert.Contains(t, rec.Body.String(), "coaching_http_request_duration_seconds")
}

func TestCalculatorWebSocket(t *testing.T) {
	s := newTestServer(t)
	view := createSession(t, s, models.CreateSessionRequest{Services: []string{"side-hustle-accelerator"}})

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + view.ID + "/calculator"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() CalculatorMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg CalculatorMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	msg := read()
	require.Equal(t, "quote", msg.Type)
	require.NotNil(t, msg.Session)
	assert.InDelta(t, 1000.0, msg.Session.Quote.Total, 1e-9)

	require.NoError(t, conn.WriteJSON(CalculatorMessage{Type: "toggle", ServiceID: "brand-positioning-workshop"}))
	msg = read()
	require.Equal(t, "quote", msg.Type)
	assert.Equal(t, models.Selection{"side-hustle-accelerator", "brand-positioning-workshop"}, msg.Session.Selection)
	assert.InDelta(t, 1900.0*0.95, msg.Session.Quote.Total, 1e-9)

	enabled := true
	require.NoError(t, conn.WriteJSON(CalculatorMessage{Type: "roi", Enabled: &enabled}))
	msg = read()
	require.Equal(t, "quote", msg.Type)
	assert.True(t, msg.Session.ROIEnabled)
	assert.NotNil(t, msg.Session.Quote.ROI)

	require.NoError(t, conn.WriteJSON(CalculatorMessage{Type: "tier", Tier: "diamond"}))
	msg = read()
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "invalid_tier", msg.Code)

	require.NoError(t, conn.WriteJSON(CalculatorMessage{Type: "toggle", ServiceID: "ghost"}))
	msg = read()
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown_service", msg.Code)

	require.NoError(t, conn.WriteJSON(CalculatorMessage{Type: "launch"}))
	msg = read()
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "invalid_request", msg.Code)

	require.NoError(t, conn.WriteJSON(CalculatorMessage{Type: "reset"}))
	msg = read()
	require.Equal(t, "quote", msg.Type)
	assert.Empty(t, msg.Session.Selection)
	assert.Equal(t, 0.0, msg.Session.Quote.Total)
}

func TestCalculatorWebSocket_OutlivesServerTimeouts(t *testing.T) {
	s := newTestServer(t)
	view := createSession(t, s, models.CreateSessionRequest{})

	ts := httptest.NewUnstartedServer(s.Router())
	ts.Config.ReadTimeout = 200 * time.Millisecond
	ts.Config.WriteTimeout = 200 * time.Millisecond
	ts.Start()
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + view.ID + "/calculator"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg CalculatorMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "quote", msg.Type)

	// Idle well past the HTTP server timeouts
	time.Sleep(500 * time.Millisecond)

	require.NoError(t, conn.WriteJSON(CalculatorMessage{Type: "toggle", ServiceID: "side-hustle-accelerator"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	msg = CalculatorMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "quote", msg.Type)
	assert.Equal(t, models.Selection{"side-hustle-accelerator"}, msg.Session.Selection)
}
