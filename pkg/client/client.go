package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/terra-clan/coaching-engine/internal/models"
)

// Client is a Go SDK for the coaching-engine API
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new coaching-engine client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "coaching-engine-go",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is returned when the API answers with an error envelope
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, e.Code, e.Message)
}

// ServiceList is the response of ListServices
type ServiceList struct {
	Services []models.Service `json:"services"`
	Total    int              `json:"total"`
}

// ListServices retrieves the service catalog in display order
func (c *Client) ListServices(ctx context.Context) ([]models.Service, error) {
	var out ServiceList
	if err := c.call(ctx, http.MethodGet, "/api/v1/services", nil, &out); err != nil {
		return nil, err
	}
	return out.Services, nil
}

// Quote prices a selection without a session
func (c *Client) Quote(ctx context.Context, req models.QuoteRequest) (*models.Quote, error) {
	var out models.Quote
	if err := c.call(ctx, http.MethodPost, "/api/v1/quote", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recommend scores a complete answer set without a session
func (c *Client) Recommend(ctx context.Context, answers models.AnswerSet) ([]models.Recommendation, error) {
	var out struct {
		Recommendations []models.Recommendation `json:"recommendations"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/recommendations", models.RecommendRequest{Answers: answers}, &out); err != nil {
		return nil, err
	}
	return out.Recommendations, nil
}

// CreateSession starts a calculator and quiz session
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.SessionView, error) {
	var out models.SessionView
	if err := c.call(ctx, http.MethodPost, "/api/v1/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession retrieves a session with its current quote and quiz step
func (c *Client) GetSession(ctx context.Context, id string) (*models.SessionView, error) {
	var out models.SessionView
	if err := c.call(ctx, http.MethodGet, sessionPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession ends a session
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// ToggleService adds or removes a service from the session selection
func (c *Client) ToggleService(ctx context.Context, id, serviceID string) (*models.SessionView, error) {
	var out models.SessionView
	if err := c.call(ctx, http.MethodPost, sessionPath(id, "/selection/toggle"), models.ToggleRequest{ServiceID: serviceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetTier changes the session pricing tier
func (c *Client) SetTier(ctx context.Context, id string, tier models.PricingTier) (*models.SessionView, error) {
	var out models.SessionView
	if err := c.call(ctx, http.MethodPut, sessionPath(id, "/tier"), models.TierRequest{Tier: string(tier)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetROI switches the ROI projection on or off
func (c *Client) SetROI(ctx context.Context, id string, enabled bool) (*models.SessionView, error) {
	var out models.SessionView
	if err := c.call(ctx, http.MethodPut, sessionPath(id, "/roi"), models.ROIRequest{Enabled: enabled}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionQuote prices the session's current selection
func (c *Client) SessionQuote(ctx context.Context, id string) (*models.Quote, error) {
	var out models.Quote
	if err := c.call(ctx, http.MethodGet, sessionPath(id, "/quote"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnswerQuestion records the answer for the current quiz question
func (c *Client) AnswerQuestion(ctx context.Context, id, questionID string, answer models.Answer) (*models.QuizView, error) {
	var out models.QuizView
	req := models.AnswerRequest{QuestionID: questionID, Answer: answer}
	if err := c.call(ctx, http.MethodPost, sessionPath(id, "/quiz/answers"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NextQuestion advances the quiz; on the last question it returns the results
func (c *Client) NextQuestion(ctx context.Context, id string) (*models.QuizView, error) {
	var out models.QuizView
	if err := c.call(ctx, http.MethodPost, sessionPath(id, "/quiz/next"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitLead sends the contact form, bound to a session when sessionID is set
func (c *Client) SubmitLead(ctx context.Context, sessionID string, lead models.Lead) (*models.LeadReceipt, error) {
	path := "/api/v1/leads"
	if sessionID != "" {
		path = sessionPath(sessionID, "/leads")
	}

	var out models.LeadReceipt
	if err := c.call(ctx, http.MethodPost, path, lead, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func sessionPath(id, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(id) + suffix
}

// call sends in as JSON and decodes the envelope's data into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, status, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		if status >= 400 {
			return &APIError{StatusCode: status, Code: "http_error", Message: string(resp)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		apiErr := &APIError{StatusCode: status}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		return apiErr
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}

	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
