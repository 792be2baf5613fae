package models

import (
	"time"
)

// Session holds the ephemeral calculator and quiz state of one visitor.
// It is never written to durable storage.
type Session struct {
	ID         string       `json:"id"`
	Selection  Selection    `json:"selection"`
	Tier       PricingTier  `json:"tier"`
	ROIEnabled bool         `json:"roi_enabled"`
	Quiz       QuizProgress `json:"quiz"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

// IsExpired checks if the session idle TTL has elapsed
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Touch records activity and slides the expiry forward by ttl
func (s *Session) Touch(ttl time.Duration) {
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// TimeRemaining returns the duration until expiry (0 if expired)
func (s *Session) TimeRemaining() time.Duration {
	remaining := time.Until(s.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CreateSessionRequest represents a request to create a session
type CreateSessionRequest struct {
	Tier       string   `json:"tier,omitempty"`
	Services   []string `json:"services,omitempty"`
	ROIEnabled bool     `json:"roi_enabled,omitempty"`
}

// ToggleRequest adds or removes a service from a session selection
type ToggleRequest struct {
	ServiceID string `json:"service_id"`
}

// TierRequest changes the pricing tier of a session
type TierRequest struct {
	Tier string `json:"tier"`
}

// ROIRequest switches the ROI projection on or off
type ROIRequest struct {
	Enabled bool `json:"enabled"`
}

// AnswerRequest records the answer to a quiz question
type AnswerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     Answer `json:"answer"`
}

// SessionView is the client-facing state of a session
type SessionView struct {
	ID         string      `json:"id"`
	Selection  Selection   `json:"selection"`
	Tier       PricingTier `json:"tier"`
	ROIEnabled bool        `json:"roi_enabled"`
	Quote      *Quote      `json:"quote"`
	Quiz       QuizView    `json:"quiz"`
	ExpiresAt  time.Time   `json:"expires_at"`
}
