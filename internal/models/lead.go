package models

import (
	"strings"
	"time"
)

// LeadSource identifies which form a lead came from
type LeadSource string

const (
	SourceContact    LeadSource = "contact"
	SourceCalculator LeadSource = "calculator"
	SourceQuiz       LeadSource = "quiz"
)

// Lead is a contact-form submission. Leads are handed to the notifier and dropped.
type Lead struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Company   string     `json:"company,omitempty"`
	Message   string     `json:"message,omitempty"`
	Services  []string   `json:"services,omitempty"`
	Source    LeadSource `json:"source,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Quote     *Quote     `json:"quote,omitempty"`
}

// Normalize trims whitespace and lower-cases the email address
func (l *Lead) Normalize() {
	l.Name = strings.TrimSpace(l.Name)
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	l.Phone = strings.TrimSpace(l.Phone)
	l.Company = strings.TrimSpace(l.Company)
	if l.Source == "" {
		l.Source = SourceContact
	}
}

// LeadReceipt confirms a (simulated) lead submission
type LeadReceipt struct {
	ID         string     `json:"id"`
	Source     LeadSource `json:"source"`
	Status     string     `json:"status"`
	ReceivedAt time.Time  `json:"received_at"`
}
