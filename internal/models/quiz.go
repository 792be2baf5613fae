package models

import (
	"encoding/json"
	"fmt"
)

// Cardinality controls how many options a question accepts
type Cardinality string

const (
	SingleChoice   Cardinality = "single"
	MultipleChoice Cardinality = "multiple"
)

// Weight is the score an option adds to one service
type Weight struct {
	ServiceID string
	Points    int
}

// Option is one selectable answer with its contribution to each service's score.
// Weights keep the order of the catalog document.
type Option struct {
	Value   string   `yaml:"value" json:"value"`
	Label   string   `yaml:"label" json:"label"`
	Weights []Weight `yaml:"-" json:"-"`
}

// Question is a single step of the recommendation quiz
type Question struct {
	ID          string      `yaml:"id" json:"id"`
	Prompt      string      `yaml:"prompt" json:"prompt"`
	Cardinality Cardinality `yaml:"cardinality" json:"cardinality"`
	Options     []Option    `yaml:"options" json:"options"`
}

// Option looks up an option by its value token
func (q *Question) Option(value string) (*Option, bool) {
	for i := range q.Options {
		if q.Options[i].Value == value {
			return &q.Options[i], true
		}
	}
	return nil, false
}

// Answer holds the selected value tokens for one question.
// Single-choice answers carry exactly one value.
type Answer struct {
	Values []string
}

// SingleAnswer builds a single-choice answer
func SingleAnswer(value string) Answer {
	return Answer{Values: []string{value}}
}

// MultiAnswer builds a multi-choice answer
func MultiAnswer(values ...string) Answer {
	return Answer{Values: values}
}

// Empty reports whether no value is selected
func (a Answer) Empty() bool {
	for _, v := range a.Values {
		if v != "" {
			return false
		}
	}
	return true
}

// MarshalJSON encodes a one-value answer as a string and anything else as an array
func (a Answer) MarshalJSON() ([]byte, error) {
	if len(a.Values) == 1 {
		return json.Marshal(a.Values[0])
	}
	if a.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.Values)
}

// UnmarshalJSON accepts either "value" or ["value", ...]
func (a *Answer) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		a.Values = []string{single}
		return nil
	}

	var multi []string
	if err := json.Unmarshal(data, &multi); err != nil {
		return fmt.Errorf("answer must be a string or an array of strings: %w", err)
	}
	a.Values = multi
	return nil
}

// AnswerSet maps question IDs to the user's answers
type AnswerSet map[string]Answer

// Clone returns a deep copy
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for k, v := range s {
		values := make([]string, len(v.Values))
		copy(values, v.Values)
		out[k] = Answer{Values: values}
	}
	return out
}

// QuizStatus is the state of the question flow
type QuizStatus string

const (
	QuizAnswering   QuizStatus = "answering"
	QuizCalculating QuizStatus = "calculating"
	QuizComplete    QuizStatus = "complete"
)

// QuizProgress is the persisted part of the quiz state machine
type QuizProgress struct {
	Status  QuizStatus       `json:"status"`
	Index   int              `json:"index"`
	Answers AnswerSet        `json:"answers"`
	Results []Recommendation `json:"results,omitempty"`
}

// NewQuizProgress returns progress positioned on the first question
func NewQuizProgress() QuizProgress {
	return QuizProgress{
		Status:  QuizAnswering,
		Answers: make(AnswerSet),
	}
}

// Recommendation is a ranked service match produced by the quiz
type Recommendation struct {
	ServiceID       string `json:"service_id"`
	Title           string `json:"title,omitempty"`
	Category        string `json:"category,omitempty"`
	Score           int    `json:"score"`
	MatchPercentage int    `json:"match_percentage"`
}

// QuizView is returned to clients rendering the current quiz step
type QuizView struct {
	Status      QuizStatus       `json:"status"`
	CurrentStep int              `json:"current_step"`
	TotalSteps  int              `json:"total_steps"`
	Question    *Question        `json:"question,omitempty"`
	Answer      *Answer          `json:"answer,omitempty"`
	CanGoBack   bool             `json:"can_go_back"`
	Results     []Recommendation `json:"results,omitempty"`
}
