// Package recommend scores quiz answers against the option weight table and
// drives the question flow that leads to the ranked recommendations.
package recommend

import (
	"log/slog"
	"math"
	"sort"

	"github.com/terra-clan/coaching-engine/internal/models"
)

// Calibration constants for the match percentage
const (
	TopN               = 3
	ScoreDivisor       = 15.0
	MaxMatchPercentage = 98
)

// Catalog provides the questions and the services they weight
type Catalog interface {
	Services() []models.Service
	Questions() []models.Question
}

// Engine ranks services for a set of quiz answers
type Engine struct {
	catalog Catalog
}

// NewEngine creates a recommendation engine over a catalog
func NewEngine(c Catalog) *Engine {
	return &Engine{catalog: c}
}

// Questions returns the quiz in flow order
func (e *Engine) Questions() []models.Question {
	return e.catalog.Questions()
}

// Score ranks services by the summed weights of the chosen options and returns
// the top matches. Ties keep the order in which services first received weight,
// following quiz order, answer order and the order of each option's weight table.
// Repeated tokens count once and a single-choice question counts only its first
// valid token. Unknown questions, options and services contribute nothing.
func (e *Engine) Score(answers models.AnswerSet) []models.Recommendation {
	services := e.catalog.Services()
	byID := make(map[string]*models.Service, len(services))
	for i := range services {
		byID[services[i].ID] = &services[i]
	}
	scores := make(map[string]int, len(services))
	var order []string

	for _, q := range e.catalog.Questions() {
		answer, ok := answers[q.ID]
		if !ok {
			continue
		}
		for _, opt := range chosenOptions(&q, answer) {
			for _, w := range opt.Weights {
				if w.Points <= 0 {
					continue
				}
				if _, known := byID[w.ServiceID]; !known {
					slog.Debug("skipping weight for unknown service", "question", q.ID, "service", w.ServiceID)
					continue
				}
				if _, seen := scores[w.ServiceID]; !seen {
					order = append(order, w.ServiceID)
				}
				scores[w.ServiceID] += w.Points
			}
		}
	}

	ranked := make([]models.Recommendation, 0, len(order))
	for _, id := range order {
		svc := byID[id]
		ranked = append(ranked, models.Recommendation{
			ServiceID:       id,
			Title:           svc.Title,
			Category:        svc.Category,
			Score:           scores[id],
			MatchPercentage: MatchPercentage(scores[id]),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}
	return ranked
}

// chosenOptions resolves the answer tokens of one question to options
func chosenOptions(q *models.Question, answer models.Answer) []*models.Option {
	var out []*models.Option
	seen := make(map[string]bool, len(answer.Values))
	for _, value := range answer.Values {
		if seen[value] {
			continue
		}
		seen[value] = true

		opt, ok := q.Option(value)
		if !ok {
			slog.Debug("skipping unknown quiz option", "question", q.ID, "value", value)
			continue
		}
		out = append(out, opt)
		if q.Cardinality == models.SingleChoice {
			break
		}
	}
	return out
}

// MatchPercentage converts a raw score into a capped confidence percentage
func MatchPercentage(score int) int {
	if score <= 0 {
		return 0
	}
	pct := int(math.Round(float64(score) / ScoreDivisor * 100))
	if pct > MaxMatchPercentage {
		return MaxMatchPercentage
	}
	return pct
}
