// Package pricing turns a service selection into a priced quote with bundle
// discount, duration, add-on suggestions and an optional ROI projection.
package pricing

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/terra-clan/coaching-engine/internal/models"
)

// MaxAddOns caps the recommended add-on list
const MaxAddOns = 3

// daysPerMonth converts engagement length into months for the monthly figure
const daysPerMonth = 30.0

// Common errors
var (
	ErrInvalidTier    = errors.New("invalid pricing tier")
	ErrEmptySelection = errors.New("selection is empty")
)

// Catalog is the read-only data the engine prices against
type Catalog interface {
	Service(id string) (*models.Service, bool)
	Complementary(id string) []string
	DiscountRate(count int) float64
	ROIMultiplier(category string) int
}

// Engine computes quotes. It holds no mutable state.
type Engine struct {
	catalog Catalog
}

// NewEngine creates a pricing engine over a catalog
func NewEngine(c Catalog) *Engine {
	return &Engine{catalog: c}
}

// Quote prices the selected services at the given tier.
// Unknown service IDs are skipped and do not count towards the bundle size.
func (e *Engine) Quote(selection []string, tier models.PricingTier) (*models.Quote, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	lines := e.resolve(selection, tier)
	if len(lines) == 0 {
		return &models.Quote{
			Tier:   tier,
			Lines:  []models.QuoteLine{},
			AddOns: []string{},
		}, nil
	}

	var subtotal float64
	var duration int
	for _, line := range lines {
		subtotal += line.UnitPrice
		if line.Duration > duration {
			duration = line.Duration
		}
	}

	rate := e.catalog.DiscountRate(len(lines))
	discount := subtotal * rate
	total := subtotal - discount

	var monthly float64
	if duration > 0 {
		monthly = total / (float64(duration) / daysPerMonth)
	}

	return &models.Quote{
		Tier:                 tier,
		Lines:                lines,
		Subtotal:             subtotal,
		DiscountRate:         rate,
		DiscountAmount:       discount,
		Total:                total,
		TotalDuration:        duration,
		AvgMonthlyInvestment: monthly,
		AddOns:               e.AddOns(selection),
	}, nil
}

// QuoteWithROI prices the selection and attaches the ROI projection when requested
// and the selection is not empty.
func (e *Engine) QuoteWithROI(selection []string, tier models.PricingTier, includeROI bool) (*models.Quote, error) {
	q, err := e.Quote(selection, tier)
	if err != nil {
		return nil, err
	}

	if includeROI && q.Total > 0 {
		roi, err := e.ProjectROI(q)
		if err != nil {
			return nil, err
		}
		q.ROI = roi
	}

	return q, nil
}

// AddOns suggests complementary services for a selection: first occurrence order
// across the selection, without duplicates or already-selected services.
func (e *Engine) AddOns(selection []string) []string {
	selected := make(map[string]bool, len(selection))
	for _, id := range selection {
		selected[id] = true
	}

	out := make([]string, 0, MaxAddOns)
	seen := make(map[string]bool)
	for _, id := range selection {
		for _, candidate := range e.catalog.Complementary(id) {
			if selected[candidate] || seen[candidate] {
				continue
			}
			if _, ok := e.catalog.Service(candidate); !ok {
				slog.Debug("skipping unknown complementary service", "service", id, "ref", candidate)
				continue
			}
			seen[candidate] = true
			out = append(out, candidate)
			if len(out) == MaxAddOns {
				return out
			}
		}
	}
	return out
}

// ProjectROI estimates revenue from the quote's services using the category
// multipliers. The quote must have a positive total.
func (e *Engine) ProjectROI(q *models.Quote) (*models.ROIProjection, error) {
	if q == nil || len(q.Lines) == 0 || q.Total <= 0 {
		return nil, ErrEmptySelection
	}

	var sum int
	for _, line := range q.Lines {
		sum += e.catalog.ROIMultiplier(line.Category)
	}
	avg := float64(sum) / float64(len(q.Lines))

	projected := q.Total * avg
	net := projected - q.Total

	payback := 0
	if net > 0 {
		months := q.Total / (net / 12)
		// absorb float noise so exact month counts are not rounded up
		payback = int(math.Ceil(months - 1e-9))
	}

	return &models.ROIProjection{
		AverageMultiplier: avg,
		ProjectedRevenue:  projected,
		NetROI:            net,
		ROIPercentage:     net / q.Total * 100,
		PaybackMonths:     payback,
	}, nil
}

// resolve maps selected IDs to quote lines, dropping unknown and repeated IDs
func (e *Engine) resolve(selection []string, tier models.PricingTier) []models.QuoteLine {
	lines := make([]models.QuoteLine, 0, len(selection))
	seen := make(map[string]bool, len(selection))
	for _, id := range selection {
		if seen[id] {
			continue
		}
		seen[id] = true

		svc, ok := e.catalog.Service(id)
		if !ok {
			slog.Debug("skipping unknown service in selection", "service", id)
			continue
		}
		lines = append(lines, models.QuoteLine{
			ServiceID: svc.ID,
			Title:     svc.Title,
			Category:  svc.Category,
			UnitPrice: svc.UnitPrice(tier),
			Duration:  svc.Duration,
		})
	}
	return lines
}
