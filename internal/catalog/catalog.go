package catalog

import (
	"sort"

	"github.com/terra-clan/coaching-engine/internal/models"
)

// DefaultROIMultiplier applies to categories absent from the multiplier table
const DefaultROIMultiplier = 3

// Catalog is an immutable snapshot of the services, the advisory tables and the quiz.
// A Catalog is safe for concurrent use; callers must not modify returned values.
type Catalog struct {
	services      []models.Service
	index         map[string]int
	complementary map[string][]string
	discounts     []models.DiscountTier // ascending by count
	multipliers   map[string]int
	defaultMult   int
	questions     []models.Question
	questionIndex map[string]int
}

// Services returns all services in display order
func (c *Catalog) Services() []models.Service {
	return c.services
}

// Service returns a service by ID
func (c *Catalog) Service(id string) (*models.Service, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return &c.services[i], true
}

// Complementary returns the ordered up-sell list for a service (nil if none)
func (c *Catalog) Complementary(id string) []string {
	return c.complementary[id]
}

// Discounts returns the bundle discount table ordered by count
func (c *Catalog) Discounts() []models.DiscountTier {
	return c.discounts
}

// DiscountRate returns the bundle discount for a selection of the given size.
// Sizes below two get no discount; sizes above the largest key clamp to it.
// When the table has gaps, the closest lower key applies.
func (c *Catalog) DiscountRate(count int) float64 {
	if count < 2 || len(c.discounts) == 0 {
		return 0
	}

	maxCount := c.discounts[len(c.discounts)-1].Count
	if count > maxCount {
		count = maxCount
	}

	// Largest key <= count
	i := sort.Search(len(c.discounts), func(i int) bool {
		return c.discounts[i].Count > count
	})
	if i == 0 {
		return 0
	}
	return c.discounts[i-1].Rate
}

// ROIMultiplier returns the revenue multiplier for a service category
func (c *Catalog) ROIMultiplier(category string) int {
	if m, ok := c.multipliers[category]; ok {
		return m
	}
	return c.defaultMult
}

// Questions returns the quiz questions in flow order
func (c *Catalog) Questions() []models.Question {
	return c.questions
}

// Question returns a quiz question by ID
func (c *Catalog) Question(id string) (*models.Question, bool) {
	i, ok := c.questionIndex[id]
	if !ok {
		return nil, false
	}
	return &c.questions[i], true
}
