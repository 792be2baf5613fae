package models

import "fmt"

// PricingTier selects which bound of a service's price range is charged
type PricingTier string

const (
	TierLow  PricingTier = "low"  // price_min
	TierMid  PricingTier = "mid"  // mean of price_min and price_max
	TierHigh PricingTier = "high" // price_max
)

// DefaultTier is applied to new sessions and to quote requests that omit a tier
const DefaultTier = TierMid

// Valid reports whether t is one of the known tiers
func (t PricingTier) Valid() bool {
	return t == TierLow || t == TierMid || t == TierHigh
}

// ParseTier converts a raw token into a PricingTier. An empty token yields DefaultTier.
func ParseTier(raw string) (PricingTier, error) {
	if raw == "" {
		return DefaultTier, nil
	}
	t := PricingTier(raw)
	if !t.Valid() {
		return "", fmt.Errorf("unknown pricing tier %q", raw)
	}
	return t, nil
}

// Service is a single coaching engagement offered on the site
type Service struct {
	ID           string   `yaml:"id" json:"id"`
	Title        string   `yaml:"title" json:"title"`
	Description  string   `yaml:"description" json:"description,omitempty"`
	PriceMin     int      `yaml:"price_min" json:"price_min"`
	PriceMax     int      `yaml:"price_max" json:"price_max"`
	Duration     int      `yaml:"duration" json:"duration"` // days
	Category     string   `yaml:"category" json:"category"`
	Complexity   int      `yaml:"complexity" json:"complexity"`
	ValueDrivers []string `yaml:"value_drivers" json:"value_drivers"`
}

// UnitPrice returns the price charged for the service at the given tier
func (s *Service) UnitPrice(tier PricingTier) float64 {
	switch tier {
	case TierLow:
		return float64(s.PriceMin)
	case TierHigh:
		return float64(s.PriceMax)
	default:
		return float64(s.PriceMin+s.PriceMax) / 2
	}
}

// DiscountTier is one row of the bundle discount table
type DiscountTier struct {
	Count int     `json:"count"`
	Rate  float64 `json:"rate"`
}
