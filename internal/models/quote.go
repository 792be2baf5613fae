package models

// QuoteLine is the priced contribution of one selected service
type QuoteLine struct {
	ServiceID string  `json:"service_id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	UnitPrice float64 `json:"unit_price"`
	Duration  int     `json:"duration"`
}

// Quote is the pricing calculator result for a selection at a tier
type Quote struct {
	Tier                 PricingTier    `json:"tier"`
	Lines                []QuoteLine    `json:"services"`
	Subtotal             float64        `json:"subtotal"`
	DiscountRate         float64        `json:"discount_rate"`
	DiscountAmount       float64        `json:"discount_amount"`
	Total                float64        `json:"total"`
	TotalDuration        int            `json:"total_duration"` // days, longest engagement
	AvgMonthlyInvestment float64        `json:"avg_monthly_investment"`
	AddOns               []string       `json:"recommended_add_ons"`
	ROI                  *ROIProjection `json:"roi,omitempty"`
}

// ROIProjection estimates the return on a quote's total investment
type ROIProjection struct {
	AverageMultiplier float64 `json:"average_multiplier"`
	ProjectedRevenue  float64 `json:"projected_revenue"`
	NetROI            float64 `json:"net_roi"`
	ROIPercentage     float64 `json:"roi_percentage"`
	PaybackMonths     int     `json:"payback_months"`
}

// QuoteRequest is the body of a stateless quote call
type QuoteRequest struct {
	Services   []string `json:"services"`
	Tier       string   `json:"tier,omitempty"`
	IncludeROI bool     `json:"include_roi,omitempty"`
}

// RecommendRequest is the body of a stateless recommendation call
type RecommendRequest struct {
	Answers AnswerSet `json:"answers"`
}
