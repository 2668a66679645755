package domain

// Recommendation is the model's verdict on a proposed market.
type Recommendation string

const (
	RecommendationStrongYes Recommendation = "STRONG_YES"
	RecommendationYes       Recommendation = "YES"
	RecommendationMaybe     Recommendation = "MAYBE"
	RecommendationNo        Recommendation = "NO"
	RecommendationStrongNo  Recommendation = "STRONG_NO"
)

// Valid reports whether r is one of the declared values.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationStrongYes, RecommendationYes, RecommendationMaybe,
		RecommendationNo, RecommendationStrongNo:
		return true
	}
	return false
}

// LiquidityEstimate is the expected trader activity on a market.
type LiquidityEstimate string

const (
	LiquidityHigh   LiquidityEstimate = "high"
	LiquidityMedium LiquidityEstimate = "medium"
	LiquidityLow    LiquidityEstimate = "low"
)

// Valid reports whether l is one of the declared values.
func (l LiquidityEstimate) Valid() bool {
	switch l {
	case LiquidityHigh, LiquidityMedium, LiquidityLow:
		return true
	}
	return false
}

// Proposal is a market idea submitted for AI evaluation.
type Proposal struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	ResolutionDate string   `json:"resolution_date,omitempty"`
	MarketType     string   `json:"market_type,omitempty"`
	ReferenceLinks []string `json:"reference_links,omitempty"`
}

// Scenario is one possible outcome with its estimated probability.
type Scenario struct {
	Outcome     string  `json:"outcome"`
	Probability float64 `json:"probability"`
}

// EvaluationResult is the structured model output. It is created per
// submission and never persisted.
type EvaluationResult struct {
	Recommendation         Recommendation    `json:"recommendation"`
	Confidence             float64           `json:"confidence"`
	EstimatedReturnPct     *float64          `json:"estimated_return_pct,omitempty"`
	Rationale              string            `json:"rationale"`
	MainDrivers            []string          `json:"main_drivers,omitempty"`
	SuggestedBetSizeUSD    *float64          `json:"suggested_bet_size_usd,omitempty"`
	Archetype              string            `json:"archetype,omitempty"`
	RiskFactors            []string          `json:"risk_factors,omitempty"`
	TimeDynamics           string            `json:"time_dynamics,omitempty"`
	ScenarioAnalysis       []Scenario        `json:"scenario_analysis,omitempty"`
	LiquidityEstimate      LiquidityEstimate `json:"liquidity_estimate,omitempty"`
	SuggestedMarketWording string            `json:"suggested_market_wording,omitempty"`
}
