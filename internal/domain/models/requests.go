package models

// Requests for the trading HTTP endpoints. Defined in domain for consistency and reuse.

type DecisionRequest struct {
	Asset string `query:"asset" json:"asset" validate:"required"`
}

type AnalysisRequest struct {
	Asset string `query:"asset" json:"asset" validate:"required"`
	Count int    `query:"count" json:"count" default:"200" validate:"gte=1,lte=1000"`
}

type PatternStatRequest struct {
	Name string `query:"name" json:"name" validate:"required"`
}

type ContextStatRequest struct {
	Label string `query:"label" json:"label" validate:"required"`
}
