package models

// Requests for prediction HTTP endpoints. Defined in domain for consistency and reuse.

type PredictRequest struct {
	Symbol         string    `json:"symbol" validate:"required"`
	Strategy       string    `json:"strategy" validate:"required,oneof=butterfly iron_condor vertical sonar"`
	Premium        float64   `json:"premium" validate:"gte=0"`
	PredictedPrice float64   `json:"predicted_price" validate:"gte=0"`
	Strikes        []float64 `json:"strikes,omitempty"`
	Right          string    `json:"right,omitempty" validate:"omitempty,oneof=C P"`
	Expiry         string    `json:"expiry,omitempty" validate:"omitempty,len=8,numeric"`
	Risk           float64   `json:"risk,omitempty" validate:"gte=0"`
	Reward         float64   `json:"reward,omitempty" validate:"gte=0"`

	ShortTermBias        float64 `json:"short_term_bias,omitempty"`
	LongTermBias         float64 `json:"long_term_bias,omitempty"`
	BiasConvergence      float64 `json:"bias_convergence,omitempty"`
	DirectionalAgreement bool    `json:"directional_agreement,omitempty"`
}

// Order converts the request into a domain order.
func (r *PredictRequest) Order() Order {
	return Order{
		Symbol:               r.Symbol,
		Strategy:             Strategy(r.Strategy),
		Strikes:              r.Strikes,
		Right:                r.Right,
		Premium:              r.Premium,
		Risk:                 r.Risk,
		Reward:               r.Reward,
		PredictedPrice:       r.PredictedPrice,
		Expiry:               r.Expiry,
		ShortTermBias:        r.ShortTermBias,
		LongTermBias:         r.LongTermBias,
		BiasConvergence:      r.BiasConvergence,
		DirectionalAgreement: r.DirectionalAgreement,
	}
}

type BatchPredictRequest struct {
	Requests        []PredictRequest `json:"requests" validate:"required,min=1,max=100,dive"`
	ShareMarketData *bool            `json:"share_market_data,omitempty"`
}

// Share reports whether the batch should share one market data episode
// across orders (the default).
func (r *BatchPredictRequest) Share() bool {
	return r.ShareMarketData == nil || *r.ShareMarketData
}

// PredictionEntry is one batch result: either a result or a typed error.
type PredictionEntry struct {
	Result *PredictionResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Code   string            `json:"code,omitempty"`
}

type BatchPredictResponse struct {
	Predictions []PredictionEntry `json:"predictions"`
}
