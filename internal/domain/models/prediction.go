package models

import "time"

// Prediction labels derived from win probability at the decision threshold.
const (
	PredictionWin  = "win"
	PredictionLoss = "loss"
)

// Recommendations surfaced to the caller.
const (
	RecommendationTake = "take"
	RecommendationSkip = "skip"
)

// PredictionResult is the outcome of one resolved prediction. Created once,
// never mutated, cached by value.
type PredictionResult struct {
	Symbol         string    `json:"symbol"`
	Strategy       Strategy  `json:"strategy"`
	WinProbability float64   `json:"win_probability"`
	Prediction     string    `json:"prediction"`
	Confidence     float64   `json:"confidence"`
	Recommendation string    `json:"recommendation"`
	RiskScore      float64   `json:"risk_score"`
	FeaturesUsed   int       `json:"features_used"`
	ModelVersion   string    `json:"model_version"`
	DataSource     string    `json:"data_source"`
	LatencyMs      int64     `json:"latency_ms"`
	Timestamp      time.Time `json:"timestamp"`
}
