package repository

import (
	"context"

	"OptEdge/internal/domain/models"
)

// Journal persists resolved predictions for offline analysis and retraining.
type Journal interface {
	Init(ctx context.Context) error // ensure tables exist
	Record(ctx context.Context, res *models.PredictionResult) error
	Close() error
}

// Publisher emits prediction events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, res *models.PredictionResult) error
	Close() error
}

// Metrics records operational counters and latencies.
type Metrics interface {
	RecordPrediction(strategy, outcome string, seconds float64)
	RecordFetch(source, kind, result string)
	RecordCacheEvent(cache, event string)
	RecordDemotion(source string)
	RecordPredictionError()
}
