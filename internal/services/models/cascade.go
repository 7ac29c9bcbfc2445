package models

import (
	"errors"
	"fmt"
	"strings"

	domain "OptEdge/internal/domain/models"
	applogger "OptEdge/pkg/logger"
)

var (
	// ErrNoModelAvailable means no tier of the cascade matched and no
	// default model is loaded.
	ErrNoModelAvailable = errors.New("no model available")
	// ErrFeatureMismatch means the feature vector is narrower than the
	// model expects. Predicting anyway would silently misalign features.
	ErrFeatureMismatch = errors.New("feature vector narrower than model")
)

// Cascade resolves the most specific loaded model for an order and runs
// inference. Lookup tiers, most to least specific:
//
//	{symbol}_{strategy}  e.g. spx_butterfly
//	{symbol}             e.g. spx
//	{strategy}           e.g. butterfly
//	default              configured fallback name
type Cascade struct {
	registry    map[string]*Entry
	defaultName string
	log         *applogger.Logger
}

// NewCascade wraps a loaded registry.
func NewCascade(registry map[string]*Entry, defaultName string, log *applogger.Logger) *Cascade {
	return &Cascade{
		registry:    registry,
		defaultName: strings.ToLower(defaultName),
		log:         log,
	}
}

// Resolve picks the model entry for the order, or ErrNoModelAvailable.
func (c *Cascade) Resolve(symbol string, strategy domain.Strategy) (*Entry, error) {
	sym := strings.ToLower(symbol)
	for _, key := range []string{
		sym + "_" + string(strategy),
		sym,
		string(strategy),
		c.defaultName,
	} {
		if key == "" {
			continue
		}
		if e, ok := c.registry[key]; ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("symbol=%s strategy=%s: %w", symbol, strategy, ErrNoModelAvailable)
}

// Predict resolves the model for the order and returns P(win) along with
// the name of the model that produced it. The vector must be at least as
// wide as the model; surplus trailing features are truncated with a warning
// since a retrained model may legitimately use a prefix of a newer schema.
func (c *Cascade) Predict(symbol string, strategy domain.Strategy, vec []float64) (float64, string, error) {
	entry, err := c.Resolve(symbol, strategy)
	if err != nil {
		return 0, "", err
	}

	want := entry.Booster.NumFeatures()
	if len(vec) < want {
		return 0, entry.Name, fmt.Errorf("model %s wants %d features, got %d: %w",
			entry.Name, want, len(vec), ErrFeatureMismatch)
	}
	if len(vec) > want {
		c.log.Warn("truncating feature vector to model width",
			applogger.String("model", entry.Name),
			applogger.Int("vector", len(vec)),
			applogger.Int("model_features", want),
		)
		vec = vec[:want]
	}

	if entry.Scaler != nil {
		scaled := make([]float64, len(vec))
		copy(scaled, vec)
		vec = entry.Scaler.Transform(scaled)
	}

	p, err := entry.Booster.PredictProba(vec)
	if err != nil {
		return 0, entry.Name, fmt.Errorf("model %s: %w", entry.Name, err)
	}
	return p, entry.Name, nil
}

// Names lists loaded model names, for diagnostics.
func (c *Cascade) Names() []string {
	out := make([]string, 0, len(c.registry))
	for name := range c.registry {
		out = append(out, name)
	}
	return out
}
