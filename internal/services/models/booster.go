package models

import (
	"fmt"

	"github.com/dmitryikh/leaves"
)

// Booster is the minimal surface the cascade needs from a trained
// gradient-boosted model. The leaves adapter implements it for real model
// files; tests stub it.
type Booster interface {
	// NumFeatures is the width of the vector the model was trained on.
	NumFeatures() int
	// PredictProba returns P(win) for one aligned feature vector.
	PredictProba(vec []float64) (float64, error)
}

// leavesBooster wraps a LightGBM model loaded by the leaves engine.
type leavesBooster struct {
	ensemble *leaves.Ensemble
}

// LoadBooster reads a LightGBM text-format model file.
func LoadBooster(path string) (Booster, error) {
	ensemble, err := leaves.LGEnsembleFromFile(path, true)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return &leavesBooster{ensemble: ensemble}, nil
}

func (b *leavesBooster) NumFeatures() int { return b.ensemble.NFeatures() }

func (b *leavesBooster) PredictProba(vec []float64) (float64, error) {
	// loadTransformation=true makes PredictSingle return the sigmoid output
	// for binary models, already a probability.
	p := b.ensemble.PredictSingle(vec, 0)
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("model output %f outside [0,1]", p)
	}
	return p, nil
}
