package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// Scaler reproduces the training pipeline's StandardScaler: x' = (x-mean)/scale.
// Exported from training as JSON with parallel mean and scale arrays.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadScaler reads a scaler parameter file.
func LoadScaler(path string) (*Scaler, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}
	var s Scaler
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scaler %s: %w", path, err)
	}
	if len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("scaler %s: mean has %d entries, scale has %d", path, len(s.Mean), len(s.Scale))
	}
	return &s, nil
}

// Transform standardizes vec in place and returns it. Vectors wider than the
// scaler pass extra positions through untouched; a zero scale entry leaves
// that position centered only.
func (s *Scaler) Transform(vec []float64) []float64 {
	n := len(s.Mean)
	if len(vec) < n {
		n = len(vec)
	}
	for i := 0; i < n; i++ {
		vec[i] -= s.Mean[i]
		if s.Scale[i] != 0 {
			vec[i] /= s.Scale[i]
		}
	}
	return vec
}
