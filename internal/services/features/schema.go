package features

import (
	"encoding/json"
	"fmt"
	"os"
)

// Schema is the ordered feature-name list a trained model was fit against.
// It is the binding contract between training and serving: any change to
// order or count requires retraining.
type Schema struct {
	NFeatures    int      `json:"n_features"`
	FeatureNames []string `json:"feature_names"`
}

// LoadSchema reads and validates a feature schema file.
func LoadSchema(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate schema %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks internal consistency.
func (s *Schema) Validate() error {
	if s.NFeatures <= 0 {
		return fmt.Errorf("n_features must be positive, got %d", s.NFeatures)
	}
	if len(s.FeatureNames) != s.NFeatures {
		return fmt.Errorf("n_features=%d but %d feature names listed", s.NFeatures, len(s.FeatureNames))
	}
	seen := make(map[string]struct{}, len(s.FeatureNames))
	for _, name := range s.FeatureNames {
		if name == "" {
			return fmt.Errorf("empty feature name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate feature name '%s'", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
