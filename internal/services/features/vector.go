package features

// Map is a named feature set. Features stay named until the final
// projection so that a reordered or partial map can never silently reach a
// model: order is imposed exactly once, by the schema.
type Map map[string]float64

// Set records one feature value.
func (m Map) Set(name string, value float64) {
	m[name] = value
}

// SetBool records a one-hot flag.
func (m Map) SetBool(name string, v bool) {
	if v {
		m[name] = 1.0
	} else {
		m[name] = 0.0
	}
}

// Align projects the map onto the schema's order. Names the map lacks are
// filled with 0.0; names the schema lacks are dropped. The returned vector
// always has length schema.NFeatures.
func (m Map) Align(schema *Schema) []float64 {
	vec := make([]float64, len(schema.FeatureNames))
	for i, name := range schema.FeatureNames {
		if v, ok := m[name]; ok {
			vec[i] = v
		}
	}
	return vec
}
