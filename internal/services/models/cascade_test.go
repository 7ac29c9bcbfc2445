package models

import (
	"testing"

	domain "OptEdge/internal/domain/models"
	applogger "OptEdge/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBooster struct {
	nFeatures int
	proba     float64
	gotVec    []float64
}

func (b *stubBooster) NumFeatures() int { return b.nFeatures }
func (b *stubBooster) PredictProba(vec []float64) (float64, error) {
	b.gotVec = vec
	return b.proba, nil
}

func cascadeWith(names ...string) (*Cascade, map[string]*stubBooster) {
	registry := make(map[string]*Entry, len(names))
	boosters := make(map[string]*stubBooster, len(names))
	for i, name := range names {
		b := &stubBooster{nFeatures: 4, proba: 0.1 * float64(i+1)}
		boosters[name] = b
		registry[name] = &Entry{Name: name, Booster: b}
	}
	return NewCascade(registry, "default", applogger.Nop()), boosters
}

func TestCascadeTierPrecedence(t *testing.T) {
	c, _ := cascadeWith("spx_butterfly", "spx", "butterfly", "default")

	e, err := c.Resolve("SPX", domain.StrategyButterfly)
	require.NoError(t, err)
	assert.Equal(t, "spx_butterfly", e.Name)

	e, err = c.Resolve("SPX", domain.StrategyVertical)
	require.NoError(t, err)
	assert.Equal(t, "spx", e.Name)

	e, err = c.Resolve("QQQ", domain.StrategyButterfly)
	require.NoError(t, err)
	assert.Equal(t, "butterfly", e.Name)

	e, err = c.Resolve("QQQ", domain.StrategySonar)
	require.NoError(t, err)
	assert.Equal(t, "default", e.Name)
}

func TestCascadeNoModelAvailable(t *testing.T) {
	c, _ := cascadeWith("spx")

	_, err := c.Resolve("QQQ", domain.StrategySonar)
	assert.ErrorIs(t, err, ErrNoModelAvailable)
}

func TestCascadePredictTruncatesWiderVector(t *testing.T) {
	c, boosters := cascadeWith("default")

	p, name, err := c.Predict("SPX", domain.StrategyVertical, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, "default", name)
	assert.Equal(t, 0.1, p)
	assert.Equal(t, []float64{1, 2, 3, 4}, boosters["default"].gotVec)
}

func TestCascadePredictRejectsNarrowVector(t *testing.T) {
	c, _ := cascadeWith("default")

	_, _, err := c.Predict("SPX", domain.StrategyVertical, []float64{1, 2})
	assert.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestCascadePredictAppliesScaler(t *testing.T) {
	b := &stubBooster{nFeatures: 2, proba: 0.7}
	registry := map[string]*Entry{
		"default": {
			Name:    "default",
			Booster: b,
			Scaler:  &Scaler{Mean: []float64{1, 2}, Scale: []float64{2, 4}},
		},
	}
	c := NewCascade(registry, "default", applogger.Nop())

	_, _, err := c.Predict("SPX", domain.StrategyVertical, []float64{3, 10})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, b.gotVec)
}

func TestScalerTransformGuards(t *testing.T) {
	s := &Scaler{Mean: []float64{1, 1}, Scale: []float64{0, 2}}

	out := s.Transform([]float64{5, 5, 9})
	assert.Equal(t, 4.0, out[0], "zero scale leaves the value centered only")
	assert.Equal(t, 2.0, out[1])
	assert.Equal(t, 9.0, out[2], "positions beyond the scaler pass through")
}
