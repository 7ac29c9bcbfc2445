package features

import (
	"testing"
	"time"

	"OptEdge/internal/domain/models"
	applogger "OptEdge/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(closes []float64, vixLevel float64) *models.Snapshot {
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Time:  time.Now().Add(-time.Duration(len(closes)-i) * 5 * time.Minute),
			Open:  c, High: c * 1.001, Low: c * 0.999, Close: c,
		}
	}
	return &models.Snapshot{
		Quotes: map[string]models.Quote{
			"SPX": {Symbol: "SPX", Last: closes[len(closes)-1], Source: "mock"},
		},
		Bars:      map[string][]models.Bar{"SPX": bars},
		Vix:       models.VixSnapshot{Last: vixLevel, Change: 0.5},
		VixBars:   bars,
		FetchedAt: time.Now(),
	}
}

func linearCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func sessionTime(hour, minute int) time.Time {
	loc, _ := time.LoadLocation("America/New_York")
	// A Wednesday.
	return time.Date(2025, 6, 11, hour, minute, 0, 0, loc)
}

func TestBuildAlignsToSchemaOrder(t *testing.T) {
	schema := &Schema{
		NFeatures:    4,
		FeatureNames: []string{"vix_level", "spx_close", "hour", "strategy_butterfly"},
	}
	require.NoError(t, schema.Validate())

	b := NewBuilder([]string{"SPX"}, applogger.Nop())
	snap := testSnapshot(linearCloses(30, 5800, 1), 18)
	order := models.Order{Symbol: "SPX", Strategy: models.StrategyButterfly}

	vec := b.Build(snap, order, sessionTime(10, 30)).Align(schema)

	require.Len(t, vec, 4)
	assert.Equal(t, 18.0, vec[0])
	assert.Equal(t, 5829.0, vec[1])
	assert.Equal(t, 10.0, vec[2])
	assert.Equal(t, 1.0, vec[3])
}

func TestAlignZeroFillsMissingAndDropsExtras(t *testing.T) {
	schema := &Schema{NFeatures: 3, FeatureNames: []string{"a", "b", "c"}}
	m := Map{"a": 1.5, "c": 2.5, "unknown": 9}

	vec := m.Align(schema)

	assert.Equal(t, []float64{1.5, 0, 2.5}, vec)
}

func TestTemporalFeaturesSessionClock(t *testing.T) {
	b := NewBuilder(nil, applogger.Nop())
	snap := &models.Snapshot{Vix: models.VixSnapshot{}}

	m := b.Build(snap, models.Order{Strategy: models.StrategyVertical}, sessionTime(9, 45))
	assert.Equal(t, 1.0, m["is_market_open"])
	assert.Equal(t, 1.0, m["is_first_hour"])
	assert.Equal(t, 0.0, m["is_last_hour"])
	assert.Equal(t, 375.0, m["minutes_to_close"])

	m = b.Build(snap, models.Order{Strategy: models.StrategyVertical}, sessionTime(15, 30))
	assert.Equal(t, 1.0, m["is_last_hour"])
	assert.Equal(t, 30.0, m["minutes_to_close"])

	m = b.Build(snap, models.Order{Strategy: models.StrategyVertical}, sessionTime(7, 0))
	assert.Equal(t, 0.0, m["is_market_open"])
	assert.Equal(t, 0.0, m["minutes_to_close"])
}

func TestPriceFeaturesInsufficientHistoryYieldsZeros(t *testing.T) {
	b := NewBuilder([]string{"SPX"}, applogger.Nop())
	snap := testSnapshot(linearCloses(3, 5800, 1), 15)

	m := b.Build(snap, models.Order{Symbol: "SPX", Strategy: models.StrategyButterfly}, sessionTime(11, 0))

	assert.Equal(t, 0.0, m["spx_sma_20"])
	assert.Equal(t, 0.0, m["spx_rsi_14"])
	assert.Equal(t, 0.0, m["spx_volatility_20"])
	assert.NotEqual(t, 0.0, m["spx_close"], "close still comes from the quote")
}

func TestVixRegimeOneHots(t *testing.T) {
	b := NewBuilder(nil, applogger.Nop())
	cases := []struct {
		level float64
		want  string
	}{
		{12, "vix_regime_low"},
		{17, "vix_regime_medium"},
		{22, "vix_regime_high"},
		{31, "vix_regime_extreme"},
	}
	regimes := []string{"vix_regime_low", "vix_regime_medium", "vix_regime_high", "vix_regime_extreme"}

	for _, tc := range cases {
		snap := &models.Snapshot{Vix: models.VixSnapshot{Last: tc.level}}
		m := b.Build(snap, models.Order{Strategy: models.StrategySonar}, sessionTime(12, 0))
		for _, r := range regimes {
			if r == tc.want {
				assert.Equal(t, 1.0, m[r], "level %.0f should set %s", tc.level, r)
			} else {
				assert.Equal(t, 0.0, m[r], "level %.0f should not set %s", tc.level, r)
			}
		}
	}
}

func TestTradeFeatures(t *testing.T) {
	b := NewBuilder([]string{"SPX"}, applogger.Nop())
	snap := testSnapshot(linearCloses(30, 5800, 0), 16)

	order := models.Order{
		Symbol:               "SPX",
		Strategy:             models.StrategyIronCondor,
		Premium:              5.80,
		Risk:                 100,
		Reward:               150,
		PredictedPrice:       5858,
		ShortTermBias:        0.3,
		LongTermBias:         -0.1,
		DirectionalAgreement: true,
	}
	m := b.Build(snap, order, sessionTime(13, 0))

	assert.Equal(t, 1.0, m["strategy_iron_condor"])
	assert.Equal(t, 0.0, m["strategy_butterfly"])
	assert.InDelta(t, 5.80/5800.0, m["premium_normalized"], 1e-12)
	assert.InDelta(t, 1.5, m["risk_reward_ratio"], 1e-12)
	assert.InDelta(t, 58.0, m["predicted_price_diff"], 1e-9)
	assert.InDelta(t, 0.01, m["predicted_price_diff_pct"], 1e-9)
	assert.Equal(t, 0.3, m["short_term_bias"])
	assert.Equal(t, 1.0, m["directional_agreement"])
}

func TestIndicatorGuards(t *testing.T) {
	assert.Nil(t, ComputeLogReturns([]float64{5800}))
	assert.Equal(t, 0.0, RollingVolatility([]float64{0.01, 0.02}, 20))
	assert.Equal(t, 0.0, LastSMA([]float64{1, 2}, 20))
	assert.Equal(t, 0.0, LastRSI([]float64{1, 2}, 14))
	assert.Equal(t, 0.0, Momentum([]float64{1, 2}, 5))
	assert.Equal(t, 0.0, PricePosition(nil, 20))
}

func TestSchemaValidate(t *testing.T) {
	bad := []Schema{
		{NFeatures: 0, FeatureNames: nil},
		{NFeatures: 2, FeatureNames: []string{"a"}},
		{NFeatures: 2, FeatureNames: []string{"a", "a"}},
		{NFeatures: 2, FeatureNames: []string{"a", ""}},
	}
	for i := range bad {
		assert.Error(t, bad[i].Validate(), "case %d", i)
	}

	good := Schema{NFeatures: 2, FeatureNames: []string{"a", "b"}}
	assert.NoError(t, good.Validate())
}
