package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
	"OptEdge/internal/service/cache"
	"OptEdge/internal/service/marketdata"
	"OptEdge/internal/services/features"
	mlmodels "OptEdge/internal/services/models"
	applogger "OptEdge/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct{}

func (nopMetrics) RecordPrediction(string, string, float64) {}
func (nopMetrics) RecordFetch(string, string, string)       {}
func (nopMetrics) RecordCacheEvent(string, string)          {}
func (nopMetrics) RecordDemotion(string)                    {}
func (nopMetrics) RecordPredictionError()                   {}

// countingSource wraps the deterministic mock and counts upstream calls.
type countingSource struct {
	mock       *marketdata.MockSource
	delay      time.Duration
	quoteCalls atomic.Int32
	barsCalls  atomic.Int32
}

func (s *countingSource) Name() string                    { return marketdata.SourceCompanion }
func (s *countingSource) Connect(_ context.Context) error { return nil }
func (s *countingSource) IsConnected() bool               { return true }
func (s *countingSource) Close() error                    { return nil }

func (s *countingSource) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	s.quoteCalls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.mock.Quote(ctx, symbol)
}

func (s *countingSource) Bars(ctx context.Context, symbol string, count int, iv repository.Interval) ([]models.Bar, error) {
	s.barsCalls.Add(1)
	return s.mock.Bars(ctx, symbol, count, iv)
}

func (s *countingSource) Vix(ctx context.Context) (models.VixSnapshot, error) {
	return s.mock.Vix(ctx)
}

type fixedBooster struct {
	nFeatures int
	proba     float64
	calls     atomic.Int32
}

func (b *fixedBooster) NumFeatures() int { return b.nFeatures }
func (b *fixedBooster) PredictProba(_ []float64) (float64, error) {
	b.calls.Add(1)
	return b.proba, nil
}

func testSchema() *features.Schema {
	return &features.Schema{
		NFeatures:    4,
		FeatureNames: []string{"spx_close", "vix_level", "strategy_butterfly", "premium_normalized"},
	}
}

func newTestPredictor(t *testing.T, proba float64, modelNames ...string) (*Predictor, *countingSource, *fixedBooster) {
	t.Helper()
	return newTestPredictorTTL(t, proba, time.Minute, modelNames...)
}

func newTestPredictorTTL(t *testing.T, proba float64, ttl time.Duration, modelNames ...string) (*Predictor, *countingSource, *fixedBooster) {
	t.Helper()
	if len(modelNames) == 0 {
		modelNames = []string{"default"}
	}

	src := &countingSource{mock: marketdata.NewMockSource()}
	resolver := marketdata.NewResolver(
		[]marketdata.Source{src},
		marketdata.ResolverConfig{QuoteTTL: ttl, BarsTTL: ttl, VixTTL: ttl},
		applogger.Nop(), nopMetrics{},
	)

	booster := &fixedBooster{nFeatures: 4, proba: proba}
	registry := make(map[string]*mlmodels.Entry, len(modelNames))
	for _, name := range modelNames {
		registry[name] = &mlmodels.Entry{Name: name, Booster: booster}
	}
	cascade := mlmodels.NewCascade(registry, "default", applogger.Nop())

	p := NewPredictor(
		resolver,
		features.NewBuilder([]string{"SPX"}, applogger.Nop()),
		testSchema(),
		cascade,
		cache.NewPredictionCache(time.Minute, 100, nopMetrics{}),
		nil, nil,
		nopMetrics{},
		applogger.Nop(),
		PredictorConfig{
			MinWinProbability: 0.55,
			SkipOnError:       true,
			Symbols:           []string{"SPX"},
			BarCount:          25,
			BarInterval:       repository.Interval5m,
		},
	)
	return p, src, booster
}

func butterflyOrder(symbol string) models.Order {
	return models.Order{
		Symbol:   symbol,
		Strategy: models.StrategyButterfly,
		Strikes:  []float64{5800, 5850, 5900},
		Premium:  5.0,
		Expiry:   "20250620",
	}
}

func TestPredictTakeAboveThreshold(t *testing.T) {
	p, _, _ := newTestPredictor(t, 0.7)

	res, err := p.Predict(context.Background(), butterflyOrder("SPX"))
	require.NoError(t, err)

	assert.Equal(t, "SPX", res.Symbol)
	assert.Equal(t, 0.7, res.WinProbability)
	assert.Equal(t, models.PredictionWin, res.Prediction)
	assert.Equal(t, models.RecommendationTake, res.Recommendation)
	assert.InDelta(t, 0.4, res.Confidence, 1e-12)
	assert.InDelta(t, 0.3, res.RiskScore, 1e-12)
	assert.Equal(t, 4, res.FeaturesUsed)
	assert.Equal(t, "default", res.ModelVersion)
}

func TestPredictSkipBelowThreshold(t *testing.T) {
	p, _, _ := newTestPredictor(t, 0.52)

	res, err := p.Predict(context.Background(), butterflyOrder("SPX"))
	require.NoError(t, err)

	// Below the decision threshold: the label and the recommendation agree.
	assert.Equal(t, models.PredictionLoss, res.Prediction)
	assert.Equal(t, models.RecommendationSkip, res.Recommendation)
}

func TestPredictProbabilityBounds(t *testing.T) {
	for _, proba := range []float64{0.0, 0.31, 0.5, 0.99, 1.0} {
		p, _, _ := newTestPredictor(t, proba)
		res, err := p.Predict(context.Background(), butterflyOrder("SPX"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.WinProbability, 0.0)
		assert.LessOrEqual(t, res.WinProbability, 1.0)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}
}

func TestPredictMemoizesByFingerprint(t *testing.T) {
	p, src, booster := newTestPredictor(t, 0.66)

	_, err := p.Predict(context.Background(), butterflyOrder("SPX"))
	require.NoError(t, err)
	quoteCalls := src.quoteCalls.Load()
	require.Equal(t, int32(1), booster.calls.Load())

	// Same structure at a different size shares the decision.
	resized := butterflyOrder("SPX")
	resized.Premium = 9.5
	_, err = p.Predict(context.Background(), resized)
	require.NoError(t, err)

	assert.Equal(t, quoteCalls, src.quoteCalls.Load(), "cached decision must not touch market data")
	assert.Equal(t, int32(1), booster.calls.Load(), "cached decision must not rerun the model")
}

func TestPredictBatchSharesOneEpisode(t *testing.T) {
	p, src, _ := newTestPredictor(t, 0.6)

	orders := []models.Order{
		butterflyOrder("SPX"),
		butterflyOrder("QQQ"),
		{Symbol: "QQQ", Strategy: models.StrategyVertical, Strikes: []float64{500, 505}},
	}
	entries, err := p.PredictBatch(context.Background(), orders, true)
	require.NoError(t, err)

	require.Len(t, entries, 3)
	for i, e := range entries {
		require.Empty(t, e.Error, "entry %d", i)
		require.NotNil(t, e.Result, "entry %d", i)
	}
	// One episode: one quote fetch per distinct symbol (SPX, QQQ), not per order.
	assert.Equal(t, int32(2), src.quoteCalls.Load())
}

func TestPredictBatchResolvesSymbolsInParallel(t *testing.T) {
	p, src, _ := newTestPredictor(t, 0.6)
	src.delay = 40 * time.Millisecond

	orders := []models.Order{butterflyOrder("SPX"), butterflyOrder("QQQ")}

	start := time.Now()
	entries, err := p.PredictBatch(context.Background(), orders, true)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Two symbols fetched serially would cost >=80ms per call kind.
	assert.Less(t, elapsed, 70*time.Millisecond, "symbol fetches must overlap")
}

func TestPredictBatchReportsPerOrderFailures(t *testing.T) {
	p, _, _ := newTestPredictor(t, 0.6, "spx")

	orders := []models.Order{
		butterflyOrder("SPX"),
		{Symbol: "QQQ", Strategy: models.StrategySonar},
	}
	entries, err := p.PredictBatch(context.Background(), orders, true)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.NotNil(t, entries[0].Result)
	assert.Nil(t, entries[1].Result)
	assert.Equal(t, CodeNoModel, entries[1].Code)
	assert.NotEmpty(t, entries[1].Error)
}

func TestPredictBatchBudgetExpiryReportsPerOrderFailures(t *testing.T) {
	p, src, _ := newTestPredictor(t, 0.6)
	src.delay = 40 * time.Millisecond
	p.cfg.BatchBudget = 50 * time.Millisecond

	// Distinct symbols so every order pays its own fetch.
	orders := []models.Order{
		butterflyOrder("SPX"),
		butterflyOrder("QQQ"),
		butterflyOrder("RUT"),
		butterflyOrder("IWM"),
		butterflyOrder("NDX"),
	}
	entries, err := p.PredictBatch(context.Background(), orders, false)

	// The budget never fails the batch itself.
	require.NoError(t, err)
	require.Len(t, entries, len(orders))

	assert.NotNil(t, entries[0].Result, "the first order fits the budget")

	last := entries[len(entries)-1]
	require.Nil(t, last.Result)
	assert.Equal(t, CodeBudgetExceeded, last.Code)
	assert.NotEmpty(t, last.Error)
}

func TestPredictBatchFullyCachedSkipsMarketData(t *testing.T) {
	// Zero-ish TTLs so any market data episode must hit the upstream.
	p, src, _ := newTestPredictorTTL(t, 0.6, time.Nanosecond)

	orders := []models.Order{butterflyOrder("SPX"), butterflyOrder("QQQ")}

	_, err := p.PredictBatch(context.Background(), orders, true)
	require.NoError(t, err)
	fetched := src.quoteCalls.Load()
	require.Positive(t, fetched)

	// Every fingerprint is now memoized: the second batch must answer
	// without resolving market data at all.
	entries, err := p.PredictBatch(context.Background(), orders, true)
	require.NoError(t, err)
	for i, e := range entries {
		require.NotNil(t, e.Result, "entry %d", i)
	}
	assert.Equal(t, fetched, src.quoteCalls.Load(), "fully cached batch must not fetch")
}

func TestPredictBatchPropagatesWhenSkipOnErrorDisabled(t *testing.T) {
	p, _, _ := newTestPredictor(t, 0.6, "spx")
	p.cfg.SkipOnError = false

	orders := []models.Order{
		{Symbol: "QQQ", Strategy: models.StrategySonar},
		butterflyOrder("SPX"),
	}
	_, err := p.PredictBatch(context.Background(), orders, true)
	assert.ErrorIs(t, err, mlmodels.ErrNoModelAvailable)
}

func TestPredictBatchUnsharedStillAnswersEveryOrder(t *testing.T) {
	p, _, _ := newTestPredictor(t, 0.6)

	orders := []models.Order{butterflyOrder("SPX"), butterflyOrder("QQQ")}
	entries, err := p.PredictBatch(context.Background(), orders, false)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	for i, e := range entries {
		assert.NotNil(t, e.Result, "entry %d", i)
	}
}
