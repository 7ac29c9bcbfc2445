package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
	"OptEdge/internal/service/cache"
	"OptEdge/internal/service/marketdata"
	"OptEdge/internal/services/features"
	mlmodels "OptEdge/internal/services/models"
	applogger "OptEdge/pkg/logger"
)

// Error codes surfaced on batch entries.
const (
	CodeNoModel         = "NO_MODEL"
	CodeFeatureMismatch = "FEATURE_MISMATCH"
	CodeBudgetExceeded  = "BUDGET_EXCEEDED"
	CodeInternal        = "INTERNAL"
)

// PredictorConfig carries the decision and batching knobs.
type PredictorConfig struct {
	MinWinProbability float64
	BatchBudget       time.Duration
	SkipOnError       bool
	Symbols           []string // index universe every episode resolves
	BarCount          int
	BarInterval       repository.Interval
}

// Predictor is the end-to-end orchestrator: market data resolution, feature
// building, cascade inference, memoization and side channels (journal,
// events). Safe for concurrent use.
type Predictor struct {
	resolver *marketdata.Resolver
	builder  *features.Builder
	schema   *features.Schema
	cascade  *mlmodels.Cascade
	cache    *cache.PredictionCache

	journal   repository.Journal   // nil when journaling is disabled
	publisher repository.Publisher // nil when events are disabled

	metrics repository.Metrics
	log     *applogger.Logger
	cfg     PredictorConfig
}

func NewPredictor(
	resolver *marketdata.Resolver,
	builder *features.Builder,
	schema *features.Schema,
	cascade *mlmodels.Cascade,
	predCache *cache.PredictionCache,
	journal repository.Journal,
	publisher repository.Publisher,
	metrics repository.Metrics,
	log *applogger.Logger,
	cfg PredictorConfig,
) *Predictor {
	if cfg.MinWinProbability <= 0 {
		cfg.MinWinProbability = 0.55
	}
	if cfg.BatchBudget <= 0 {
		cfg.BatchBudget = 10 * time.Second
	}
	if cfg.BarCount <= 0 {
		cfg.BarCount = 50
	}
	if cfg.BarInterval == "" {
		cfg.BarInterval = repository.DefaultInterval()
	}
	return &Predictor{
		resolver:  resolver,
		builder:   builder,
		schema:    schema,
		cascade:   cascade,
		cache:     predCache,
		journal:   journal,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		cfg:       cfg,
	}
}

// Predict runs one order end to end. Results are memoized by the order
// fingerprint; a fresh cached decision short-circuits the whole pipeline.
func (p *Predictor) Predict(ctx context.Context, order models.Order) (*models.PredictionResult, error) {
	fp := order.Fingerprint()
	if res, ok := p.cache.Get(fp); ok {
		return &res, nil
	}

	start := time.Now()
	snap := p.resolver.Snapshot(ctx, p.episodeSymbols(order.Symbol), p.cfg.BarCount, p.cfg.BarInterval)

	res, err := p.predictFromSnapshot(ctx, order, snap, start)
	if err != nil {
		return nil, err
	}

	p.cache.Set(fp, *res)
	return res, nil
}

// PredictBatch runs a batch under one time budget. With sharing on (the
// default), all distinct symbols are resolved in a single parallel episode
// and every order reuses that snapshot; otherwise each order runs its own
// Predict. Entry i always corresponds to order i. A per-order failure is
// reported in its entry; the returned error is non-nil only when
// skip_on_error is disabled, in which case the first failure aborts the
// batch and propagates.
func (p *Predictor) PredictBatch(ctx context.Context, orders []models.Order, share bool) ([]models.PredictionEntry, error) {
	bctx, cancel := context.WithTimeout(ctx, p.cfg.BatchBudget)
	defer cancel()

	entries := make([]models.PredictionEntry, len(orders))

	if !share {
		for i, order := range orders {
			if bctx.Err() != nil {
				// Budget spent: remaining orders are abandoned, not the batch.
				entries[i] = models.PredictionEntry{Error: "batch budget exceeded", Code: CodeBudgetExceeded}
				continue
			}
			res, err := p.Predict(bctx, order)
			if err != nil && !p.cfg.SkipOnError {
				return nil, err
			}
			entries[i] = p.entryFor(res, err)
		}
		return entries, nil
	}

	// Cached decisions answer up front; the market data episode only runs
	// when at least one order misses.
	fps := make([]string, len(orders))
	pending := make([]int, 0, len(orders))
	for i, order := range orders {
		fps[i] = order.Fingerprint()
		if cached, ok := p.cache.Get(fps[i]); ok {
			c := cached
			entries[i] = models.PredictionEntry{Result: &c}
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return entries, nil
	}

	start := time.Now()
	snap := p.resolver.Snapshot(bctx, p.batchSymbols(orders), p.cfg.BarCount, p.cfg.BarInterval)

	for _, i := range pending {
		if bctx.Err() != nil {
			entries[i] = models.PredictionEntry{Error: "batch budget exceeded", Code: CodeBudgetExceeded}
			continue
		}
		res, err := p.predictFromSnapshot(bctx, orders[i], snap, start)
		if err == nil {
			p.cache.Set(fps[i], *res)
		}
		if err != nil && !p.cfg.SkipOnError {
			return nil, err
		}
		entries[i] = p.entryFor(res, err)
	}
	return entries, nil
}

// predictFromSnapshot runs the compute half of the pipeline against an
// already-resolved snapshot.
func (p *Predictor) predictFromSnapshot(ctx context.Context, order models.Order, snap *models.Snapshot, start time.Time) (*models.PredictionResult, error) {
	vec := p.builder.Build(snap, order, time.Now()).Align(p.schema)

	prob, modelName, err := p.cascade.Predict(order.Symbol, order.Strategy, vec)
	if err != nil {
		p.metrics.RecordPredictionError()
		p.metrics.RecordPrediction(string(order.Strategy), "error", time.Since(start).Seconds())
		return nil, err
	}

	// The decision threshold is configuration, not 0.5: both the label and
	// the recommendation follow min_win_probability.
	label := models.PredictionLoss
	recommendation := models.RecommendationSkip
	if prob >= p.cfg.MinWinProbability {
		label = models.PredictionWin
		recommendation = models.RecommendationTake
	}

	res := &models.PredictionResult{
		Symbol:         strings.ToUpper(order.Symbol),
		Strategy:       order.Strategy,
		WinProbability: prob,
		Prediction:     label,
		Confidence:     (prob - 0.5) * 2,
		Recommendation: recommendation,
		RiskScore:      1 - prob,
		FeaturesUsed:   len(vec),
		ModelVersion:   modelName,
		DataSource:     p.dataSource(snap, order.Symbol),
		LatencyMs:      time.Since(start).Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}
	if res.Confidence < 0 {
		res.Confidence = -res.Confidence
	}

	p.metrics.RecordPrediction(string(order.Strategy), recommendation, time.Since(start).Seconds())
	p.sideChannels(ctx, res)
	return res, nil
}

// sideChannels journals and publishes the result. Failures here never fail
// the prediction; the caller already has a valid answer.
func (p *Predictor) sideChannels(ctx context.Context, res *models.PredictionResult) {
	if p.journal != nil {
		if err := p.journal.Record(ctx, res); err != nil {
			p.log.Warn("journal write failed", applogger.Error(err))
		}
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, res); err != nil {
			p.log.Warn("event publish failed", applogger.Error(err))
		}
	}
}

func (p *Predictor) entryFor(res *models.PredictionResult, err error) models.PredictionEntry {
	if err == nil {
		return models.PredictionEntry{Result: res}
	}
	code := CodeInternal
	switch {
	case errors.Is(err, mlmodels.ErrNoModelAvailable):
		code = CodeNoModel
	case errors.Is(err, mlmodels.ErrFeatureMismatch):
		code = CodeFeatureMismatch
	}
	return models.PredictionEntry{Error: err.Error(), Code: code}
}

// episodeSymbols is the configured universe plus the order's symbol.
func (p *Predictor) episodeSymbols(symbol string) []string {
	return p.unionSymbols([]string{symbol})
}

// batchSymbols is the configured universe plus every distinct order symbol,
// so one episode covers the whole batch.
func (p *Predictor) batchSymbols(orders []models.Order) []string {
	extra := make([]string, 0, len(orders))
	for _, o := range orders {
		extra = append(extra, o.Symbol)
	}
	return p.unionSymbols(extra)
}

func (p *Predictor) unionSymbols(extra []string) []string {
	seen := make(map[string]struct{}, len(p.cfg.Symbols)+len(extra))
	out := make([]string, 0, len(p.cfg.Symbols)+len(extra))
	for _, s := range p.cfg.Symbols {
		s = strings.ToUpper(s)
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range extra {
		s = strings.ToUpper(s)
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func (p *Predictor) dataSource(snap *models.Snapshot, symbol string) string {
	if q, ok := snap.QuoteFor(strings.ToUpper(symbol)); ok && q.Source != "" {
		return q.Source
	}
	if q, ok := snap.QuoteFor(symbol); ok && q.Source != "" {
		return q.Source
	}
	return marketdata.SourceMock
}
