package features

import (
	"math"
	"strings"
	"time"

	"OptEdge/internal/domain/models"
	applogger "OptEdge/pkg/logger"
)

// Session bounds in minutes past midnight, America/New_York.
const (
	sessionOpenMinute  = 9*60 + 30 // 09:30
	sessionCloseMinute = 16 * 60   // 16:00
)

// Builder turns a market snapshot and an order into the named feature map a
// model consumes. It is stateless apart from configuration and safe for
// concurrent use.
type Builder struct {
	symbols []string // index universe contributing price features
	loc     *time.Location
	log     *applogger.Logger
}

// NewBuilder constructs a builder over the configured symbol universe.
// Session-clock features are computed in the exchange timezone; when the
// zoneinfo database lacks it we fall back to UTC and log once.
func NewBuilder(symbols []string, log *applogger.Logger) *Builder {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Warn("exchange timezone unavailable, session features use UTC", applogger.Error(err))
		loc = time.UTC
	}
	return &Builder{symbols: symbols, loc: loc, log: log}
}

// Build produces the full named feature map for one order against one
// snapshot. Every feature the builder knows is always present; values the
// data cannot support are zero. Callers project the map through Align.
func (b *Builder) Build(snap *models.Snapshot, order models.Order, now time.Time) Map {
	m := make(Map, 64)
	b.temporalFeatures(m, now)
	for _, sym := range b.symbols {
		b.priceFeatures(m, sym, snap)
	}
	b.vixFeatures(m, snap)
	b.tradeFeatures(m, order, snap)
	return m
}

// temporalFeatures encodes the session clock. Cyclic encodings keep 15:59
// adjacent to 16:00 for the model; raw values stay alongside because some
// trained trees split on them directly.
func (b *Builder) temporalFeatures(m Map, now time.Time) {
	t := now.In(b.loc)
	hour := t.Hour()
	minute := t.Minute()
	dow := int(t.Weekday())

	m.Set("hour", float64(hour))
	m.Set("minute", float64(minute))
	m.Set("day_of_week", float64(dow))

	m.Set("hour_sin", math.Sin(2*math.Pi*float64(hour)/24))
	m.Set("hour_cos", math.Cos(2*math.Pi*float64(hour)/24))
	m.Set("minute_sin", math.Sin(2*math.Pi*float64(minute)/60))
	m.Set("minute_cos", math.Cos(2*math.Pi*float64(minute)/60))
	m.Set("dow_sin", math.Sin(2*math.Pi*float64(dow)/7))
	m.Set("dow_cos", math.Cos(2*math.Pi*float64(dow)/7))

	minuteOfDay := hour*60 + minute
	weekday := dow >= 1 && dow <= 5
	open := weekday && minuteOfDay >= sessionOpenMinute && minuteOfDay < sessionCloseMinute

	m.SetBool("is_market_open", open)
	m.SetBool("is_first_hour", open && minuteOfDay < sessionOpenMinute+60)
	m.SetBool("is_last_hour", open && minuteOfDay >= sessionCloseMinute-60)

	minutesToClose := 0.0
	if open {
		minutesToClose = float64(sessionCloseMinute - minuteOfDay)
	}
	m.Set("minutes_to_close", minutesToClose)
}

// priceFeatures contributes the per-symbol block. Missing or short history
// degrades individual features to zero rather than poisoning the vector.
func (b *Builder) priceFeatures(m Map, symbol string, snap *models.Snapshot) {
	p := strings.ToLower(symbol) + "_"
	symbol = strings.ToUpper(symbol)

	bars := snap.BarsFor(symbol)
	closes := Closes(bars)

	last := 0.0
	if q, ok := snap.QuoteFor(symbol); ok && q.Last > 0 {
		last = q.Last
	} else if len(closes) > 0 {
		last = closes[len(closes)-1]
	}

	m.Set(p+"close", last)
	m.Set(p+"sma_20", LastSMA(closes, 20))
	m.Set(p+"momentum_5", Momentum(closes, 5))
	m.Set(p+"volatility_20", RollingVolatility(ComputeLogReturns(closes), 20))
	m.Set(p+"rsi_14", LastRSI(closes, 14))
	m.Set(p+"price_position", PricePosition(bars, 20))
}

// vixFeatures encodes the volatility regime. Thresholds at 15/20/25 match
// the buckets the training pipeline used.
func (b *Builder) vixFeatures(m Map, snap *models.Snapshot) {
	level := snap.Vix.Last
	m.Set("vix_level", level)
	m.Set("vix_change", snap.Vix.Change)
	m.Set("vix_sma_10", LastSMA(Closes(snap.VixBars), 10))

	m.SetBool("vix_regime_low", level > 0 && level < 15)
	m.SetBool("vix_regime_medium", level >= 15 && level < 20)
	m.SetBool("vix_regime_high", level >= 20 && level < 25)
	m.SetBool("vix_regime_extreme", level >= 25)
}

// tradeFeatures encodes the order itself: structure, pricing and the
// optional delta-sheet bias context.
func (b *Builder) tradeFeatures(m Map, order models.Order, snap *models.Snapshot) {
	for _, s := range models.Strategies() {
		m.SetBool("strategy_"+string(s), order.Strategy == s)
	}

	spot := 0.0
	if q, ok := snap.QuoteFor(strings.ToUpper(order.Symbol)); ok {
		spot = q.Last
	}

	premiumNorm := 0.0
	if spot > 0 {
		premiumNorm = order.Premium / spot
	}
	m.Set("premium_normalized", premiumNorm)

	rr := 0.0
	if order.Risk > 0 {
		rr = order.Reward / order.Risk
	}
	m.Set("risk_reward_ratio", rr)

	diff := 0.0
	diffPct := 0.0
	if order.PredictedPrice > 0 && spot > 0 {
		diff = order.PredictedPrice - spot
		diffPct = diff / spot
	}
	m.Set("predicted_price_diff", diff)
	m.Set("predicted_price_diff_pct", diffPct)

	m.Set("short_term_bias", order.ShortTermBias)
	m.Set("long_term_bias", order.LongTermBias)
	m.Set("bias_convergence", order.BiasConvergence)
	m.SetBool("directional_agreement", order.DirectionalAgreement)
}
