package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
	applogger "OptEdge/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// ResolverConfig tunes caching, demotion and per-source retry behavior.
type ResolverConfig struct {
	QuoteTTL         time.Duration
	BarsTTL          time.Duration
	VixTTL           time.Duration
	DemotionCooldown time.Duration
	// Attempts is the per-source total attempt bound for transient errors.
	Attempts map[string]int
	// Timeouts is the per-source fetch deadline.
	Timeouts map[string]time.Duration
}

const (
	defaultAttempts     = 2
	defaultFetchTimeout = 2 * time.Second
)

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

func (e cacheEntry[T]) fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.fetchedAt) < ttl
}

// Resolver returns market data with a time-bounded cache per (symbol, kind),
// a sticky primary-to-fallback source chain and request coalescing.
// Resolution never fails: when every configured source is down it degrades
// to the deterministic mock.
type Resolver struct {
	sources []Source // fallback order; the last entry is always the mock
	cfg     ResolverConfig

	mu      sync.RWMutex
	quotes  map[string]cacheEntry[models.Quote]
	bars    map[string]cacheEntry[[]models.Bar]
	vix     *cacheEntry[models.VixSnapshot]
	demoted map[string]time.Time // "source|symbol" -> probe-again-after

	sf      singleflight.Group
	log     *applogger.Logger
	metrics repository.Metrics
}

// NewResolver builds a resolver over sources in fallback order. A mock
// source is appended when the chain does not already end in one.
func NewResolver(sources []Source, cfg ResolverConfig, log *applogger.Logger, metrics repository.Metrics) *Resolver {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 30 * time.Second
	}
	if cfg.BarsTTL <= 0 {
		cfg.BarsTTL = 5 * time.Minute
	}
	if cfg.VixTTL <= 0 {
		cfg.VixTTL = 30 * time.Second
	}
	if cfg.DemotionCooldown <= 0 {
		cfg.DemotionCooldown = 5 * time.Minute
	}

	if len(sources) == 0 || sources[len(sources)-1].Name() != SourceMock {
		sources = append(sources, NewMockSource())
	}

	return &Resolver{
		sources: sources,
		cfg:     cfg,
		quotes:  make(map[string]cacheEntry[models.Quote]),
		bars:    make(map[string]cacheEntry[[]models.Bar]),
		demoted: make(map[string]time.Time),
		log:     log,
		metrics: metrics,
	}
}

// Open connects every source. Connection failures are logged, not fatal:
// a source that is down now may heal and will be probed per fetch.
func (r *Resolver) Open(ctx context.Context) {
	for _, src := range r.sources {
		if err := src.Connect(ctx); err != nil {
			r.log.Warn("source connect failed",
				applogger.String("source", src.Name()),
				applogger.Error(err),
			)
		}
	}
}

// Close releases every source.
func (r *Resolver) Close() error {
	var firstErr error
	for _, src := range r.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetQuote returns the current quote for symbol, from cache when fresh.
// Concurrent callers for the same symbol share one upstream fetch.
func (r *Resolver) GetQuote(ctx context.Context, symbol string) models.Quote {
	if q, ok := r.cachedQuote(symbol, time.Now()); ok {
		r.metrics.RecordCacheEvent("quote", "hit")
		return q
	}
	r.metrics.RecordCacheEvent("quote", "miss")

	v, _, _ := r.sf.Do("quote:"+symbol, func() (interface{}, error) {
		if q, ok := r.cachedQuote(symbol, time.Now()); ok {
			return q, nil
		}
		q := r.fetch(ctx, symbol, "quote", func(fctx context.Context, src Source) (interface{}, error) {
			return src.Quote(fctx, symbol)
		}).(models.Quote)

		r.mu.Lock()
		r.quotes[symbol] = cacheEntry[models.Quote]{value: q, fetchedAt: time.Now()}
		r.mu.Unlock()
		return q, nil
	})
	return v.(models.Quote)
}

// GetBars returns count bars of history for symbol, oldest first.
func (r *Resolver) GetBars(ctx context.Context, symbol string, count int, interval repository.Interval) []models.Bar {
	key := fmt.Sprintf("bars:%s:%d:%s", symbol, count, interval)

	if bars, ok := r.cachedBars(key, time.Now()); ok {
		r.metrics.RecordCacheEvent("bars", "hit")
		return bars
	}
	r.metrics.RecordCacheEvent("bars", "miss")

	v, _, _ := r.sf.Do(key, func() (interface{}, error) {
		if bars, ok := r.cachedBars(key, time.Now()); ok {
			return bars, nil
		}
		bars := r.fetch(ctx, symbol, "bars", func(fctx context.Context, src Source) (interface{}, error) {
			return src.Bars(fctx, symbol, count, interval)
		}).([]models.Bar)

		r.mu.Lock()
		r.bars[key] = cacheEntry[[]models.Bar]{value: bars, fetchedAt: time.Now()}
		r.mu.Unlock()
		return bars, nil
	})
	return v.([]models.Bar)
}

// GetVix returns the volatility index snapshot.
func (r *Resolver) GetVix(ctx context.Context) models.VixSnapshot {
	r.mu.RLock()
	if r.vix != nil && r.vix.fresh(r.cfg.VixTTL, time.Now()) {
		v := r.vix.value
		r.mu.RUnlock()
		r.metrics.RecordCacheEvent("vix", "hit")
		return v
	}
	r.mu.RUnlock()
	r.metrics.RecordCacheEvent("vix", "miss")

	v, _, _ := r.sf.Do("vix", func() (interface{}, error) {
		r.mu.RLock()
		if r.vix != nil && r.vix.fresh(r.cfg.VixTTL, time.Now()) {
			cached := r.vix.value
			r.mu.RUnlock()
			return cached, nil
		}
		r.mu.RUnlock()

		snap := r.fetch(ctx, VixSymbol, "vix", func(fctx context.Context, src Source) (interface{}, error) {
			return src.Vix(fctx)
		}).(models.VixSnapshot)

		r.mu.Lock()
		r.vix = &cacheEntry[models.VixSnapshot]{value: snap, fetchedAt: time.Now()}
		r.mu.Unlock()
		return snap, nil
	})
	return v.(models.VixSnapshot)
}

// Snapshot resolves everything one prediction episode needs: quote and bar
// history for each symbol plus the volatility index. Per-symbol fetches run
// in parallel; the method returns only after every fetch has completed.
func (r *Resolver) Snapshot(ctx context.Context, symbols []string, barCount int, interval repository.Interval) *models.Snapshot {
	snap := &models.Snapshot{
		Quotes: make(map[string]models.Quote, len(symbols)),
		Bars:   make(map[string][]models.Bar, len(symbols)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			q := r.GetQuote(ctx, sym)
			bars := r.GetBars(ctx, sym, barCount, interval)

			mu.Lock()
			snap.Quotes[sym] = q
			snap.Bars[sym] = bars
			mu.Unlock()
		}(symbol)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		vix := r.GetVix(ctx)
		vixBars := r.GetBars(ctx, VixSymbol, barCount, interval)

		mu.Lock()
		snap.Vix = vix
		snap.VixBars = vixBars
		mu.Unlock()
	}()

	wg.Wait()
	snap.FetchedAt = time.Now()
	return snap
}

// ClearCache drops every cached entry. Diagnostics only.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.quotes = make(map[string]cacheEntry[models.Quote])
	r.bars = make(map[string]cacheEntry[[]models.Bar])
	r.vix = nil
	r.mu.Unlock()
}

func (r *Resolver) cachedQuote(symbol string, now time.Time) (models.Quote, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.quotes[symbol]
	if !ok || !e.fresh(r.cfg.QuoteTTL, now) {
		return models.Quote{}, false
	}
	return e.value, true
}

func (r *Resolver) cachedBars(key string, now time.Time) ([]models.Bar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.bars[key]
	if !ok || !e.fresh(r.cfg.BarsTTL, now) {
		return nil, false
	}
	return e.value, true
}

// fetch walks the fallback chain for one (symbol, kind) request. Transient
// failures retry within the same source up to its attempt bound; terminal
// failures demote the source for this symbol until the cooldown elapses.
// The mock tail guarantees a value comes back.
func (r *Resolver) fetch(ctx context.Context, symbol, kind string, op func(context.Context, Source) (interface{}, error)) interface{} {
	for _, src := range r.sources {
		if src.Name() == SourceMock {
			break
		}
		if r.isDemoted(src.Name(), symbol) {
			continue
		}

		attempts := r.cfg.Attempts[src.Name()]
		if attempts < 1 {
			attempts = defaultAttempts
		}

		var lastErr error
		for i := 0; i < attempts; i++ {
			v, err := r.attempt(ctx, src, op)
			if err == nil {
				r.metrics.RecordFetch(src.Name(), kind, "ok")
				r.clearDemotion(src.Name(), symbol)
				return v
			}
			lastErr = err
			r.metrics.RecordFetch(src.Name(), kind, "error")

			if classify(err) == failureTerminal {
				r.demote(src.Name(), symbol)
				break
			}
		}

		r.log.Warn("source failed, falling back",
			applogger.String("source", src.Name()),
			applogger.String("symbol", symbol),
			applogger.String("kind", kind),
			applogger.Error(lastErr),
		)
	}

	// AllSourcesExhausted: degrade, never raise.
	mock := r.sources[len(r.sources)-1]
	v, _ := op(ctx, mock)
	r.metrics.RecordFetch(SourceMock, kind, "degraded")
	return v
}

func (r *Resolver) attempt(ctx context.Context, src Source, op func(context.Context, Source) (interface{}, error)) (interface{}, error) {
	timeout := r.cfg.Timeouts[src.Name()]
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !src.IsConnected() {
		if err := src.Connect(fctx); err != nil {
			return nil, err
		}
	}
	return op(fctx, src)
}

func demotionKey(source, symbol string) string { return source + "|" + symbol }

func (r *Resolver) isDemoted(source, symbol string) bool {
	r.mu.RLock()
	until, ok := r.demoted[demotionKey(source, symbol)]
	r.mu.RUnlock()
	return ok && time.Now().Before(until)
}

func (r *Resolver) demote(source, symbol string) {
	r.mu.Lock()
	r.demoted[demotionKey(source, symbol)] = time.Now().Add(r.cfg.DemotionCooldown)
	r.mu.Unlock()

	r.metrics.RecordDemotion(source)
	r.log.Warn("source demoted for symbol",
		applogger.String("source", source),
		applogger.String("symbol", symbol),
		applogger.Duration("cooldown_ms", r.cfg.DemotionCooldown),
	)
}

func (r *Resolver) clearDemotion(source, symbol string) {
	r.mu.Lock()
	delete(r.demoted, demotionKey(source, symbol))
	r.mu.Unlock()
}
