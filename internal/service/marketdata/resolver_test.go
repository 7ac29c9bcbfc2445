package marketdata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
	xhttp "OptEdge/pkg/http"
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

// stubSource is a controllable source for resolver tests.
type stubSource struct {
	name       string
	quoteCalls atomic.Int32
	barsCalls  atomic.Int32
	vixCalls   atomic.Int32
	quoteErr   error
	delay      time.Duration
	last       float64
}

func (s *stubSource) Name() string                    { return s.name }
func (s *stubSource) Connect(_ context.Context) error { return nil }
func (s *stubSource) IsConnected() bool               { return true }
func (s *stubSource) Close() error                    { return nil }

func (s *stubSource) Quote(_ context.Context, symbol string) (models.Quote, error) {
	s.quoteCalls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.quoteErr != nil {
		return models.Quote{}, s.quoteErr
	}
	return models.Quote{Symbol: symbol, Last: s.last, Source: s.name, Timestamp: time.Now()}, nil
}

func (s *stubSource) Bars(_ context.Context, symbol string, count int, _ repository.Interval) ([]models.Bar, error) {
	s.barsCalls.Add(1)
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	bars := make([]models.Bar, count)
	for i := range bars {
		bars[i] = models.Bar{Close: s.last, High: s.last, Low: s.last, Open: s.last}
	}
	return bars, nil
}

func (s *stubSource) Vix(_ context.Context) (models.VixSnapshot, error) {
	s.vixCalls.Add(1)
	if s.quoteErr != nil {
		return models.VixSnapshot{}, s.quoteErr
	}
	return models.VixSnapshot{Last: 17, Source: s.name}, nil
}

func newTestResolver(cfg ResolverConfig, sources ...Source) *Resolver {
	return NewResolver(sources, cfg, applogger.Nop(), nopMetrics{})
}

func TestResolverCachesQuotesWithinTTL(t *testing.T) {
	src := &stubSource{name: SourceCompanion, last: 5800}
	r := newTestResolver(ResolverConfig{QuoteTTL: time.Minute}, src)

	q1 := r.GetQuote(context.Background(), "SPX")
	q2 := r.GetQuote(context.Background(), "SPX")

	assert.Equal(t, 5800.0, q1.Last)
	assert.Equal(t, q1.Last, q2.Last)
	assert.Equal(t, int32(1), src.quoteCalls.Load(), "second call must be served from cache")
}

func TestResolverFallsBackOnTransientFailure(t *testing.T) {
	primary := &stubSource{name: SourceCompanion, quoteErr: ErrTimeout}
	secondary := &stubSource{name: SourceIBKR, last: 5801}
	r := newTestResolver(ResolverConfig{}, primary, secondary)

	q := r.GetQuote(context.Background(), "SPX")

	assert.Equal(t, SourceIBKR, q.Source)
	assert.Equal(t, int32(defaultAttempts), primary.quoteCalls.Load(), "transient errors retry up to the attempt bound")
}

func TestResolverDemotesOnTerminalFailure(t *testing.T) {
	primary := &stubSource{name: SourceIBKR, quoteErr: ErrSubscriptionMissing}
	secondary := &stubSource{name: SourceRedis, last: 5802}
	r := newTestResolver(ResolverConfig{DemotionCooldown: time.Hour}, primary, secondary)

	q := r.GetQuote(context.Background(), "SPX")
	require.Equal(t, SourceRedis, q.Source)
	assert.Equal(t, int32(1), primary.quoteCalls.Load(), "terminal errors must not retry")

	r.ClearCache()
	r.GetQuote(context.Background(), "SPX")
	assert.Equal(t, int32(1), primary.quoteCalls.Load(), "demoted source is skipped until cooldown")
}

func TestResolverDemotionIsPerSymbol(t *testing.T) {
	primary := &stubSource{name: SourceIBKR, quoteErr: ErrSubscriptionMissing}
	secondary := &stubSource{name: SourceRedis, last: 580}
	r := newTestResolver(ResolverConfig{DemotionCooldown: time.Hour}, primary, secondary)

	r.GetQuote(context.Background(), "SPX")
	require.Equal(t, int32(1), primary.quoteCalls.Load())

	// A different symbol still probes the demoted-for-SPX source.
	r.GetQuote(context.Background(), "SPY")
	assert.Equal(t, int32(2), primary.quoteCalls.Load())
}

func TestResolverReprobesAfterCooldown(t *testing.T) {
	primary := &stubSource{name: SourceIBKR, quoteErr: ErrSubscriptionMissing}
	secondary := &stubSource{name: SourceRedis, last: 5803}
	r := newTestResolver(ResolverConfig{DemotionCooldown: 20 * time.Millisecond}, primary, secondary)

	r.GetQuote(context.Background(), "SPX")
	require.Equal(t, int32(1), primary.quoteCalls.Load())

	time.Sleep(30 * time.Millisecond)
	r.ClearCache()
	r.GetQuote(context.Background(), "SPX")
	assert.Equal(t, int32(2), primary.quoteCalls.Load(), "source is probed again after the cooldown")
}

func TestResolverDegradesToMockWhenAllSourcesFail(t *testing.T) {
	failing := &stubSource{name: SourceCompanion, quoteErr: ErrSourceUnavailable}
	r := newTestResolver(ResolverConfig{}, failing)

	q := r.GetQuote(context.Background(), "SPX")
	assert.Equal(t, SourceMock, q.Source)
	assert.Greater(t, q.Last, 0.0)

	bars := r.GetBars(context.Background(), "SPX", 30, repository.Interval5m)
	assert.Len(t, bars, 30)

	vix := r.GetVix(context.Background())
	assert.Equal(t, SourceMock, vix.Source)
}

func TestResolverCoalescesConcurrentFetches(t *testing.T) {
	src := &stubSource{name: SourceCompanion, last: 5804, delay: 30 * time.Millisecond}
	r := newTestResolver(ResolverConfig{QuoteTTL: time.Minute}, src)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.GetQuote(context.Background(), "SPX")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.quoteCalls.Load(), "concurrent callers must share one upstream fetch")
}

func TestSnapshotResolvesEverySymbolAndVix(t *testing.T) {
	r := newTestResolver(ResolverConfig{}, NewMockSource())

	snap := r.Snapshot(context.Background(), []string{"SPX", "SPY"}, 25, repository.Interval5m)

	require.NotNil(t, snap)
	for _, sym := range []string{"SPX", "SPY"} {
		q, ok := snap.QuoteFor(sym)
		require.True(t, ok, "quote for %s", sym)
		assert.Greater(t, q.Last, 0.0)
		assert.Len(t, snap.BarsFor(sym), 25)
	}
	assert.Equal(t, mockVixLevel, snap.Vix.Last)
	assert.Len(t, snap.VixBars, 25)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestMockSourceIsDeterministic(t *testing.T) {
	m := NewMockSource()

	b1, err := m.Bars(context.Background(), "SPX", 10, repository.Interval5m)
	require.NoError(t, err)
	b2, err := m.Bars(context.Background(), "SPX", 10, repository.Interval5m)
	require.NoError(t, err)

	for i := range b1 {
		assert.Equal(t, b1[i].Close, b2[i].Close)
	}

	// Unknown symbols hash to a stable baseline.
	q1, _ := m.Quote(context.Background(), "ZZZT")
	q2, _ := m.Quote(context.Background(), "ZZZT")
	assert.Equal(t, q1.Last, q2.Last)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want failureClass
	}{
		{"subscription missing", ErrSubscriptionMissing, failureTerminal},
		{"timeout", ErrTimeout, failureTransient},
		{"deadline", context.DeadlineExceeded, failureTransient},
		{"http 401", &xhttp.StatusError{StatusCode: 401}, failureTerminal},
		{"http 403", &xhttp.StatusError{StatusCode: 403}, failureTerminal},
		{"http 500", &xhttp.StatusError{StatusCode: 500}, failureTransient},
		{"entitlement in body", fmt.Errorf("error 10168: not entitled to market data"), failureTerminal},
		{"generic", fmt.Errorf("boom"), failureTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.err))
		})
	}
}
