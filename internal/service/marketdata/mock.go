package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
)

// Baseline prices for the symbols this system usually trades. Anything else
// gets a price derived from a hash of the symbol so repeated calls agree.
var mockBaselines = map[string]float64{
	"SPX": 5800.0,
	"SPY": 580.0,
	"QQQ": 500.0,
	"RUT": 2250.0,
	"IWM": 225.0,
	"NDX": 20500.0,
	"VIX": 15.0,
}

const mockVixLevel = 15.0

// MockSource is the deterministic last-resort source. It never fails and
// never touches the network, so resolution can always degrade to it.
type MockSource struct{}

func NewMockSource() *MockSource { return &MockSource{} }

func (m *MockSource) Name() string                    { return SourceMock }
func (m *MockSource) Connect(_ context.Context) error { return nil }
func (m *MockSource) IsConnected() bool               { return true }
func (m *MockSource) Close() error                    { return nil }

func (m *MockSource) Quote(_ context.Context, symbol string) (models.Quote, error) {
	base := baselineFor(symbol)
	spread := base * 0.0002
	return models.Quote{
		Symbol:    symbol,
		Last:      base,
		Bid:       base - spread,
		Ask:       base + spread,
		BidSize:   10,
		AskSize:   10,
		Source:    SourceMock,
		Timestamp: time.Now(),
	}, nil
}

func (m *MockSource) Bars(_ context.Context, symbol string, count int, interval repository.Interval) ([]models.Bar, error) {
	if count <= 0 {
		return nil, nil
	}
	base := baselineFor(symbol)
	step := interval.Duration()
	end := time.Now().Truncate(step)

	bars := make([]models.Bar, 0, count)
	for i := count - 1; i >= 0; i-- {
		// Gentle deterministic oscillation around the baseline.
		phase := float64(i) * 0.35
		c := base * (1 + 0.002*math.Sin(phase))
		o := base * (1 + 0.002*math.Sin(phase+0.2))
		h := math.Max(o, c) * 1.0005
		l := math.Min(o, c) * 0.9995
		bars = append(bars, models.Bar{
			Time:   end.Add(-time.Duration(i) * step),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: 1000,
		})
	}
	return bars, nil
}

func (m *MockSource) Vix(_ context.Context) (models.VixSnapshot, error) {
	return models.VixSnapshot{
		Last:      mockVixLevel,
		Change:    0,
		ChangePct: 0,
		High:      mockVixLevel,
		Low:       mockVixLevel,
		Source:    SourceMock,
		Timestamp: time.Now(),
	}, nil
}

func baselineFor(symbol string) float64 {
	if base, ok := mockBaselines[symbol]; ok {
		return base
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 50 + float64(h.Sum32()%4500)/10 // 50.0 .. 499.9
}
