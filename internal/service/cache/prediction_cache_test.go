package cache

import (
	"fmt"
	"testing"
	"time"

	"OptEdge/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct{}

func (nopMetrics) RecordPrediction(string, string, float64) {}
func (nopMetrics) RecordFetch(string, string, string)       {}
func (nopMetrics) RecordCacheEvent(string, string)          {}
func (nopMetrics) RecordDemotion(string)                    {}
func (nopMetrics) RecordPredictionError()                   {}

func result(p float64) models.PredictionResult {
	return models.PredictionResult{Symbol: "SPX", WinProbability: p, Timestamp: time.Now()}
}

func TestPredictionCacheRoundTrip(t *testing.T) {
	c := NewPredictionCache(time.Minute, 10, nopMetrics{})

	_, ok := c.Get("fp")
	assert.False(t, ok)

	c.Set("fp", result(0.62))
	got, ok := c.Get("fp")
	require.True(t, ok)
	assert.Equal(t, 0.62, got.WinProbability)
}

func TestPredictionCacheTTLExpiry(t *testing.T) {
	c := NewPredictionCache(15*time.Millisecond, 10, nopMetrics{})

	c.Set("fp", result(0.62))
	_, ok := c.Get("fp")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)
	_, ok = c.Get("fp")
	assert.False(t, ok, "entry must expire after the TTL")
}

func TestPredictionCacheEvictsOldestFirst(t *testing.T) {
	c := NewPredictionCache(time.Minute, 3, nopMetrics{})

	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("fp-%d", i), result(float64(i)))
		time.Sleep(2 * time.Millisecond) // distinct storedAt
	}

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("fp-0")
	assert.False(t, ok, "oldest entry is evicted first")
	_, ok = c.Get("fp-3")
	assert.True(t, ok)
}

func TestOrderFingerprintCanonicalization(t *testing.T) {
	a := models.Order{
		Symbol: "spx", Strategy: models.StrategyButterfly,
		Strikes: []float64{5850, 5800, 5900}, Expiry: "20250620", Right: "C",
		Premium: 5.0, Risk: 100, Reward: 150,
	}
	b := models.Order{
		Symbol: "SPX", Strategy: models.StrategyButterfly,
		Strikes: []float64{5800, 5850, 5900}, Expiry: "20250620", Right: "C",
		Premium: 9.0, Risk: 50, Reward: 75,
	}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(),
		"size fields and strike order must not change the fingerprint")

	c := b
	c.Strategy = models.StrategyVertical
	assert.NotEqual(t, b.Fingerprint(), c.Fingerprint())

	d := b
	d.Expiry = "20250621"
	assert.NotEqual(t, b.Fingerprint(), d.Fingerprint())
}
