package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/internal/service/marketdata"
	applogger "OptEdge/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct{}

func (nopMetrics) RecordPrediction(string, string, float64) {}
func (nopMetrics) RecordFetch(string, string, string)       {}
func (nopMetrics) RecordCacheEvent(string, string)          {}
func (nopMetrics) RecordDemotion(string)                    {}
func (nopMetrics) RecordPredictionError()                   {}

type marketPayload struct {
	Data struct {
		Quote models.Quote `json:"quote"`
		Bars  []models.Bar `json:"bars"`
	} `json:"data"`
}

func newMarketHandler(t *testing.T) *PredictEchoHandler {
	t.Helper()
	resolver := marketdata.NewResolver(
		[]marketdata.Source{marketdata.NewMockSource()},
		marketdata.ResolverConfig{QuoteTTL: time.Minute, BarsTTL: time.Minute, VixTTL: time.Minute},
		applogger.Nop(), nopMetrics{},
	)
	return NewPredictEchoHandler(applogger.Nop(), nil, resolver, RateLimit{}, domrepo.Interval5m)
}

func getMarket(t *testing.T, h *PredictEchoHandler, target string) marketPayload {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("symbol")
	c.SetParamValues("SPX")

	require.NoError(t, h.Market(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload marketPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestMarketReturnsBarHistory(t *testing.T) {
	h := newMarketHandler(t)

	payload := getMarket(t, h, "/api/market/SPX?bars=20")

	assert.Equal(t, "SPX", payload.Data.Quote.Symbol)
	assert.Len(t, payload.Data.Bars, 20)
}

func TestMarketFiltersBarsByTimeWindow(t *testing.T) {
	h := newMarketHandler(t)

	from := time.Now().Add(-30 * time.Minute).UTC()
	payload := getMarket(t, h, "/api/market/SPX?bars=20&from="+from.Format(time.RFC3339))

	bars := payload.Data.Bars
	require.NotEmpty(t, bars)
	assert.Less(t, len(bars), 20, "window must drop older bars")

	aligned := from.Truncate(5 * time.Minute)
	for i, b := range bars {
		assert.False(t, b.Time.Before(aligned), "bar %d before window start", i)
	}
}
