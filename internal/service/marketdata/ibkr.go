package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
	xhttp "OptEdge/pkg/http"
)

// IBKR Client Portal snapshot field codes.
const (
	ibkrFieldLast    = "31"
	ibkrFieldBid     = "84"
	ibkrFieldAskSize = "85"
	ibkrFieldAsk     = "86"
	ibkrFieldBidSize = "88"
)

// IBKRSource talks to a locally running IBKR Client Portal gateway. The wire
// protocol is treated as opaque: only the snapshot/history/secdef endpoints
// this system needs are mapped.
type IBKRSource struct {
	baseURL   string
	client    *xhttp.Client
	connected atomic.Bool

	mu     sync.Mutex
	conids map[string]int64
}

func NewIBKRSource(baseURL string, timeout time.Duration) *IBKRSource {
	return &IBKRSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		conids:  make(map[string]int64),
	}
}

func (s *IBKRSource) Name() string { return SourceIBKR }

func (s *IBKRSource) Connect(ctx context.Context) error {
	var status struct {
		Authenticated bool `json:"authenticated"`
	}
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/v1/api/iserver/auth/status",
	}, &status)
	if err != nil {
		return fmt.Errorf("ibkr connect: %w", err)
	}
	if !status.Authenticated {
		return fmt.Errorf("ibkr gateway not authenticated: %w", ErrSourceUnavailable)
	}
	s.connected.Store(true)
	return nil
}

func (s *IBKRSource) IsConnected() bool { return s.connected.Load() }

func (s *IBKRSource) Close() error {
	s.connected.Store(false)
	return nil
}

func (s *IBKRSource) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	conid, err := s.resolveConid(ctx, symbol)
	if err != nil {
		return models.Quote{}, err
	}

	var rows []map[string]interface{}
	err = s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/v1/api/iserver/marketdata/snapshot",
		QueryParams: map[string][]string{
			"conids": {strconv.FormatInt(conid, 10)},
			"fields": {strings.Join([]string{ibkrFieldLast, ibkrFieldBid, ibkrFieldAsk, ibkrFieldAskSize, ibkrFieldBidSize}, ",")},
		},
	}, &rows)
	if err != nil {
		return models.Quote{}, fmt.Errorf("ibkr snapshot %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return models.Quote{}, fmt.Errorf("ibkr snapshot %s: empty response: %w", symbol, ErrSourceUnavailable)
	}

	row := rows[0]
	if msg, ok := row["error"].(string); ok && msg != "" {
		if strings.Contains(strings.ToLower(msg), "entitle") || strings.Contains(strings.ToLower(msg), "subscri") {
			return models.Quote{}, fmt.Errorf("ibkr snapshot %s: %s: %w", symbol, msg, ErrSubscriptionMissing)
		}
		return models.Quote{}, fmt.Errorf("ibkr snapshot %s: %s: %w", symbol, msg, ErrSourceUnavailable)
	}

	last := ibkrNumber(row[ibkrFieldLast])
	if last == 0 {
		return models.Quote{}, fmt.Errorf("ibkr snapshot %s: no last price: %w", symbol, ErrSubscriptionMissing)
	}

	return models.Quote{
		Symbol:    symbol,
		Last:      last,
		Bid:       ibkrNumber(row[ibkrFieldBid]),
		Ask:       ibkrNumber(row[ibkrFieldAsk]),
		BidSize:   int64(ibkrNumber(row[ibkrFieldBidSize])),
		AskSize:   int64(ibkrNumber(row[ibkrFieldAskSize])),
		Source:    SourceIBKR,
		Timestamp: time.Now(),
	}, nil
}

type ibkrHistory struct {
	Data []struct {
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
		T int64   `json:"t"` // unix ms
	} `json:"data"`
}

func (s *IBKRSource) Bars(ctx context.Context, symbol string, count int, interval repository.Interval) ([]models.Bar, error) {
	conid, err := s.resolveConid(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var hist ibkrHistory
	err = s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/v1/api/iserver/marketdata/history",
		QueryParams: map[string][]string{
			"conid":  {strconv.FormatInt(conid, 10)},
			"period": {ibkrPeriodFor(count, interval)},
			"bar":    {ibkrBarFor(interval)},
		},
	}, &hist)
	if err != nil {
		return nil, fmt.Errorf("ibkr history %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(hist.Data))
	for _, d := range hist.Data {
		bars = append(bars, models.Bar{
			Time:   time.UnixMilli(d.T),
			Open:   d.O,
			High:   d.H,
			Low:    d.L,
			Close:  d.C,
			Volume: d.V,
		})
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

func (s *IBKRSource) Vix(ctx context.Context) (models.VixSnapshot, error) {
	q, err := s.Quote(ctx, VixSymbol)
	if err != nil {
		return models.VixSnapshot{}, err
	}

	// Change fields need the prior close; one daily bar pair is enough.
	var change, changePct, high, low float64
	if bars, err := s.Bars(ctx, VixSymbol, 2, repository.Interval1h); err == nil && len(bars) >= 2 {
		prev := bars[len(bars)-2].Close
		if prev > 0 {
			change = q.Last - prev
			changePct = change / prev * 100
		}
		high = bars[len(bars)-1].High
		low = bars[len(bars)-1].Low
	}

	return models.VixSnapshot{
		Last:      q.Last,
		Change:    change,
		ChangePct: changePct,
		High:      high,
		Low:       low,
		Source:    SourceIBKR,
		Timestamp: q.Timestamp,
	}, nil
}

func (s *IBKRSource) resolveConid(ctx context.Context, symbol string) (int64, error) {
	s.mu.Lock()
	if conid, ok := s.conids[symbol]; ok {
		s.mu.Unlock()
		return conid, nil
	}
	s.mu.Unlock()

	var results []struct {
		Conid int64 `json:"conid"`
	}
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         s.baseURL + "/v1/api/iserver/secdef/search",
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &results)
	if err != nil {
		return 0, fmt.Errorf("ibkr secdef %s: %w", symbol, err)
	}
	if len(results) == 0 || results[0].Conid == 0 {
		return 0, fmt.Errorf("ibkr secdef %s: no contract: %w", symbol, ErrSubscriptionMissing)
	}

	s.mu.Lock()
	s.conids[symbol] = results[0].Conid
	s.mu.Unlock()
	return results[0].Conid, nil
}

// ibkrNumber tolerates the gateway's habit of returning numerics as strings.
func ibkrNumber(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(strings.TrimPrefix(n, "C"), 64)
		return f
	default:
		return 0
	}
}

func ibkrBarFor(interval repository.Interval) string {
	switch interval {
	case repository.Interval1m:
		return "1min"
	case repository.Interval15m:
		return "15min"
	case repository.Interval1h:
		return "1h"
	default:
		return "5min"
	}
}

func ibkrPeriodFor(count int, interval repository.Interval) string {
	span := time.Duration(count) * interval.Duration()
	days := int(span.Hours()/24) + 1
	return strconv.Itoa(days) + "d"
}
