package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
	xhttp "OptEdge/pkg/http"
)

// streamFreshness bounds how old a streamed quote may be before the REST
// endpoint is consulted instead.
const streamFreshness = 10 * time.Second

// CompanionSource fetches market data from the companion app's REST API,
// optionally fronted by a WebSocket quote stream.
type CompanionSource struct {
	baseURL   string
	client    *xhttp.Client
	stream    *CompanionStream
	connected atomic.Bool
}

type CompanionOption func(*CompanionSource)

// WithQuoteStream attaches a live quote stream consulted before REST.
func WithQuoteStream(stream *CompanionStream) CompanionOption {
	return func(s *CompanionSource) { s.stream = stream }
}

func NewCompanionSource(baseURL string, timeout time.Duration, opts ...CompanionOption) *CompanionSource {
	s := &CompanionSource{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CompanionSource) Name() string { return SourceCompanion }

func (s *CompanionSource) Connect(ctx context.Context) error {
	if err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/api/health",
	}, nil); err != nil {
		return fmt.Errorf("companion connect: %w", errors.Join(ErrSourceUnavailable, err))
	}
	s.connected.Store(true)

	if s.stream != nil {
		if err := s.stream.Connect(ctx); err != nil {
			// The stream is an optimization; REST still works without it.
			s.stream = nil
		}
	}
	return nil
}

func (s *CompanionSource) IsConnected() bool { return s.connected.Load() }

func (s *CompanionSource) Close() error {
	s.connected.Store(false)
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

type companionQuote struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidSize   int64   `json:"bid_size"`
	AskSize   int64   `json:"ask_size"`
	Timestamp int64   `json:"timestamp"` // unix ms
	Error     string  `json:"error,omitempty"`
}

func (s *CompanionSource) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if s.stream != nil {
		if q, ok := s.stream.Latest(symbol); ok && time.Since(q.Timestamp) < streamFreshness {
			return q, nil
		}
	}

	var cq companionQuote
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf("%s/api/quote/%s", s.baseURL, symbol),
	}, &cq)
	if err != nil {
		return models.Quote{}, fmt.Errorf("companion quote %s: %w", symbol, err)
	}
	if cq.Error != "" {
		return models.Quote{}, fmt.Errorf("companion quote %s: %s: %w", symbol, cq.Error, ErrSubscriptionMissing)
	}

	return models.Quote{
		Symbol:    symbol,
		Last:      cq.Last,
		Bid:       cq.Bid,
		Ask:       cq.Ask,
		BidSize:   cq.BidSize,
		AskSize:   cq.AskSize,
		Source:    SourceCompanion,
		Timestamp: time.UnixMilli(cq.Timestamp),
	}, nil
}

type companionBar struct {
	Time   int64   `json:"time"` // unix s
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (s *CompanionSource) Bars(ctx context.Context, symbol string, count int, interval repository.Interval) ([]models.Bar, error) {
	var raw []companionBar
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf("%s/api/bars/%s", s.baseURL, symbol),
		QueryParams: map[string][]string{
			"count":    {strconv.Itoa(count)},
			"interval": {string(interval)},
		},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("companion bars %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, models.Bar{
			Time:   time.Unix(b.Time, 0),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return bars, nil
}

type companionVix struct {
	Last      float64 `json:"last"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Timestamp int64   `json:"timestamp"`
}

func (s *CompanionSource) Vix(ctx context.Context) (models.VixSnapshot, error) {
	var cv companionVix
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/api/vix",
	}, &cv)
	if err != nil {
		return models.VixSnapshot{}, fmt.Errorf("companion vix: %w", err)
	}

	return models.VixSnapshot{
		Last:      cv.Last,
		Change:    cv.Change,
		ChangePct: cv.ChangePct,
		High:      cv.High,
		Low:       cv.Low,
		Source:    SourceCompanion,
		Timestamp: time.UnixMilli(cv.Timestamp),
	}, nil
}
