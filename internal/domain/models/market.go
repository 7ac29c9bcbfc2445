package models

import "time"

// Quote is a point-in-time price snapshot for one symbol. Immutable once
// produced by a source; ownership passes to the resolver cache entry.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	BidSize   int64     `json:"bid_size"`
	AskSize   int64     `json:"ask_size"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Bar is one OHLCV bar. Sources return bars ordered oldest to newest.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// VixSnapshot captures the volatility index at fetch time.
type VixSnapshot struct {
	Last      float64   `json:"last"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot groups the market data resolved for one prediction episode.
// Feature building never starts until the snapshot is complete.
type Snapshot struct {
	Quotes    map[string]Quote
	Bars      map[string][]Bar
	Vix       VixSnapshot
	VixBars   []Bar
	FetchedAt time.Time
}

// QuoteFor returns the quote for symbol, if resolved.
func (s *Snapshot) QuoteFor(symbol string) (Quote, bool) {
	q, ok := s.Quotes[symbol]
	return q, ok
}

// BarsFor returns the bar history for symbol, if resolved.
func (s *Snapshot) BarsFor(symbol string) []Bar {
	return s.Bars[symbol]
}
