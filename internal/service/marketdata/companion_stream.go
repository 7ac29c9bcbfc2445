package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"OptEdge/internal/domain/models"

	"github.com/gorilla/websocket"
)

// CompanionStream keeps a live quote feed from the companion app over
// WebSocket so the REST endpoint is only hit when the stream lags.
type CompanionStream struct {
	url          string
	symbols      []string
	pingInterval time.Duration

	conn   *websocket.Conn
	cancel context.CancelFunc

	mu     sync.RWMutex
	latest map[string]models.Quote
}

func NewCompanionStream(url string, symbols []string, pingInterval time.Duration) *CompanionStream {
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	return &CompanionStream{
		url:          url,
		symbols:      symbols,
		pingInterval: pingInterval,
		latest:       make(map[string]models.Quote),
	}
}

// Connect dials the stream, subscribes to the configured symbols and starts
// the read loop. A failed dial leaves the stream unusable; the caller falls
// back to REST.
func (s *CompanionStream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("companion stream connect: %w", err)
	}
	s.conn = conn

	for _, sym := range s.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("companion stream subscribe %s: %w", sym, err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.pingLoop(loopCtx)
	go s.readLoop(loopCtx)
	return nil
}

// Latest returns the most recent streamed quote for symbol.
func (s *CompanionStream) Latest(symbol string) (models.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.latest[symbol]
	return q, ok
}

func (s *CompanionStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

type streamFrame struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidSize   int64   `json:"bid_size"`
	AskSize   int64   `json:"ask_size"`
	Timestamp int64   `json:"timestamp"` // unix ms
}

func (s *CompanionStream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.conn != nil {
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (s *CompanionStream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, b, err := s.conn.ReadMessage()
		if err != nil {
			// Stream is best-effort: stop and let REST take over.
			return
		}

		var f streamFrame
		if err := json.Unmarshal(b, &f); err != nil || f.Type != "quote" {
			continue
		}

		q := models.Quote{
			Symbol:    f.Symbol,
			Last:      f.Last,
			Bid:       f.Bid,
			Ask:       f.Ask,
			BidSize:   f.BidSize,
			AskSize:   f.AskSize,
			Source:    SourceCompanion,
			Timestamp: time.UnixMilli(f.Timestamp),
		}

		s.mu.Lock()
		s.latest[f.Symbol] = q
		s.mu.Unlock()
	}
}
