package marketdata

import (
	"context"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
)

// Source names as they appear in configuration and in Quote.Source markers.
const (
	SourceCompanion = "companion"
	SourceIBKR      = "ibkr"
	SourceRedis     = "redis"
	SourceMock      = "mock"
)

// VixSymbol is the pseudo-symbol used for volatility index lookups.
const VixSymbol = "VIX"

// Source is one market data capability. Implementations must be safe for
// concurrent use; every fetch honors the passed context.
type Source interface {
	Name() string
	Connect(ctx context.Context) error
	IsConnected() bool
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	Bars(ctx context.Context, symbol string, count int, interval repository.Interval) ([]models.Bar, error)
	Vix(ctx context.Context) (models.VixSnapshot, error)
	Close() error
}
