package ports

import (
	"context"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
)

// MarketDataSource defines the interface for fetching OHLCV bars from a
// market data provider. This abstraction allows decoupling the core data
// pipeline from specific provider implementations.
type MarketDataSource interface {
	// Name identifies the source in logs, health reports and bar tags
	// (e.g., "POLYGON", "MOCK").
	Name() string

	// Fetch retrieves the bars for symbol covering [start, end] at the
	// given timeframe, ordered by timestamp ascending. Providers map
	// their transport failures onto the standard errors in this package.
	Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error)

	// Ping checks the connectivity to the provider API.
	Ping(ctx context.Context) error
}
