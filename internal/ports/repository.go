package ports

import (
	"context"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
)

// RepositoryStats summarizes the stored market data.
type RepositoryStats struct {
	TotalBars     int64            // Total number of stored bars
	Symbols       int              // Number of distinct symbols
	BarsPerSymbol map[string]int64 // Stored bar count per symbol
	OldestBar     time.Time        // Timestamp of the oldest stored bar (zero when empty)
	NewestBar     time.Time        // Timestamp of the newest stored bar (zero when empty)
}

// BarRepository defines the interface for persisting and retrieving OHLCV bars.
type BarRepository interface {
	// StoreBars upserts the given bars under timeframe and returns the
	// number written. Bars sharing a (symbol, timeframe, timestamp) key
	// with an existing row replace it rather than duplicating it.
	StoreBars(ctx context.Context, timeframe domain.Timeframe, bars []*domain.Bar) (int, error)
	// FindBars retrieves the stored bars for symbol covering [start, end]
	// at the given timeframe, ordered by timestamp ascending.
	// Returns an empty slice when nothing is stored for the range.
	FindBars(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error)
	// LatestTimestamp reports the newest stored bar timestamp for symbol
	// at the given timeframe. Returns the zero time when none exist.
	LatestTimestamp(ctx context.Context, symbol string, timeframe domain.Timeframe) (time.Time, error)
	// DeleteOlderThan removes all bars with timestamps before cutoff and
	// returns the number deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// Stats summarizes the stored data.
	Stats(ctx context.Context) (*RepositoryStats, error)
	// Ping checks the database connection.
	Ping(ctx context.Context) error
	// Close releases the underlying database handle.
	Close() error
}
