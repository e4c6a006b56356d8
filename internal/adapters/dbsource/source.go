package dbsource

import (
	"context"
	"fmt"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

// sourceName identifies this adapter in logs and health reports.
const sourceName = "DATABASE"

// Source implements the ports.MarketDataSource interface on top of a
// BarRepository, so previously persisted data can serve fetches when no
// upstream provider is configured or reachable.
type Source struct {
	repo   ports.BarRepository
	logger ports.Logger
}

// Config holds configuration specific to the database source adapter.
type Config struct {
	Repository ports.BarRepository
	Logger     ports.Logger
}

// New creates a new database source adapter.
func New(cfg Config) (*Source, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required for database source")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for database source")
	}
	return &Source{repo: cfg.Repository, logger: cfg.Logger}, nil
}

// Name identifies the source in logs, health reports and bar tags.
func (s *Source) Name() string { return sourceName }

// Fetch reads the stored bars for the window. A window with nothing stored
// is an ErrNotFound, unlike a repository read which returns an empty slice,
// because a source that yields no data has failed to serve the request.
func (s *Source) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error) {
	op := "Fetch"
	bars, err := s.repo.FindBars(ctx, symbol, start, end, timeframe)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s found no stored bars for %s [%s, %s] at %s: %w",
			op, symbol, start.Format(time.RFC3339), end.Format(time.RFC3339), timeframe, ports.ErrNotFound)
	}
	s.logger.Debug(ctx, op+" served from storage", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe.String(),
		"bars":      len(bars),
	})
	return bars, nil
}

// Ping checks the underlying database connection.
func (s *Source) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
