package mock

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

// sourceName tags bars produced by this adapter.
const sourceName = "MOCK"

// basePrices seeds the random walk per symbol; unknown symbols start at
// defaultBasePrice.
var basePrices = map[string]float64{
	"AAPL":  150.0,
	"GOOGL": 2800.0,
	"MSFT":  300.0,
}

const defaultBasePrice = 100.0

// Source implements the ports.MarketDataSource interface with generated
// data, for development and tests that must not touch a real provider.
// Prices follow a random walk with normally distributed step volatility;
// the same seed always produces the same series.
type Source struct {
	logger ports.Logger
	mu     sync.Mutex // rand.Rand is not safe for concurrent use
	rng    *rand.Rand
}

// Config holds configuration specific to the mock source adapter.
type Config struct {
	Logger ports.Logger
	Seed   int64 // Zero seeds from the current time
}

// New creates a new mock source adapter.
func New(cfg Config) (*Source, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for mock source")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{
		logger: cfg.Logger,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Name identifies the source in logs, health reports and bar tags.
func (s *Source) Name() string { return sourceName }

// Ping always succeeds; there is no upstream to reach.
func (s *Source) Ping(ctx context.Context) error { return nil }

// Fetch generates one bar per timeframe interval from start up to and
// including end. Each step draws a volatility v ~ N(0, 0.02): the bar opens
// at the walk price, highs at open*(1+|v|), lows at open*(1-|v|) and closes
// at open*(1+v), which keeps every bar internally consistent. Volume and
// transaction counts are drawn from wide normal distributions and VWAP is
// the (high+low+close)/3 typical price.
func (s *Source) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error) {
	op := "Fetch"
	if symbol == "" {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, ports.ErrInvalidSymbol)
	}
	if !timeframe.IsValid() {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, ports.ErrInvalidInterval)
	}

	base, ok := basePrices[symbol]
	if !ok {
		base = defaultBasePrice
	}
	step := timeframe.Duration()

	s.mu.Lock()
	defer s.mu.Unlock()

	var bars []*domain.Bar
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s canceled: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		default:
		}

		volatility := clamp(s.rng.NormFloat64()*0.02, -0.2, 0.2)
		high := base * (1 + math.Abs(volatility))
		low := base * (1 - math.Abs(volatility))
		closePrice := base * (1 + volatility)
		volume := int64(math.Max(0, s.rng.NormFloat64()*200000+1000000))
		transactions := int64(math.Max(0, s.rng.NormFloat64()*500+2000))

		bar, err := domain.NewBar(domain.Bar{
			Symbol:       symbol,
			Timestamp:    ts,
			Open:         base,
			High:         high,
			Low:          low,
			Close:        closePrice,
			Volume:       volume,
			VWAP:         domain.Float64Ptr((high + low + closePrice) / 3),
			Transactions: domain.Int64Ptr(transactions),
			Source:       sourceName,
		})
		if err != nil {
			return nil, fmt.Errorf("%s generated an inconsistent bar: %w: %w", op, ports.ErrUnknown, err)
		}
		bars = append(bars, bar)

		// The next bar opens where this one closed.
		base = closePrice
	}

	s.logger.Debug(ctx, op+" generated bars", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe.String(),
		"bars":      len(bars),
	})
	return bars, nil
}

// clamp bounds v to [min, max] so extreme volatility draws cannot push the
// walk to a non-positive price.
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
