package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

// Config holds the dependencies and retry parameters for a Coordinator.
type Config struct {
	Source     ports.MarketDataSource
	Logger     ports.Logger
	MaxRetries int           // Additional attempts after the first failure (0 means a single attempt)
	BaseDelay  time.Duration // Delay before the first retry; doubles on each subsequent retry
}

// Coordinator wraps a MarketDataSource with bounded exponential backoff.
// It holds no mutable state, so concurrent Fetch calls are independent.
type Coordinator struct {
	source     ports.MarketDataSource
	logger     ports.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewCoordinator creates a Coordinator from cfg, validating its dependencies
// and parameters.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Source == nil {
		return nil, errors.New("market data source is required for coordinator")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for coordinator")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative, got %d", cfg.MaxRetries)
	}
	if cfg.BaseDelay <= 0 {
		return nil, fmt.Errorf("base delay must be positive, got %v", cfg.BaseDelay)
	}
	return &Coordinator{
		source:     cfg.Source,
		logger:     cfg.Logger,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
	}, nil
}

// Fetch retrieves bars from the underlying source, retrying transient
// failures up to MaxRetries times with delays of BaseDelay, 2x BaseDelay,
// 4x BaseDelay and so on. Invalid-input errors and context cancellation
// fail immediately. When every attempt fails the returned error wraps
// ports.ErrFetchExhausted together with the last underlying cause.
func (c *Coordinator) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error) {
	op := "Fetch"
	for attempt := 0; ; attempt++ {
		bars, err := c.source.Fetch(ctx, symbol, start, end, timeframe)
		if err == nil {
			if attempt > 0 {
				c.logger.Info(ctx, op+": succeeded after retries", map[string]interface{}{
					"source":  c.source.Name(),
					"symbol":  symbol,
					"attempt": attempt + 1,
				})
			}
			return bars, nil
		}

		if !isRetryable(err) {
			return nil, err
		}
		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("failed to fetch %s from %s after %d attempts: %w: %w",
				symbol, c.source.Name(), attempt+1, ports.ErrFetchExhausted, err)
		}

		delay := c.baseDelay * time.Duration(1<<uint(attempt))
		c.logger.Warn(ctx, op+": attempt failed, backing off", map[string]interface{}{
			"source":  c.source.Name(),
			"symbol":  symbol,
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%s canceled during backoff for %s: %w: %w", op, symbol, ports.ErrContextCanceled, ctx.Err())
		}
	}
}

// isRetryable reports whether err is worth another attempt. Malformed
// requests will fail identically every time, and a canceled context must
// not be waited on.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ports.ErrContextCanceled) {
		return false
	}
	if errors.Is(err, ports.ErrInvalidRequest) || errors.Is(err, ports.ErrInvalidSymbol) {
		return false
	}
	return true
}
