package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SirQuantumZero/Data-Manager/config"
	"github.com/SirQuantumZero/Data-Manager/internal/cache"
	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/fetch"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
	"github.com/SirQuantumZero/Data-Manager/internal/validate"
)

// DataManager orchestrates the market data pipeline: requests are served
// from the cache when possible, otherwise fetched through the retrying
// coordinator, validated, cached and optionally persisted.
type DataManager struct {
	cfg         *config.Config
	logger      ports.Logger
	source      ports.MarketDataSource
	repo        ports.BarRepository // May be nil when persistence is not configured
	barCache    *cache.Cache
	coordinator *fetch.Coordinator
	validator   *validate.Validator

	// State fields
	mu            sync.Mutex // Protects access to state fields below
	startTime     time.Time
	totalRequests int64
}

// CacheStats summarizes cache behavior since start.
type CacheStats struct {
	Size           int   // Entries currently cached
	Hits           int64 // Lookups served from the cache
	Misses         int64 // Lookups that had to fall through
	TrackedSymbols int   // Distinct symbols with at least one cached entry
}

// Health reports the liveness of the manager's dependencies. It is always
// produced, never an error; a failing dependency shows up as false.
type Health struct {
	CacheOK       bool
	SourceOK      bool
	Uptime        time.Duration
	TotalRequests int64 // Fetch requests processed since start, batch members included
}

// NewDataManager creates a new data manager instance. The repository is
// optional; without one the persistence operations return ErrNoRepository.
func NewDataManager(
	cfg *config.Config,
	logger ports.Logger,
	source ports.MarketDataSource,
	repo ports.BarRepository,
) (*DataManager, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || source == nil {
		return nil, fmt.Errorf("missing required dependencies for DataManager")
	}

	// Validate config values needed by the manager
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("configuration CacheSize must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("configuration CacheTTL must be positive")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("configuration BatchSize must be positive")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("configuration MaxRetries cannot be negative")
	}
	if cfg.BaseDelay <= 0 {
		return nil, fmt.Errorf("configuration BaseDelay must be positive")
	}

	barCache, err := cache.New(cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}
	coordinator, err := fetch.NewCoordinator(fetch.Config{
		Source:     source,
		Logger:     logger,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch coordinator: %w", err)
	}

	return &DataManager{
		cfg:         cfg,
		logger:      logger,
		source:      source,
		repo:        repo,
		barCache:    barCache,
		coordinator: coordinator,
		validator:   validate.New(),
		startTime:   time.Now().UTC(),
	}, nil
}

// cacheKey builds the composite cache key for a request window. Timestamps
// are rendered in RFC3339 UTC so equal instants always produce equal keys.
func cacheKey(symbol string, start, end time.Time, timeframe domain.Timeframe) string {
	return fmt.Sprintf("%s:%s:%s:%s",
		symbol, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), timeframe)
}

// validateRequest rejects malformed request parameters before any fetch
// work happens. Every rejection wraps ports.ErrInvalidRequest plus a more
// specific sentinel.
func validateRequest(symbol string, start, end time.Time, timeframe domain.Timeframe) error {
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("%w: %w", ports.ErrInvalidRequest, ports.ErrInvalidSymbol)
	}
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ports.ErrInvalidRequest)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: %w (start=%s end=%s)", ports.ErrInvalidRequest, ports.ErrInvalidDateRange,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if !timeframe.IsValid() {
		return fmt.Errorf("%w: %w: %q is not one of %v", ports.ErrInvalidRequest, ports.ErrInvalidInterval,
			timeframe, domain.Timeframes())
	}
	return nil
}

// countRequest bumps the served-request counter.
func (m *DataManager) countRequest() {
	m.mu.Lock()
	m.totalRequests++
	m.mu.Unlock()
}

// GetMarketData returns the bars for symbol covering [start, end] at the
// given timeframe. Cached windows are served without touching the source;
// fresh fetches are validated before being cached, so an invalid series is
// never served from the cache later.
func (m *DataManager) GetMarketData(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error) {
	op := "GetMarketData"
	m.countRequest()

	if err := validateRequest(symbol, start, end, timeframe); err != nil {
		return nil, fmt.Errorf("%s for %q rejected: %w", op, symbol, err)
	}

	key := cacheKey(symbol, start, end, timeframe)
	if bars, ok := m.barCache.Get(key); ok {
		m.logger.Debug(ctx, op+": cache hit", map[string]interface{}{"key": key, "bars": len(bars)})
		return bars, nil
	}
	m.logger.Debug(ctx, op+": cache miss, fetching", map[string]interface{}{"key": key, "source": m.source.Name()})

	fetchStart := time.Now()
	bars, err := m.coordinator.Fetch(ctx, symbol, start, end, timeframe)
	if err != nil {
		return nil, fmt.Errorf("%s for %s failed: %w", op, symbol, err)
	}

	if res := m.validator.Validate(bars); !res.Valid {
		return nil, fmt.Errorf("%s for %s: %w: %s", op, symbol, ports.ErrValidationFailed, strings.Join(res.Errors, "; "))
	}

	m.barCache.Set(key, bars)
	m.logger.Info(ctx, op+": fetched and cached", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe.String(),
		"bars":      len(bars),
		"source":    m.source.Name(),
		"elapsed":   time.Since(fetchStart).String(),
	})
	return bars, nil
}

// GetBatchMarketData retrieves the same window for many symbols, fanning
// out concurrently in chunks of the configured batch size. Per-symbol
// failures land in the returned error map and never abort the rest; the
// call itself only fails on an empty symbol list.
func (m *DataManager) GetBatchMarketData(ctx context.Context, symbols []string, start, end time.Time, timeframe domain.Timeframe) (map[string][]*domain.Bar, map[string]error, error) {
	op := "GetBatchMarketData"
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%s rejected: %w: symbol list cannot be empty", op, ports.ErrInvalidRequest)
	}

	results := make(map[string][]*domain.Bar, len(symbols))
	fetchErrs := make(map[string]error)
	var mu sync.Mutex

	for offset := 0; offset < len(symbols); offset += m.cfg.BatchSize {
		limit := offset + m.cfg.BatchSize
		if limit > len(symbols) {
			limit = len(symbols)
		}

		var wg sync.WaitGroup
		for _, symbol := range symbols[offset:limit] {
			wg.Add(1)
			go func(sym string) {
				defer wg.Done()
				bars, err := m.GetMarketData(ctx, sym, start, end, timeframe)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					fetchErrs[sym] = err
					return
				}
				results[sym] = bars
			}(symbol)
		}
		wg.Wait()
	}

	if len(fetchErrs) > 0 {
		failed := make([]string, 0, len(fetchErrs))
		for sym := range fetchErrs {
			failed = append(failed, sym)
		}
		sort.Strings(failed)
		m.logger.Warn(ctx, op+": some symbols failed", map[string]interface{}{
			"requested": len(symbols),
			"failed":    failed,
		})
	}
	return results, fetchErrs, nil
}

// RefreshSymbol drops every cached window for symbol and returns how many
// entries were removed. The next request for the symbol is forced back to
// the source.
func (m *DataManager) RefreshSymbol(symbol string) int {
	op := "RefreshSymbol"
	prefix := symbol + ":"
	removed := m.barCache.RemoveMatching(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
	m.logger.Info(context.Background(), op+": cache entries invalidated", map[string]interface{}{
		"symbol":  symbol,
		"removed": removed,
	})
	return removed
}

// CachedSymbols lists the distinct symbols currently holding at least one
// cached window, sorted alphabetically.
func (m *DataManager) CachedSymbols() []string {
	seen := make(map[string]struct{})
	for _, key := range m.barCache.Keys() {
		if i := strings.Index(key, ":"); i > 0 {
			seen[key[:i]] = struct{}{}
		}
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// CacheStats reports cache size and cumulative hit/miss counts.
func (m *DataManager) CacheStats() CacheStats {
	hits, misses := m.barCache.Stats()
	return CacheStats{
		Size:           m.barCache.Len(),
		Hits:           hits,
		Misses:         misses,
		TrackedSymbols: len(m.CachedSymbols()),
	}
}

// HealthCheck probes the manager's dependencies. It reports rather than
// fails: a broken source yields SourceOK=false, never an error.
func (m *DataManager) HealthCheck(ctx context.Context) Health {
	op := "HealthCheck"
	health := Health{CacheOK: m.barCache.Healthy()}

	if err := m.source.Ping(ctx); err != nil {
		m.logger.Warn(ctx, op+": source ping failed", map[string]interface{}{
			"source": m.source.Name(),
			"error":  err.Error(),
		})
	} else {
		health.SourceOK = true
	}

	m.mu.Lock()
	health.Uptime = time.Since(m.startTime)
	health.TotalRequests = m.totalRequests
	m.mu.Unlock()
	return health
}

// FetchAndStore retrieves bars through the normal pipeline and persists
// them. The store step runs once; only the fetch leg is retried.
func (m *DataManager) FetchAndStore(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) (int, error) {
	op := "FetchAndStore"
	if m.repo == nil {
		return 0, fmt.Errorf("%s for %s: %w", op, symbol, ports.ErrNoRepository)
	}

	bars, err := m.GetMarketData(ctx, symbol, start, end, timeframe)
	if err != nil {
		return 0, err
	}

	stored, err := m.repo.StoreBars(ctx, timeframe, bars)
	if err != nil {
		return 0, fmt.Errorf("%s failed to persist %s: %w", op, symbol, err)
	}
	m.logger.Info(ctx, op+": bars persisted", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe.String(),
		"stored":    stored,
	})
	return stored, nil
}

// GetBacktestData serves a symbol set repository-first: stored windows are
// returned as-is, anything missing is fetched, persisted and then returned.
// Per-symbol failures land in the error map.
func (m *DataManager) GetBacktestData(ctx context.Context, symbols []string, start, end time.Time, timeframe domain.Timeframe) (map[string][]*domain.Bar, map[string]error, error) {
	op := "GetBacktestData"
	if m.repo == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ports.ErrNoRepository)
	}
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%s rejected: %w: symbol list cannot be empty", op, ports.ErrInvalidRequest)
	}

	results := make(map[string][]*domain.Bar, len(symbols))
	fetchErrs := make(map[string]error)

	for _, symbol := range symbols {
		stored, err := m.repo.FindBars(ctx, symbol, start, end, timeframe)
		if err != nil {
			fetchErrs[symbol] = err
			continue
		}
		if len(stored) > 0 {
			m.logger.Debug(ctx, op+": served from repository", map[string]interface{}{"symbol": symbol, "bars": len(stored)})
			results[symbol] = stored
			continue
		}

		bars, err := m.GetMarketData(ctx, symbol, start, end, timeframe)
		if err != nil {
			fetchErrs[symbol] = err
			continue
		}
		if _, err := m.repo.StoreBars(ctx, timeframe, bars); err != nil {
			fetchErrs[symbol] = fmt.Errorf("%s failed to persist %s: %w", op, symbol, err)
			continue
		}
		results[symbol] = bars
	}
	return results, fetchErrs, nil
}

// PruneStoredData deletes persisted bars older than maxAge and returns the
// number removed.
func (m *DataManager) PruneStoredData(ctx context.Context, maxAge time.Duration) (int64, error) {
	op := "PruneStoredData"
	if m.repo == nil {
		return 0, fmt.Errorf("%s: %w", op, ports.ErrNoRepository)
	}
	if maxAge <= 0 {
		return 0, fmt.Errorf("%s rejected: %w: max age must be positive", op, ports.ErrInvalidRequest)
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	deleted, err := m.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w", op, err)
	}
	return deleted, nil
}

// DatabaseStats summarizes the persisted data.
func (m *DataManager) DatabaseStats(ctx context.Context) (*ports.RepositoryStats, error) {
	op := "DatabaseStats"
	if m.repo == nil {
		return nil, fmt.Errorf("%s: %w", op, ports.ErrNoRepository)
	}
	stats, err := m.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	return stats, nil
}
