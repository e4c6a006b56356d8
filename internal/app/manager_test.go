package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirQuantumZero/Data-Manager/config"
	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockSource struct {
	mu          sync.Mutex
	bars        []*domain.Bar
	errBySymbol map[string]error
	pingErr     error
	calls       map[string]int
}

func (m *mockSource) Name() string { return "MOCKSOURCE" }

func (m *mockSource) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
	if err, ok := m.errBySymbol[symbol]; ok {
		return nil, err
	}
	return m.bars, nil
}

func (m *mockSource) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockSource) callCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

type mockRepo struct {
	mu         sync.Mutex
	stored     map[string][]*domain.Bar
	found      map[string][]*domain.Bar
	storeErr   error
	findErr    error
	deleted    int64
	deleteErr  error
	lastCutoff time.Time
	stats      *ports.RepositoryStats
	statsErr   error
	pingErr    error
	storeCalls int
}

func (m *mockRepo) StoreBars(ctx context.Context, timeframe domain.Timeframe, bars []*domain.Bar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return 0, m.storeErr
	}
	if m.stored == nil {
		m.stored = make(map[string][]*domain.Bar)
	}
	m.storeCalls++
	for _, bar := range bars {
		m.stored[bar.Symbol] = append(m.stored[bar.Symbol], bar)
	}
	return len(bars), nil
}

func (m *mockRepo) FindBars(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.found[symbol], nil
}

func (m *mockRepo) LatestTimestamp(ctx context.Context, symbol string, timeframe domain.Timeframe) (time.Time, error) {
	return time.Time{}, nil
}

func (m *mockRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCutoff = cutoff
	return m.deleted, m.deleteErr
}

func (m *mockRepo) Stats(ctx context.Context) (*ports.RepositoryStats, error) {
	return m.stats, m.statsErr
}

func (m *mockRepo) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockRepo) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		CacheSize:  100,
		CacheTTL:   time.Minute,
		BatchSize:  2,
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
	}
}

func makeBars(t *testing.T, symbol string, n int) []*domain.Bar {
	t.Helper()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*domain.Bar, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		bar, err := domain.NewBar(domain.Bar{
			Symbol:    symbol,
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price * 1.02,
			Low:       price * 0.99,
			Close:     price * 1.01,
			Volume:    1000,
		})
		require.NoError(t, err)
		bars = append(bars, bar)
		price *= 1.01
	}
	return bars
}

func TestNewDataManager(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		cfg     *config.Config
		logger  ports.Logger
		source  ports.MarketDataSource
		wantErr bool
	}{
		{
			name:   "valid configuration",
			cfg:    testConfig(),
			logger: &mockLogger{},
			source: &mockSource{},
		},
		{
			name:    "nil config",
			cfg:     nil,
			logger:  &mockLogger{},
			source:  &mockSource{},
			wantErr: true,
		},
		{
			name:    "nil logger",
			cfg:     testConfig(),
			source:  &mockSource{},
			wantErr: true,
		},
		{
			name:    "nil source",
			cfg:     testConfig(),
			logger:  &mockLogger{},
			wantErr: true,
		},
		{
			name:    "invalid cache size",
			cfg:     testConfig(),
			mutate:  func(cfg *config.Config) { cfg.CacheSize = 0 },
			logger:  &mockLogger{},
			source:  &mockSource{},
			wantErr: true,
		},
		{
			name:    "invalid cache ttl",
			cfg:     testConfig(),
			mutate:  func(cfg *config.Config) { cfg.CacheTTL = 0 },
			logger:  &mockLogger{},
			source:  &mockSource{},
			wantErr: true,
		},
		{
			name:    "invalid batch size",
			cfg:     testConfig(),
			mutate:  func(cfg *config.Config) { cfg.BatchSize = 0 },
			logger:  &mockLogger{},
			source:  &mockSource{},
			wantErr: true,
		},
		{
			name:    "negative max retries",
			cfg:     testConfig(),
			mutate:  func(cfg *config.Config) { cfg.MaxRetries = -1 },
			logger:  &mockLogger{},
			source:  &mockSource{},
			wantErr: true,
		},
		{
			name:    "invalid base delay",
			cfg:     testConfig(),
			mutate:  func(cfg *config.Config) { cfg.BaseDelay = 0 },
			logger:  &mockLogger{},
			source:  &mockSource{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mutate != nil {
				tt.mutate(tt.cfg)
			}
			manager, err := NewDataManager(tt.cfg, tt.logger, tt.source, nil)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, manager)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, manager)
			}
		})
	}
}

func TestGetMarketData_CachesResult(t *testing.T) {
	source := &mockSource{bars: makeBars(t, "AAPL", 3)}
	manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)

	first, err := manager.GetMarketData(context.Background(), "AAPL", start, end, domain.Timeframe1d)
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := manager.GetMarketData(context.Background(), "AAPL", start, end, domain.Timeframe1d)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.callCount("AAPL"), "second request must be served from the cache")

	stats := manager.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestGetMarketData_RejectsInvalidInput(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)

	tests := []struct {
		name      string
		symbol    string
		start     time.Time
		end       time.Time
		timeframe domain.Timeframe
		wantErrIs error
	}{
		{
			name:      "empty symbol",
			symbol:    "",
			start:     start,
			end:       end,
			timeframe: domain.Timeframe1d,
			wantErrIs: ports.ErrInvalidSymbol,
		},
		{
			name:      "end before start",
			symbol:    "AAPL",
			start:     end,
			end:       start,
			timeframe: domain.Timeframe1d,
			wantErrIs: ports.ErrInvalidDateRange,
		},
		{
			name:      "zero dates",
			symbol:    "AAPL",
			timeframe: domain.Timeframe1d,
			wantErrIs: ports.ErrInvalidRequest,
		},
		{
			name:      "unsupported timeframe",
			symbol:    "AAPL",
			start:     start,
			end:       end,
			timeframe: domain.Timeframe("7m"),
			wantErrIs: ports.ErrInvalidInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &mockSource{bars: makeBars(t, "AAPL", 3)}
			manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
			require.NoError(t, err)

			bars, err := manager.GetMarketData(context.Background(), tt.symbol, tt.start, tt.end, tt.timeframe)
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrInvalidRequest)
			assert.ErrorIs(t, err, tt.wantErrIs)
			assert.Nil(t, bars)
			assert.Equal(t, 0, source.callCount(tt.symbol), "rejected input must not reach the source")
		})
	}
}

func TestGetMarketData_ValidationFailureNotCached(t *testing.T) {
	// High below low, built directly to bypass constructor checks.
	badBars := []*domain.Bar{{
		Symbol:    "AAPL",
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Open:      100,
		High:      90,
		Low:       95,
		Close:     96,
		Volume:    1000,
	}}
	source := &mockSource{bars: badBars}
	manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	_, err = manager.GetMarketData(context.Background(), "AAPL", start, end, domain.Timeframe1d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrValidationFailed)

	_, err = manager.GetMarketData(context.Background(), "AAPL", start, end, domain.Timeframe1d)
	require.Error(t, err)
	assert.Equal(t, 2, source.callCount("AAPL"), "a rejected series must not be cached")
}

func TestGetMarketData_SourceErrorPropagates(t *testing.T) {
	source := &mockSource{errBySymbol: map[string]error{"AAPL": ports.ErrSourceUnavailable}}
	manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = manager.GetMarketData(context.Background(), "AAPL", start, start.AddDate(0, 0, 1), domain.Timeframe1d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrFetchExhausted)
	assert.ErrorIs(t, err, ports.ErrSourceUnavailable)
}

func TestGetBatchMarketData(t *testing.T) {
	t.Run("partial failure keeps going", func(t *testing.T) {
		source := &mockSource{
			bars:        makeBars(t, "AAPL", 2),
			errBySymbol: map[string]error{"BAD": ports.ErrInvalidSymbol},
		}
		manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
		require.NoError(t, err)

		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 0, 1)
		symbols := []string{"AAPL", "MSFT", "BAD", "GOOGL", "AMZN"}

		results, fetchErrs, err := manager.GetBatchMarketData(context.Background(), symbols, start, end, domain.Timeframe1d)
		require.NoError(t, err)
		assert.Len(t, results, 4)
		require.Len(t, fetchErrs, 1)
		assert.ErrorIs(t, fetchErrs["BAD"], ports.ErrInvalidSymbol)
		for _, sym := range []string{"AAPL", "MSFT", "GOOGL", "AMZN"} {
			assert.Contains(t, results, sym)
			assert.Equal(t, 1, source.callCount(sym))
		}
	})

	t.Run("empty symbol list rejected", func(t *testing.T) {
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{}, nil)
		require.NoError(t, err)

		_, _, err = manager.GetBatchMarketData(context.Background(), nil, time.Now(), time.Now(), domain.Timeframe1d)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	})
}

func TestRefreshSymbol(t *testing.T) {
	source := &mockSource{bars: makeBars(t, "AAPL", 2)}
	manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	_, err = manager.GetMarketData(context.Background(), "AAPL", start, end, domain.Timeframe1d)
	require.NoError(t, err)
	_, err = manager.GetMarketData(context.Background(), "AAPL", start, end, domain.Timeframe1d)
	require.NoError(t, err)
	require.Equal(t, 1, source.callCount("AAPL"))

	removed := manager.RefreshSymbol("AAPL")
	assert.Equal(t, 1, removed)

	_, err = manager.GetMarketData(context.Background(), "AAPL", start, end, domain.Timeframe1d)
	require.NoError(t, err)
	assert.Equal(t, 2, source.callCount("AAPL"), "refresh must force the next request back to the source")
}

func TestCachedSymbols(t *testing.T) {
	source := &mockSource{bars: makeBars(t, "AAPL", 2)}
	manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
	require.NoError(t, err)

	assert.Empty(t, manager.CachedSymbols())

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	for _, sym := range []string{"MSFT", "AAPL"} {
		_, err = manager.GetMarketData(context.Background(), sym, start, end, domain.Timeframe1d)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"AAPL", "MSFT"}, manager.CachedSymbols())

	stats := manager.CacheStats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.TrackedSymbols)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy dependencies", func(t *testing.T) {
		source := &mockSource{bars: makeBars(t, "AAPL", 2)}
		manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
		require.NoError(t, err)

		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		_, err = manager.GetMarketData(context.Background(), "AAPL", start, start.AddDate(0, 0, 1), domain.Timeframe1d)
		require.NoError(t, err)

		health := manager.HealthCheck(context.Background())
		assert.True(t, health.CacheOK)
		assert.True(t, health.SourceOK)
		assert.Equal(t, int64(1), health.TotalRequests)
		assert.GreaterOrEqual(t, health.Uptime, time.Duration(0))
	})

	t.Run("unreachable source is reported, not fatal", func(t *testing.T) {
		source := &mockSource{pingErr: ports.ErrConnectionFailed}
		manager, err := NewDataManager(testConfig(), &mockLogger{}, source, nil)
		require.NoError(t, err)

		health := manager.HealthCheck(context.Background())
		assert.True(t, health.CacheOK)
		assert.False(t, health.SourceOK)
	})
}

func TestFetchAndStore(t *testing.T) {
	t.Run("without repository", func(t *testing.T) {
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{bars: makeBars(t, "AAPL", 2)}, nil)
		require.NoError(t, err)

		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		_, err = manager.FetchAndStore(context.Background(), "AAPL", start, start.AddDate(0, 0, 1), domain.Timeframe1d)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrNoRepository)
	})

	t.Run("fetches and persists", func(t *testing.T) {
		repo := &mockRepo{}
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{bars: makeBars(t, "AAPL", 3)}, repo)
		require.NoError(t, err)

		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		stored, err := manager.FetchAndStore(context.Background(), "AAPL", start, start.AddDate(0, 0, 2), domain.Timeframe1d)
		require.NoError(t, err)
		assert.Equal(t, 3, stored)
		assert.Len(t, repo.stored["AAPL"], 3)
	})
}

func TestGetBacktestData(t *testing.T) {
	t.Run("without repository", func(t *testing.T) {
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{}, nil)
		require.NoError(t, err)

		_, _, err = manager.GetBacktestData(context.Background(), []string{"AAPL"}, time.Now(), time.Now(), domain.Timeframe1d)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrNoRepository)
	})

	t.Run("repository first, source for the rest", func(t *testing.T) {
		storedBars := makeBars(t, "AAPL", 4)
		repo := &mockRepo{found: map[string][]*domain.Bar{"AAPL": storedBars}}
		source := &mockSource{bars: makeBars(t, "MSFT", 2)}
		manager, err := NewDataManager(testConfig(), &mockLogger{}, source, repo)
		require.NoError(t, err)

		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 0, 3)
		results, fetchErrs, err := manager.GetBacktestData(context.Background(), []string{"AAPL", "MSFT"}, start, end, domain.Timeframe1d)
		require.NoError(t, err)
		assert.Empty(t, fetchErrs)

		assert.Equal(t, storedBars, results["AAPL"])
		assert.Len(t, results["MSFT"], 2)
		assert.Equal(t, 0, source.callCount("AAPL"), "stored symbols must not hit the source")
		assert.Equal(t, 1, source.callCount("MSFT"))
		assert.Len(t, repo.stored["MSFT"], 2, "fetched bars must be persisted")
	})

	t.Run("per-symbol failures recorded", func(t *testing.T) {
		repo := &mockRepo{}
		source := &mockSource{
			bars:        makeBars(t, "AAPL", 2),
			errBySymbol: map[string]error{"BAD": ports.ErrSourceUnavailable},
		}
		manager, err := NewDataManager(testConfig(), &mockLogger{}, source, repo)
		require.NoError(t, err)

		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		results, fetchErrs, err := manager.GetBacktestData(context.Background(), []string{"AAPL", "BAD"}, start, start.AddDate(0, 0, 1), domain.Timeframe1d)
		require.NoError(t, err)
		assert.Len(t, results, 1)
		require.Len(t, fetchErrs, 1)
		assert.ErrorIs(t, fetchErrs["BAD"], ports.ErrSourceUnavailable)
	})
}

func TestPruneStoredData(t *testing.T) {
	t.Run("without repository", func(t *testing.T) {
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{}, nil)
		require.NoError(t, err)

		_, err = manager.PruneStoredData(context.Background(), 24*time.Hour)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrNoRepository)
	})

	t.Run("invalid max age", func(t *testing.T) {
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{}, &mockRepo{})
		require.NoError(t, err)

		_, err = manager.PruneStoredData(context.Background(), 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	})

	t.Run("deletes older than cutoff", func(t *testing.T) {
		repo := &mockRepo{deleted: 42}
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{}, repo)
		require.NoError(t, err)

		deleted, err := manager.PruneStoredData(context.Background(), 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(42), deleted)
		assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), repo.lastCutoff, 5*time.Second)
	})
}

func TestDatabaseStats(t *testing.T) {
	t.Run("without repository", func(t *testing.T) {
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{}, nil)
		require.NoError(t, err)

		_, err = manager.DatabaseStats(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrNoRepository)
	})

	t.Run("passes repository stats through", func(t *testing.T) {
		repo := &mockRepo{stats: &ports.RepositoryStats{TotalBars: 10, Symbols: 2}}
		manager, err := NewDataManager(testConfig(), &mockLogger{}, &mockSource{}, repo)
		require.NoError(t, err)

		stats, err := manager.DatabaseStats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(10), stats.TotalBars)
		assert.Equal(t, 2, stats.Symbols)
	})
}
