package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestFetchGeneratesConsistentSeries(t *testing.T) {
	src, err := New(Config{Logger: &mockLogger{}, Seed: 42})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(9 * 24 * time.Hour)

	bars, err := src.Fetch(context.Background(), "AAPL", start, end, domain.Timeframe1d)
	require.NoError(t, err)
	require.Len(t, bars, 10, "one bar per day, range inclusive")

	prevClose := 0.0
	for i, bar := range bars {
		assert.Equal(t, "AAPL", bar.Symbol)
		assert.Equal(t, "MOCK", bar.Source)
		assert.True(t, bar.Timestamp.Equal(start.Add(time.Duration(i)*24*time.Hour)))
		assert.True(t, bar.Low <= bar.Open && bar.Open <= bar.High)
		assert.True(t, bar.Low <= bar.Close && bar.Close <= bar.High)
		assert.GreaterOrEqual(t, bar.Volume, int64(0))
		require.NotNil(t, bar.VWAP)
		assert.Greater(t, *bar.VWAP, 0.0)
		require.NotNil(t, bar.Transactions)
		assert.GreaterOrEqual(t, *bar.Transactions, int64(0))

		// The walk chains: each bar opens at the previous close.
		if i > 0 {
			assert.InDelta(t, prevClose, bar.Open, 1e-9)
		}
		prevClose = bar.Close
	}

	// Known symbols start from their seeded base price.
	assert.InDelta(t, 150.0, bars[0].Open, 1e-9)
}

func TestFetchDeterministicForSeed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	first, err := New(Config{Logger: &mockLogger{}, Seed: 7})
	require.NoError(t, err)
	second, err := New(Config{Logger: &mockLogger{}, Seed: 7})
	require.NoError(t, err)

	barsA, err := first.Fetch(context.Background(), "MSFT", start, end, domain.Timeframe1h)
	require.NoError(t, err)
	barsB, err := second.Fetch(context.Background(), "MSFT", start, end, domain.Timeframe1h)
	require.NoError(t, err)

	require.Equal(t, len(barsA), len(barsB))
	for i := range barsA {
		assert.Equal(t, barsA[i].Close, barsB[i].Close)
		assert.Equal(t, barsA[i].Volume, barsB[i].Volume)
	}
}

func TestFetchUnknownSymbolUsesDefaultBase(t *testing.T) {
	src, err := New(Config{Logger: &mockLogger{}, Seed: 1})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := src.Fetch(context.Background(), "ZZZZ", start, start, domain.Timeframe1d)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.InDelta(t, 100.0, bars[0].Open, 1e-9)
}

func TestFetchRejectsInvalidInput(t *testing.T) {
	src, err := New(Config{Logger: &mockLogger{}, Seed: 1})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err = src.Fetch(context.Background(), "", start, start, domain.Timeframe1d)
	assert.ErrorIs(t, err, ports.ErrInvalidSymbol)

	_, err = src.Fetch(context.Background(), "AAPL", start, start, domain.Timeframe("2d"))
	assert.ErrorIs(t, err, ports.ErrInvalidInterval)
}

func TestPing(t *testing.T) {
	src, err := New(Config{Logger: &mockLogger{}, Seed: 1})
	require.NoError(t, err)
	assert.NoError(t, src.Ping(context.Background()))
}
