package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
)

func tempCSVPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "bars-csv-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "bars.csv")
}

func TestWriteAndReadBarsRoundTrip(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	withOptionals, err := domain.NewBar(domain.Bar{
		Symbol:       "AAPL",
		Timestamp:    base,
		Open:         150.25,
		High:         152.5,
		Low:          149.0,
		Close:        151.75,
		Volume:       1_200_000,
		VWAP:         domain.Float64Ptr(151.08),
		Transactions: domain.Int64Ptr(2150),
		Source:       "POLYGON",
	})
	require.NoError(t, err)

	withoutOptionals, err := domain.NewBar(domain.Bar{
		Symbol:    "AAPL",
		Timestamp: base.AddDate(0, 0, 1),
		Open:      151.75,
		High:      153.0,
		Low:       151.0,
		Close:     152.2,
		Volume:    980_000,
	})
	require.NoError(t, err)

	path := tempCSVPath(t)
	written := []*domain.Bar{withOptionals, withoutOptionals}
	require.NoError(t, WriteBarsToCSV(written, path))

	read, err := ReadBarsFromCSV(path)
	require.NoError(t, err)
	require.Len(t, read, 2)
	assert.Equal(t, written, read)
	assert.Nil(t, read[1].VWAP)
	assert.Nil(t, read[1].Transactions)
	assert.Equal(t, domain.DefaultSource, read[1].Source)
}

func TestReadBarsFromCSV_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := ReadBarsFromCSV(filepath.Join(t.TempDir(), "absent.csv"))
		assert.Error(t, err)
	})

	t.Run("empty file yields no bars", func(t *testing.T) {
		path := tempCSVPath(t)
		require.NoError(t, os.WriteFile(path, nil, 0644))

		bars, err := ReadBarsFromCSV(path)
		require.NoError(t, err)
		assert.Empty(t, bars)
	})

	t.Run("inconsistent prices rejected with row number", func(t *testing.T) {
		path := tempCSVPath(t)
		content := "symbol,timestamp,open,high,low,close,volume,vwap,transactions,source\n" +
			"AAPL,2024-03-01T00:00:00Z,150,140,149,151,1000,,,TEST\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := ReadBarsFromCSV(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 2")
	})

	t.Run("malformed volume rejected", func(t *testing.T) {
		path := tempCSVPath(t)
		content := "symbol,timestamp,open,high,low,close,volume,vwap,transactions,source\n" +
			"AAPL,2024-03-01T00:00:00Z,150,152,149,151,a lot,,,TEST\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := ReadBarsFromCSV(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "volume")
	})
}
