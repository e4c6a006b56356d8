package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
)

func WriteBarsToCSV(bars []*domain.Bar, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"symbol", "timestamp", "open", "high", "low", "close", "volume", "vwap", "transactions", "source"})

	for _, b := range bars {
		vwap := ""
		if b.VWAP != nil {
			vwap = strconv.FormatFloat(*b.VWAP, 'f', -1, 64)
		}
		transactions := ""
		if b.Transactions != nil {
			transactions = strconv.FormatInt(*b.Transactions, 10)
		}
		writer.Write([]string{
			b.Symbol,
			b.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
			vwap,
			transactions,
			b.Source,
		})
	}
	return writer.Error()
}

// ReadBarsFromCSV loads bars written by WriteBarsToCSV. Every row passes
// through the usual bar validation, so a tampered file fails loudly.
func ReadBarsFromCSV(filename string) ([]*domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	bars := make([]*domain.Bar, 0, len(records)-1)
	for i, rec := range records[1:] { // Skip header
		row := i + 2
		if len(rec) != 10 {
			return nil, fmt.Errorf("row %d: expected 10 fields, got %d", row, len(rec))
		}

		timestamp, err := time.Parse(time.RFC3339, rec[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing timestamp %q: %w", row, rec[1], err)
		}
		open, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing open %q: %w", row, rec[2], err)
		}
		high, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing high %q: %w", row, rec[3], err)
		}
		low, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing low %q: %w", row, rec[4], err)
		}
		closePrice, err := strconv.ParseFloat(rec[5], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing close %q: %w", row, rec[5], err)
		}
		volume, err := strconv.ParseInt(rec[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing volume %q: %w", row, rec[6], err)
		}

		bar := domain.Bar{
			Symbol:    rec[0],
			Timestamp: timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			Source:    rec[9],
		}
		if rec[7] != "" {
			vwap, err := strconv.ParseFloat(rec[7], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing vwap %q: %w", row, rec[7], err)
			}
			bar.VWAP = domain.Float64Ptr(vwap)
		}
		if rec[8] != "" {
			transactions, err := strconv.ParseInt(rec[8], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing transactions %q: %w", row, rec[8], err)
			}
			bar.Transactions = domain.Int64Ptr(transactions)
		}

		validated, err := domain.NewBar(bar)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		bars = append(bars, validated)
	}
	return bars, nil
}
