package domain

import (
	"fmt"
	"sort"
	"time"
)

// DefaultSource tags bars whose originating data source is unknown.
const DefaultSource = "UNKNOWN"

// Bar represents a single OHLCV observation for a symbol over one
// timeframe interval. Bars are immutable after construction; use NewBar
// so the price/volume invariants are checked exactly once.
type Bar struct {
	Symbol       string    `json:"symbol"`                 // Ticker symbol (e.g., "AAPL")
	Timestamp    time.Time `json:"timestamp"`              // Start of the bar interval (UTC)
	Open         float64   `json:"open"`                   // Opening price
	High         float64   `json:"high"`                   // Highest price
	Low          float64   `json:"low"`                    // Lowest price
	Close        float64   `json:"close"`                  // Closing price
	Volume       int64     `json:"volume"`                 // Traded volume (non-negative)
	VWAP         *float64  `json:"vwap,omitempty"`         // Volume-weighted average price, if the source provides it
	Transactions *int64    `json:"transactions,omitempty"` // Number of trades in the interval, if the source provides it
	Source       string    `json:"source"`                 // Originating data source tag (e.g., "POLYGON", "MOCK")
}

// NewBar validates and normalizes b, returning the constructed bar.
// Violated invariants are errors, never silently corrected values:
// prices must be positive with low <= open <= high and low <= close <= high,
// volume must be non-negative, VWAP positive if present, and the
// transaction count non-negative if present. The timestamp is normalized
// to UTC and an empty source defaults to DefaultSource.
func NewBar(b Bar) (*Bar, error) {
	if b.Symbol == "" {
		return nil, fmt.Errorf("bar symbol cannot be empty")
	}
	if b.Timestamp.IsZero() {
		return nil, fmt.Errorf("bar timestamp cannot be zero")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return nil, fmt.Errorf("bar prices must be positive (open=%v high=%v low=%v close=%v)", b.Open, b.High, b.Low, b.Close)
	}
	if !(b.Low <= b.Open && b.Open <= b.High) || !(b.Low <= b.Close && b.Close <= b.High) {
		return nil, fmt.Errorf("bar prices are inconsistent (open=%v high=%v low=%v close=%v)", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume < 0 {
		return nil, fmt.Errorf("bar volume cannot be negative (%d)", b.Volume)
	}
	if b.VWAP != nil && *b.VWAP <= 0 {
		return nil, fmt.Errorf("bar VWAP must be positive (%v)", *b.VWAP)
	}
	if b.Transactions != nil && *b.Transactions < 0 {
		return nil, fmt.Errorf("bar transaction count cannot be negative (%d)", *b.Transactions)
	}

	b.Timestamp = b.Timestamp.UTC()
	if b.Source == "" {
		b.Source = DefaultSource
	}
	return &b, nil
}

// Range returns the price range (high - low) of the bar.
func (b *Bar) Range() float64 {
	return b.High - b.Low
}

// Movement returns the close-to-open price movement as a percentage of the open.
func (b *Bar) Movement() float64 {
	return ((b.Close - b.Open) / b.Open) * 100
}

// IsPositive reports whether the bar closed above its open.
func (b *Bar) IsPositive() bool {
	return b.Close > b.Open
}

// SortBars orders bars by timestamp ascending, in place.
func SortBars(bars []*Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
}

// Float64Ptr returns a pointer to v, for the optional bar fields.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Int64Ptr returns a pointer to v, for the optional bar fields.
func Int64Ptr(v int64) *int64 {
	return &v
}
