package domain

import "fmt"

// RequestKind tags the kind of work a request or scheduled task asks for.
// Dispatch happens on these typed tags rather than on raw strings.
type RequestKind string

const (
	RequestMarketData RequestKind = "market_data" // fetch and persist bars for a symbol window
	RequestBacktest   RequestKind = "backtest"    // repository-first retrieval for a symbol set
	RequestPrune      RequestKind = "prune"       // delete stored bars older than a cutoff
)

// ParseRequestKind converts s into a RequestKind, rejecting unknown values.
func ParseRequestKind(s string) (RequestKind, error) {
	switch k := RequestKind(s); k {
	case RequestMarketData, RequestBacktest, RequestPrune:
		return k, nil
	default:
		return "", fmt.Errorf("unknown request kind %q", s)
	}
}

// SourceKind identifies a market data provider implementation.
type SourceKind string

const (
	SourceMock     SourceKind = "mock"     // deterministic random-walk generator
	SourcePolygon  SourceKind = "polygon"  // Polygon.io aggregates API
	SourceBinance  SourceKind = "binance"  // Binance spot klines API
	SourceDatabase SourceKind = "database" // previously persisted bars
)

// ParseSourceKind converts s into a SourceKind, rejecting unknown values.
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(s); k {
	case SourceMock, SourcePolygon, SourceBinance, SourceDatabase:
		return k, nil
	default:
		return "", fmt.Errorf("unknown data source %q (supported: mock, polygon, binance, database)", s)
	}
}
