package domain

import "testing"

func TestParseRequestKind(t *testing.T) {
	for _, kind := range []RequestKind{RequestMarketData, RequestBacktest, RequestPrune} {
		parsed, err := ParseRequestKind(string(kind))
		if err != nil {
			t.Errorf("Expected no error for %q, got %v", kind, err)
		}
		if parsed != kind {
			t.Errorf("Expected %q, got %q", kind, parsed)
		}
	}

	for _, bad := range []string{"", "marketdata", "MARKET_DATA", "resample"} {
		if _, err := ParseRequestKind(bad); err == nil {
			t.Errorf("Expected error for unknown request kind %q", bad)
		}
	}
}

func TestParseSourceKind(t *testing.T) {
	for _, kind := range []SourceKind{SourceMock, SourcePolygon, SourceBinance, SourceDatabase} {
		parsed, err := ParseSourceKind(string(kind))
		if err != nil {
			t.Errorf("Expected no error for %q, got %v", kind, err)
		}
		if parsed != kind {
			t.Errorf("Expected %q, got %q", kind, parsed)
		}
	}

	for _, bad := range []string{"", "yahoo", "Binance", "db"} {
		if _, err := ParseSourceKind(bad); err == nil {
			t.Errorf("Expected error for unknown source kind %q", bad)
		}
	}
}
