package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/SirQuantumZero/Data-Manager/config"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/binanceclient"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/logger"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/mock"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/polygon"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/sqlite"
	"github.com/SirQuantumZero/Data-Manager/internal/app"
	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

var (
	symbolsFlag   = flag.String("symbols", "", "comma-separated ticker symbols (required)")
	startFlag     = flag.String("start", "", "window start, YYYY-MM-DD or RFC3339 (required)")
	endFlag       = flag.String("end", "", "window end, YYYY-MM-DD or RFC3339 (defaults to now)")
	timeframeFlag = flag.String("timeframe", "1d", "bar timeframe (1m, 5m, 15m, 30m, 1h, 1d, 1w)")
	sourceFlag    = flag.String("source", "", "data source override (mock, polygon, binance)")
)

func main() {
	flag.Parse()
	symbols := splitSymbols(*symbolsFlag)
	if len(symbols) == 0 || *startFlag == "" {
		flag.Usage()
		log.Fatalf("FATAL: -symbols and -start are required")
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if *sourceFlag != "" {
		cfg.Source = *sourceFlag
	}

	// 2. Initialize Logger
	appLogger := logger.NewSlogLogger(cfg.LogLevel)

	// 3. Parse the request window
	start, err := parseTime(*startFlag)
	if err != nil {
		log.Fatalf("FATAL: Invalid -start: %v", err)
	}
	end := time.Now().UTC()
	if *endFlag != "" {
		if end, err = parseTime(*endFlag); err != nil {
			log.Fatalf("FATAL: Invalid -end: %v", err)
		}
	}
	timeframe, err := domain.ParseTimeframe(*timeframeFlag)
	if err != nil {
		log.Fatalf("FATAL: Invalid -timeframe: %v", err)
	}

	// 4. Initialize Repository, Source and Data Manager
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	source, err := newSource(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market data source: %v", err)
	}
	manager, err := app.NewDataManager(cfg, appLogger, source, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize data manager: %v", err)
	}

	// 5. Backfill repository-first: already stored windows are not refetched
	fmt.Printf("Backfilling %d symbols %s from %s to %s via %s...\n",
		len(symbols), timeframe, start.Format(time.RFC3339), end.Format(time.RFC3339), source.Name())

	results, fetchErrs, err := manager.GetBacktestData(context.Background(), symbols, start, end, timeframe)
	if err != nil {
		log.Fatalf("Error backfilling: %v", err)
	}

	sort.Strings(symbols)
	for _, symbol := range symbols {
		if symErr, failed := fetchErrs[symbol]; failed {
			fmt.Printf("FAILED %-8s %v\n", symbol, symErr)
			continue
		}
		fmt.Printf("OK     %-8s %d bars\n", symbol, len(results[symbol]))
	}

	// 6. Report totals and database state
	stats, err := manager.DatabaseStats(context.Background())
	if err != nil {
		log.Fatalf("Error reading database stats: %v", err)
	}
	fmt.Printf("Database now holds %d bars across %d symbols\n", stats.TotalBars, stats.Symbols)

	if len(fetchErrs) > 0 {
		fmt.Printf("%d of %d symbols failed\n", len(fetchErrs), len(symbols))
		os.Exit(1)
	}
}

func splitSymbols(value string) []string {
	var symbols []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			symbols = append(symbols, trimmed)
		}
	}
	return symbols
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not RFC3339 or YYYY-MM-DD", value)
}

func newSource(cfg *config.Config, appLogger ports.Logger) (ports.MarketDataSource, error) {
	kind, err := domain.ParseSourceKind(cfg.Source)
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.SourceMock:
		return mock.New(mock.Config{Logger: appLogger, Seed: cfg.MockSeed})
	case domain.SourcePolygon:
		return polygon.New(polygon.Config{
			APIKey:  cfg.PolygonAPIKey,
			BaseURL: cfg.PolygonBaseURL,
			Timeout: cfg.RequestTimeout,
			Logger:  appLogger,
		})
	case domain.SourceBinance:
		return binanceclient.New(binanceclient.Config{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceSecretKey,
			UseTestnet: cfg.BinanceTestnet,
			Logger:     appLogger,
		})
	default:
		return nil, fmt.Errorf("source %q cannot back a backfill run", kind)
	}
}
