package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/SirQuantumZero/Data-Manager/config"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/binanceclient"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/dbsource"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/logger"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/mock"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/polygon"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/sqlite"
	"github.com/SirQuantumZero/Data-Manager/internal/app"
	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
	"github.com/SirQuantumZero/Data-Manager/internal/utils"
)

var (
	symbolFlag    = flag.String("symbol", "", "ticker symbol to fetch (required)")
	startFlag     = flag.String("start", "", "window start, YYYY-MM-DD or RFC3339 (required)")
	endFlag       = flag.String("end", "", "window end, YYYY-MM-DD or RFC3339 (defaults to now)")
	timeframeFlag = flag.String("timeframe", "1d", "bar timeframe (1m, 5m, 15m, 30m, 1h, 1d, 1w)")
	sourceFlag    = flag.String("source", "", "data source override (mock, polygon, binance, database)")
	storeFlag     = flag.Bool("store", false, "persist the fetched bars to the database")
	csvFlag       = flag.String("csv", "", "write the fetched bars to this CSV file")
)

func main() {
	flag.Parse()
	if *symbolFlag == "" || *startFlag == "" {
		flag.Usage()
		log.Fatalf("FATAL: -symbol and -start are required")
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

	// 4. Initialize Repository when persistence is involved
	kind, err := domain.ParseSourceKind(cfg.Source)
	if err != nil {
		log.Fatalf("FATAL: Invalid source: %v", err)
	}
	var repo ports.BarRepository
	if *storeFlag || kind == domain.SourceDatabase {
		sqlRepo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
		}
		defer sqlRepo.Close()
		repo = sqlRepo
	}

	// 5. Initialize Source and Data Manager
	source, err := newSource(cfg, kind, appLogger, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market data source: %v", err)
	}
	manager, err := app.NewDataManager(cfg, appLogger, source, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize data manager: %v", err)
	}

	// 6. Fetch
	ctx := context.Background()
	fmt.Printf("Fetching %s %s from %s to %s via %s...\n",
		*symbolFlag, timeframe, start.Format(time.RFC3339), end.Format(time.RFC3339), source.Name())

	if *storeFlag {
		stored, err := manager.FetchAndStore(ctx, *symbolFlag, start, end, timeframe)
		if err != nil {
			log.Fatalf("Error fetching and storing bars: %v", err)
		}
		fmt.Printf("Stored %d bars\n", stored)
	}

	bars, err := manager.GetMarketData(ctx, *symbolFlag, start, end, timeframe)
	if err != nil {
		log.Fatalf("Error fetching bars: %v", err)
	}
	printSummary(bars)

	// 7. Export
	if *csvFlag != "" {
		if err := utils.WriteBarsToCSV(bars, *csvFlag); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		fmt.Printf("Saved to %s\n", *csvFlag)
	}
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not RFC3339 or YYYY-MM-DD", value)
}

func printSummary(bars []*domain.Bar) {
	fmt.Printf("Fetched %d bars\n", len(bars))
	if len(bars) == 0 {
		return
	}
	first, last := bars[0], bars[len(bars)-1]
	movement := (last.Close - first.Open) / first.Open * 100
	fmt.Printf("  first: %s  open=%.4f\n", first.Timestamp.Format(time.RFC3339), first.Open)
	fmt.Printf("  last:  %s  close=%.4f\n", last.Timestamp.Format(time.RFC3339), last.Close)
	fmt.Printf("  movement over window: %+.2f%%\n", movement)
}

func newSource(cfg *config.Config, kind domain.SourceKind, appLogger ports.Logger, repo ports.BarRepository) (ports.MarketDataSource, error) {
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
	case domain.SourceDatabase:
		return dbsource.New(dbsource.Config{Repository: repo, Logger: appLogger})
	default:
		return nil, fmt.Errorf("unhandled source kind %q", kind)
	}
}
