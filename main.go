package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SirQuantumZero/Data-Manager/config"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/binanceclient"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/cronsched"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/dbsource"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/logger"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/mock"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/polygon"
	"github.com/SirQuantumZero/Data-Manager/internal/adapters/sqlite"
	"github.com/SirQuantumZero/Data-Manager/internal/api"
	"github.com/SirQuantumZero/Data-Manager/internal/app"
	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewSlogLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Market Data Source
	source, err := newSource(cfg, appLogger, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market data source")
		log.Fatalf("FATAL: Failed to initialize market data source: %v", err)
	}
	appLogger.Info(context.Background(), "Market data source initialized", map[string]interface{}{"source": source.Name()})

	// 5. Initialize Data Manager
	manager, err := app.NewDataManager(cfg, appLogger, source, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize data manager")
		log.Fatalf("FATAL: Failed to initialize data manager: %v", err)
	}
	appLogger.Info(context.Background(), "Data manager initialized")

	// 6. Initialize Scheduled Ingestion (optional)
	var ingestor *app.Ingestor
	if cfg.TasksFile != "" {
		tasks, err := config.LoadTasks(cfg.TasksFile)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to load ingestion tasks")
			log.Fatalf("FATAL: Failed to load ingestion tasks: %v", err)
		}

		scheduler, err := cronsched.New(appLogger)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize scheduler")
			log.Fatalf("FATAL: Failed to initialize scheduler: %v", err)
		}
		ingestor, err = app.NewIngestor(manager, scheduler, appLogger)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ingestor")
			log.Fatalf("FATAL: Failed to initialize ingestor: %v", err)
		}
		for _, task := range tasks {
			if err := ingestor.AddTask(task); err != nil {
				appLogger.Error(context.Background(), err, "FATAL: Failed to register ingestion task")
				log.Fatalf("FATAL: Failed to register ingestion task %q: %v", task.Name, err)
			}
		}
		ingestor.Start()
		appLogger.Info(context.Background(), "Scheduled ingestion started", map[string]interface{}{"tasks": len(tasks)})
	}

	// 7. Start the HTTP Server
	server, err := api.New(api.Config{
		Addr:           cfg.HTTPAddr,
		Manager:        manager,
		Ingestor:       ingestor,
		Logger:         appLogger,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "HTTP server exited with error")
		log.Fatalf("FATAL: HTTP server exited with error: %v", err)
	}

	// 8. Drain the scheduler before exiting
	if ingestor != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ingestor.Stop(stopCtx); err != nil {
			appLogger.Error(context.Background(), err, "Scheduler did not stop cleanly")
		}
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// newSource builds the configured market data source adapter.
func newSource(cfg *config.Config, appLogger ports.Logger, repo ports.BarRepository) (ports.MarketDataSource, error) {
	kind, err := domain.ParseSourceKind(cfg.Source)
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.SourceMock:
		return mock.New(mock.Config{
			Logger: appLogger,
			Seed:   cfg.MockSeed,
		})
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
		return dbsource.New(dbsource.Config{
			Repository: repo,
			Logger:     appLogger,
		})
	default:
		return nil, fmt.Errorf("unhandled source kind %q", kind)
	}
}
