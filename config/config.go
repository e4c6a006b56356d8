package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/SirQuantumZero/Data-Manager/internal/adapters/logger" // Import the logger package for LogLevel
	"github.com/SirQuantumZero/Data-Manager/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Data Source
	Source string `envconfig:"DATA_SOURCE" default:"mock"` // mock, polygon, binance or database

	// Polygon API
	PolygonAPIKey  string `envconfig:"POLYGON_API_KEY"`
	PolygonBaseURL string `envconfig:"POLYGON_BASE_URL"` // Leave empty for the production endpoint

	// Binance API
	BinanceAPIKey    string `envconfig:"BINANCE_API_KEY"`
	BinanceSecretKey string `envconfig:"BINANCE_API_SECRET"`
	BinanceTestnet   bool   `envconfig:"BINANCE_TESTNET" default:"false"`

	// Mock source
	MockSeed int64 `envconfig:"MOCK_SEED" default:"0"` // 0 seeds from the clock

	// Fetch Pipeline
	CacheSize  int           `envconfig:"CACHE_SIZE" default:"1000"` // Max cached request windows
	CacheTTL   time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	BatchSize  int           `envconfig:"BATCH_SIZE" default:"100"` // Symbols fetched concurrently per batch
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"3"`  // Retries after the initial attempt
	BaseDelay  time.Duration `envconfig:"BASE_DELAY" default:"1s"`  // First backoff delay, doubled per attempt

	// HTTP Server
	HTTPAddr       string        `envconfig:"HTTP_ADDR" default:":8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// Database
	DBPath string `envconfig:"DB_PATH" default:"./data/market_data.db"`

	// Scheduled Ingestion
	TasksFile string `envconfig:"TASKS_FILE"` // Path to the YAML task definitions, empty disables the scheduler

	// Logging
	LogLevel logger.LogLevel `envconfig:"LOG_LEVEL" default:"INFO"` // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	var errs []string // Collect validation errors

	// Data source
	kind, err := domain.ParseSourceKind(cfg.Source)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DATA_SOURCE: %v", err))
	} else if kind == domain.SourcePolygon && cfg.PolygonAPIKey == "" {
		errs = append(errs, "POLYGON_API_KEY must be set when DATA_SOURCE is polygon")
	}

	// Fetch pipeline
	if cfg.CacheSize <= 0 {
		errs = append(errs, "CACHE_SIZE must be positive")
	}
	if cfg.CacheTTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive")
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, "BATCH_SIZE must be positive")
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES cannot be negative")
	}
	if cfg.BaseDelay <= 0 {
		errs = append(errs, "BASE_DELAY must be positive")
	}

	// HTTP server
	if cfg.HTTPAddr == "" {
		errs = append(errs, "HTTP_ADDR must be set")
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT must be positive")
	}

	// Database
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}
