package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.BarRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/market_data.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS market_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		vwap REAL DEFAULT NULL,
		transactions INTEGER DEFAULT NULL,
		source TEXT NOT NULL DEFAULT 'UNKNOWN',
		UNIQUE (symbol, timeframe, timestamp)
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_market_data_symbol_tf_ts ON market_data (symbol, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_market_data_timestamp ON market_data (timestamp);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w: %w", ports.ErrDBConnection, err)
	}
	return nil
}

// --- BarRepository Implementation ---

// StoreBars upserts the given bars under timeframe inside a single
// transaction and returns the number written. Bars sharing a
// (symbol, timeframe, timestamp) key with an existing row replace it.
// Timestamps are normalized to UTC before storage; range queries rely on that.
func (r *Repository) StoreBars(ctx context.Context, timeframe domain.Timeframe, bars []*domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	if !timeframe.IsValid() {
		return 0, fmt.Errorf("cannot store bars under timeframe %q: %w", timeframe, ports.ErrInvalidInterval)
	}

	const query = `
	INSERT INTO market_data (symbol, timeframe, timestamp, open, high, low, close, volume, vwap, transactions, source)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume,
		vwap = excluded.vwap,
		transactions = excluded.transactions,
		source = excluded.source`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare bar upsert: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	stored := 0
	for _, bar := range bars {
		var vwap sql.NullFloat64
		if bar.VWAP != nil {
			vwap = sql.NullFloat64{Float64: *bar.VWAP, Valid: true}
		}
		var transactions sql.NullInt64
		if bar.Transactions != nil {
			transactions = sql.NullInt64{Int64: *bar.Transactions, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			bar.Symbol, string(timeframe), bar.Timestamp.UTC(),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
			vwap, transactions, bar.Source)
		if err != nil {
			return 0, fmt.Errorf("failed to store bar for %s at %s: %w: %w",
				bar.Symbol, bar.Timestamp.Format(time.RFC3339), ports.ErrUpdateFailed, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bar upsert: %w: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Bars stored", map[string]interface{}{"symbol": bars[0].Symbol, "count": stored})
	return stored, nil
}

// FindBars retrieves the stored bars for symbol covering [start, end] at
// the given timeframe, ordered by timestamp ascending.
func (r *Repository) FindBars(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error) {
	const query = `
	SELECT symbol, timeframe, timestamp, open, high, low, close, volume, vwap, transactions, source
	FROM market_data
	WHERE symbol = ? AND timeframe = ? AND timestamp BETWEEN ? AND ?
	ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, string(timeframe), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	bars := make([]*domain.Bar, 0)
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar during FindBars: %w: %w", ports.ErrQueryFailed, err)
		}
		bars = append(bars, bar)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return bars, nil
}

// LatestTimestamp reports the newest stored bar timestamp for symbol at the
// given timeframe. Returns the zero time when nothing is stored.
func (r *Repository) LatestTimestamp(ctx context.Context, symbol string, timeframe domain.Timeframe) (time.Time, error) {
	const query = `
	SELECT timestamp FROM market_data
	WHERE symbol = ? AND timeframe = ?
	ORDER BY timestamp DESC LIMIT 1`

	var ts time.Time
	err := r.db.QueryRowContext(ctx, query, symbol, string(timeframe)).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil // Not an error, just nothing stored yet
		}
		return time.Time{}, fmt.Errorf("failed to query latest timestamp for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return ts.UTC(), nil
}

// DeleteOlderThan removes all bars with timestamps before cutoff and
// returns the number deleted.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM market_data WHERE timestamp < ?`

	result, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete bars before %s: %w: %w", cutoff.Format(time.RFC3339), ports.ErrDeleteFailed, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for delete: %w: %w", ports.ErrDeleteFailed, err)
	}
	r.logger.Info(ctx, "Old bars deleted", map[string]interface{}{"cutoff": cutoff.UTC().Format(time.RFC3339), "deleted": deleted})
	return deleted, nil
}

// Stats summarizes the stored market data.
func (r *Repository) Stats(ctx context.Context) (*ports.RepositoryStats, error) {
	stats := &ports.RepositoryStats{BarsPerSymbol: make(map[string]int64)}

	const perSymbolQuery = `SELECT symbol, COUNT(*) FROM market_data GROUP BY symbol`
	rows, err := r.db.QueryContext(ctx, perSymbolQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query per-symbol counts: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var count int64
		if err := rows.Scan(&symbol, &count); err != nil {
			return nil, fmt.Errorf("failed to scan per-symbol count: %w: %w", ports.ErrQueryFailed, err)
		}
		stats.BarsPerSymbol[symbol] = count
		stats.TotalBars += count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating per-symbol counts: %w: %w", ports.ErrQueryFailed, err)
	}
	stats.Symbols = len(stats.BarsPerSymbol)

	if stats.TotalBars == 0 {
		return stats, nil
	}

	// Select the column directly so the driver scans it as a time.Time.
	const oldestQuery = `SELECT timestamp FROM market_data ORDER BY timestamp ASC LIMIT 1`
	if err := r.db.QueryRowContext(ctx, oldestQuery).Scan(&stats.OldestBar); err != nil {
		return nil, fmt.Errorf("failed to query oldest bar timestamp: %w: %w", ports.ErrQueryFailed, err)
	}
	const newestQuery = `SELECT timestamp FROM market_data ORDER BY timestamp DESC LIMIT 1`
	if err := r.db.QueryRowContext(ctx, newestQuery).Scan(&stats.NewestBar); err != nil {
		return nil, fmt.Errorf("failed to query newest bar timestamp: %w: %w", ports.ErrQueryFailed, err)
	}
	stats.OldestBar = stats.OldestBar.UTC()
	stats.NewestBar = stats.NewestBar.UTC()

	return stats, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanBar scans a row into a domain.Bar struct.
func scanBar(s scanner) (*domain.Bar, error) {
	b := &domain.Bar{}
	var timeframe string
	var vwap sql.NullFloat64
	var transactions sql.NullInt64
	err := s.Scan(
		&b.Symbol, &timeframe, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close,
		&b.Volume, &vwap, &transactions, &b.Source)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	b.Timestamp = b.Timestamp.UTC()
	if vwap.Valid {
		b.VWAP = &vwap.Float64
	}
	if transactions.Valid {
		b.Transactions = &transactions.Int64
	}
	return b, nil
}
