package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/SirQuantumZero/Data-Manager/config"
	"github.com/SirQuantumZero/Data-Manager/internal/app"
	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

const (
	defaultRequestTimeout = 30 * time.Second
	shutdownGrace         = 5 * time.Second
)

// Server exposes the data manager over HTTP.
type Server struct {
	addr     string
	manager  *app.DataManager
	ingestor *app.Ingestor // May be nil when no scheduler is configured
	logger   ports.Logger
	timeout  time.Duration
	srv      *http.Server
}

// Config holds the dependencies for the HTTP server.
type Config struct {
	Addr           string
	Manager        *app.DataManager
	Ingestor       *app.Ingestor // Optional; task endpoints 503 without it
	Logger         ports.Logger
	RequestTimeout time.Duration
}

// New creates a new server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("data manager is required for server")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for server")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required for server")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Server{
		addr:     cfg.Addr,
		manager:  cfg.Manager,
		ingestor: cfg.Ingestor,
		logger:   cfg.Logger,
		timeout:  timeout,
	}, nil
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	mux.HandleFunc("GET /cache/symbols", s.handleCacheSymbols)
	mux.HandleFunc("DELETE /cache/{symbol}", s.handleCacheInvalidate)
	mux.HandleFunc("GET /market-data/{symbol}", s.handleMarketData)
	mux.HandleFunc("POST /market-data/batch", s.handleBatch)
	mux.HandleFunc("POST /backtest", s.handleBacktest)
	mux.HandleFunc("GET /database/stats", s.handleDatabaseStats)
	mux.HandleFunc("DELETE /database/bars", s.handlePrune)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("POST /tasks", s.handleAddTask)
	mux.HandleFunc("DELETE /tasks/{name}", s.handleRemoveTask)

	s.srv = &http.Server{
		Addr:    s.addr,
		Handler: s.withRequestContext(mux),
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(context.Background(), err, "Server: shutdown did not finish cleanly")
		}
	}()

	s.logger.Info(ctx, "Server: listening", map[string]interface{}{"addr": s.addr})
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withRequestContext tags every request with an id, bounds it with the
// configured timeout and logs its completion.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCtx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		started := time.Now()

		next.ServeHTTP(w, r.WithContext(reqCtx))

		s.logger.Debug(reqCtx, "Server: request handled", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": reqID,
			"elapsed":    time.Since(started).String(),
		})
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.manager.HealthCheck(r.Context())
	status := "ok"
	if !health.CacheOK || !health.SourceOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"cache_ok":       health.CacheOK,
		"source_ok":      health.SourceOK,
		"uptime":         health.Uptime.String(),
		"total_requests": health.TotalRequests,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.CacheStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":            stats.Size,
		"hits":            stats.Hits,
		"misses":          stats.Misses,
		"tracked_symbols": stats.TrackedSymbols,
	})
}

func (s *Server) handleCacheSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": s.manager.CachedSymbols(),
	})
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	removed := s.manager.RefreshSymbol(symbol)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"removed": removed,
	})
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	start, end, timeframe, err := parseWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe.String(),
		"start":     start.UTC().Format(time.RFC3339),
		"end":       end.UTC().Format(time.RFC3339),
	}

	if store, _ := strconv.ParseBool(r.URL.Query().Get("store")); store {
		stored, err := s.manager.FetchAndStore(r.Context(), symbol, start, end, timeframe)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp["stored"] = stored
	}

	bars, err := s.manager.GetMarketData(r.Context(), symbol, start, end, timeframe)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp["count"] = len(bars)
	resp["bars"] = bars
	writeJSON(w, http.StatusOK, resp)
}

// windowRequest is the body shared by the batch and backtest endpoints.
type windowRequest struct {
	Symbols   []string `json:"symbols"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Timeframe string   `json:"timeframe"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	symbols, start, end, timeframe, err := decodeWindowRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results, fetchErrs, err := s.manager.GetBatchMarketData(r.Context(), symbols, start, end, timeframe)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"errors":  errStrings(fetchErrs),
	})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	symbols, start, end, timeframe, err := decodeWindowRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results, fetchErrs, err := s.manager.GetBacktestData(r.Context(), symbols, start, end, timeframe)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"errors":  errStrings(fetchErrs),
	})
}

func (s *Server) handleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.DatabaseStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"total_bars":      stats.TotalBars,
		"symbols":         stats.Symbols,
		"bars_per_symbol": stats.BarsPerSymbol,
	}
	if !stats.OldestBar.IsZero() {
		resp["oldest_bar"] = stats.OldestBar.UTC().Format(time.RFC3339)
		resp["newest_bar"] = stats.NewestBar.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	maxAge, err := time.ParseDuration(r.URL.Query().Get("max_age"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid max_age: %w", ports.ErrInvalidRequest, err))
		return
	}

	deleted, err := s.manager.PruneStoredData(r.Context(), maxAge)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		s.writeError(w, r, fmt.Errorf("%w: scheduler is not configured", ports.ErrConfigurationError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": s.ingestor.Tasks()})
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		s.writeError(w, r, fmt.Errorf("%w: scheduler is not configured", ports.ErrConfigurationError))
		return
	}

	var task config.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid task body: %w", ports.ErrInvalidRequest, err))
		return
	}
	if err := s.ingestor.AddTask(task); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"task": task.Name})
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		s.writeError(w, r, fmt.Errorf("%w: scheduler is not configured", ports.ErrConfigurationError))
		return
	}

	name := r.PathValue("name")
	if err := s.ingestor.RemoveTask(name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"task": name})
}

// --- Request Parsing Helpers ---

// timeLayouts are accepted for the start and end parameters, tried in order.
var timeLayouts = []string{time.RFC3339, "2006-01-02"}

func parseTimeParam(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ports.ErrInvalidRequest, name)
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not RFC3339 or YYYY-MM-DD", ports.ErrInvalidRequest, name, value)
}

// parseWindow extracts start, end and timeframe from the query string.
// The timeframe defaults to 1d.
func parseWindow(r *http.Request) (time.Time, time.Time, domain.Timeframe, error) {
	start, err := parseTimeParam(r.URL.Query().Get("start"), "start")
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	end, err := parseTimeParam(r.URL.Query().Get("end"), "end")
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}

	tfParam := r.URL.Query().Get("timeframe")
	if tfParam == "" {
		return start, end, domain.Timeframe1d, nil
	}
	timeframe, err := domain.ParseTimeframe(tfParam)
	if err != nil {
		return time.Time{}, time.Time{}, "", fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	return start, end, timeframe, nil
}

func decodeWindowRequest(r *http.Request) ([]string, time.Time, time.Time, domain.Timeframe, error) {
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, time.Time{}, time.Time{}, "", fmt.Errorf("%w: invalid request body: %w", ports.ErrInvalidRequest, err)
	}

	start, err := parseTimeParam(req.Start, "start")
	if err != nil {
		return nil, time.Time{}, time.Time{}, "", err
	}
	end, err := parseTimeParam(req.End, "end")
	if err != nil {
		return nil, time.Time{}, time.Time{}, "", err
	}

	timeframe := domain.Timeframe1d
	if req.Timeframe != "" {
		timeframe, err = domain.ParseTimeframe(req.Timeframe)
		if err != nil {
			return nil, time.Time{}, time.Time{}, "", fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
		}
	}
	return req.Symbols, start, end, timeframe, nil
}

// --- Response Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errStrings renders a per-symbol error map into response-safe strings.
func errStrings(errs map[string]error) map[string]string {
	out := make(map[string]string, len(errs))
	for sym, err := range errs {
		out[sym] = err.Error()
	}
	return out
}

// writeError maps sentinel errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, ports.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ports.ErrNoRepository), errors.Is(err, ports.ErrConfigurationError):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ports.ErrTimeout), errors.Is(err, ports.ErrContextCanceled):
		status = http.StatusGatewayTimeout
	case errors.Is(err, ports.ErrFetchExhausted),
		errors.Is(err, ports.ErrSourceUnavailable),
		errors.Is(err, ports.ErrConnectionFailed),
		errors.Is(err, ports.ErrRateLimited),
		errors.Is(err, ports.ErrValidationFailed),
		errors.Is(err, ports.ErrAuthenticationFailed),
		errors.Is(err, ports.ErrInvalidAPIKeys):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "Server: request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		})
	}
	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}
