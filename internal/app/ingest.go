package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/SirQuantumZero/Data-Manager/config"
	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

const (
	// runTimeout bounds one scheduled run end to end, all symbols included.
	runTimeout = 5 * time.Minute
	// runRetries is how many times a failed per-symbol ingestion is retried
	// within a run, on top of the retrying the fetch pipeline already does.
	runRetries uint64 = 2
)

// Ingestor registers ingestion tasks with the scheduler and executes them
// when they fire. Each run gets its own id, timeout and backoff policy.
type Ingestor struct {
	manager   *DataManager
	scheduler ports.Scheduler
	logger    ports.Logger

	mu    sync.Mutex // Protects tasks
	tasks map[string]taskEntry
}

// taskEntry is a registered task with its parsed, validated parameters.
type taskEntry struct {
	cfg       config.Task
	kind      domain.RequestKind
	timeframe domain.Timeframe
	lookback  time.Duration
	maxAge    time.Duration
	jobID     int
}

// NewIngestor creates a new ingestor instance.
func NewIngestor(manager *DataManager, scheduler ports.Scheduler, logger ports.Logger) (*Ingestor, error) {
	if manager == nil || scheduler == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Ingestor")
	}
	return &Ingestor{
		manager:   manager,
		scheduler: scheduler,
		logger:    logger,
		tasks:     make(map[string]taskEntry),
	}, nil
}

// AddTask validates a task definition and registers it with the scheduler.
// Task names are unique; durations arrive as strings from the YAML file and
// are parsed here, so a bad definition fails at registration, not at 3am.
func (ing *Ingestor) AddTask(task config.Task) error {
	if strings.TrimSpace(task.Name) == "" {
		return fmt.Errorf("%w: task name cannot be empty", ports.ErrInvalidRequest)
	}
	if strings.TrimSpace(task.Cron) == "" {
		return fmt.Errorf("%w: task %q has no cron spec", ports.ErrInvalidRequest, task.Name)
	}

	kind, err := domain.ParseRequestKind(task.Kind)
	if err != nil {
		return fmt.Errorf("%w: task %q: %w", ports.ErrInvalidRequest, task.Name, err)
	}

	entry := taskEntry{cfg: task, kind: kind}
	switch kind {
	case domain.RequestMarketData, domain.RequestBacktest:
		if len(task.Symbols) == 0 {
			return fmt.Errorf("%w: task %q needs at least one symbol", ports.ErrInvalidRequest, task.Name)
		}
		entry.timeframe, err = domain.ParseTimeframe(task.Timeframe)
		if err != nil {
			return fmt.Errorf("%w: task %q: %w", ports.ErrInvalidRequest, task.Name, err)
		}
		entry.lookback, err = time.ParseDuration(task.Lookback)
		if err != nil {
			return fmt.Errorf("%w: task %q has invalid lookback %q: %w", ports.ErrInvalidRequest, task.Name, task.Lookback, err)
		}
		if entry.lookback <= 0 {
			return fmt.Errorf("%w: task %q lookback must be positive", ports.ErrInvalidRequest, task.Name)
		}
	case domain.RequestPrune:
		entry.maxAge, err = time.ParseDuration(task.MaxAge)
		if err != nil {
			return fmt.Errorf("%w: task %q has invalid max_age %q: %w", ports.ErrInvalidRequest, task.Name, task.MaxAge, err)
		}
		if entry.maxAge <= 0 {
			return fmt.Errorf("%w: task %q max_age must be positive", ports.ErrInvalidRequest, task.Name)
		}
	}

	ing.mu.Lock()
	defer ing.mu.Unlock()
	if _, exists := ing.tasks[task.Name]; exists {
		return fmt.Errorf("%w: task %q is already registered", ports.ErrInvalidRequest, task.Name)
	}

	name := task.Name
	jobID, err := ing.scheduler.Schedule(task.Cron, func() { ing.runTask(name) })
	if err != nil {
		return fmt.Errorf("%w: task %q has invalid cron spec %q: %w", ports.ErrInvalidRequest, task.Name, task.Cron, err)
	}
	entry.jobID = jobID
	ing.tasks[task.Name] = entry

	ing.logger.Info(context.Background(), "AddTask: task registered", map[string]interface{}{
		"task": task.Name,
		"kind": string(kind),
		"cron": task.Cron,
	})
	return nil
}

// RemoveTask unregisters a task. The scheduler stops firing it immediately;
// a run already in flight finishes on its own.
func (ing *Ingestor) RemoveTask(name string) error {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	entry, ok := ing.tasks[name]
	if !ok {
		return fmt.Errorf("task %q: %w", name, ports.ErrNotFound)
	}
	ing.scheduler.Remove(entry.jobID)
	delete(ing.tasks, name)

	ing.logger.Info(context.Background(), "RemoveTask: task unregistered", map[string]interface{}{"task": name})
	return nil
}

// Tasks lists the registered task definitions sorted by name.
func (ing *Ingestor) Tasks() []config.Task {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	tasks := make([]config.Task, 0, len(ing.tasks))
	for _, entry := range ing.tasks {
		tasks = append(tasks, entry.cfg)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

// Start begins firing registered tasks.
func (ing *Ingestor) Start() {
	ing.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs until ctx expires.
func (ing *Ingestor) Stop(ctx context.Context) error {
	return ing.scheduler.Stop(ctx)
}

// runTask executes one firing of a registered task.
func (ing *Ingestor) runTask(name string) {
	op := "RunTask"

	ing.mu.Lock()
	entry, ok := ing.tasks[name]
	ing.mu.Unlock()
	if !ok {
		// Removed between firing and running
		return
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	started := time.Now()
	ing.logger.Info(ctx, op+": run started", map[string]interface{}{
		"task":   name,
		"run_id": runID,
		"kind":   string(entry.kind),
	})

	var err error
	switch entry.kind {
	case domain.RequestMarketData:
		err = ing.runMarketData(ctx, entry)
	case domain.RequestBacktest:
		err = ing.runBacktest(ctx, entry)
	case domain.RequestPrune:
		err = ing.runPrune(ctx, entry)
	}

	if err != nil {
		ing.logger.Error(ctx, err, op+": run failed", map[string]interface{}{
			"task":    name,
			"run_id":  runID,
			"elapsed": time.Since(started).String(),
		})
		return
	}
	ing.logger.Info(ctx, op+": run finished", map[string]interface{}{
		"task":    name,
		"run_id":  runID,
		"elapsed": time.Since(started).String(),
	})
}

// runMarketData ingests the lookback window for every task symbol. Symbols
// fail independently; each failed symbol is retried with exponential backoff
// before it counts as failed for the run.
func (ing *Ingestor) runMarketData(ctx context.Context, entry taskEntry) error {
	end := time.Now().UTC()
	start := end.Add(-entry.lookback)

	var failures []string
	for _, symbol := range entry.cfg.Symbols {
		sym := symbol
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), runRetries), ctx)
		notify := func(err error, next time.Duration) {
			ing.logger.Warn(ctx, "RunTask: symbol ingestion failed, backing off", map[string]interface{}{
				"task":   entry.cfg.Name,
				"symbol": sym,
				"delay":  next.String(),
				"error":  err.Error(),
			})
		}

		err := backoff.RetryNotify(func() error {
			_, err := ing.manager.FetchAndStore(ctx, sym, start, end, entry.timeframe)
			if err != nil && (errors.Is(err, ports.ErrInvalidRequest) || errors.Is(err, ports.ErrNoRepository)) {
				return backoff.Permanent(err)
			}
			return err
		}, bo, notify)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", sym, err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("ingestion failed for %d of %d symbols: %s",
			len(failures), len(entry.cfg.Symbols), strings.Join(failures, "; "))
	}
	return nil
}

// runBacktest warms the repository for the task symbols.
func (ing *Ingestor) runBacktest(ctx context.Context, entry taskEntry) error {
	end := time.Now().UTC()
	start := end.Add(-entry.lookback)

	results, fetchErrs, err := ing.manager.GetBacktestData(ctx, entry.cfg.Symbols, start, end, entry.timeframe)
	if err != nil {
		return err
	}
	if len(fetchErrs) > 0 {
		failures := make([]string, 0, len(fetchErrs))
		for sym, symErr := range fetchErrs {
			failures = append(failures, fmt.Sprintf("%s: %v", sym, symErr))
		}
		sort.Strings(failures)
		return fmt.Errorf("backtest warmup failed for %d of %d symbols: %s",
			len(fetchErrs), len(entry.cfg.Symbols), strings.Join(failures, "; "))
	}

	ing.logger.Debug(ctx, "RunTask: backtest data warmed", map[string]interface{}{
		"task":    entry.cfg.Name,
		"symbols": len(results),
	})
	return nil
}

// runPrune deletes stored bars older than the task's max age.
func (ing *Ingestor) runPrune(ctx context.Context, entry taskEntry) error {
	deleted, err := ing.manager.PruneStoredData(ctx, entry.maxAge)
	if err != nil {
		return err
	}
	ing.logger.Info(ctx, "RunTask: stored data pruned", map[string]interface{}{
		"task":    entry.cfg.Name,
		"deleted": deleted,
	})
	return nil
}
