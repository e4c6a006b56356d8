package cronsched

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

// Scheduler implements the ports.Scheduler interface using robfig/cron.
// Specs use the six-field form with a leading seconds column, and the
// @every duration shorthand is accepted as well. A panic escaping a job is
// recovered and logged instead of propagating.
type Scheduler struct {
	cron   *cron.Cron
	logger ports.Logger
}

// New creates a new cron-backed scheduler. Jobs do not run until Start is
// called.
func New(logger ports.Logger) (*Scheduler, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for scheduler")
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(chainLogger{logger: logger})),
		),
		logger: logger,
	}, nil
}

// Schedule registers job to run per the cron spec and returns its entry ID.
func (s *Scheduler) Schedule(spec string, job ports.Job) (int, error) {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("failed to schedule job with spec %q: %w", spec, err)
	}
	s.logger.Debug(context.Background(), "Job scheduled", map[string]interface{}{"spec": spec, "entryID": int(id)})
	return int(id), nil
}

// Remove deregisters a previously scheduled job.
func (s *Scheduler) Remove(id int) {
	s.cron.Remove(cron.EntryID(id))
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info(context.Background(), "Scheduler started", map[string]interface{}{"entries": len(s.cron.Entries())})
}

// Stop halts scheduling and waits for running jobs to finish, or for ctx
// to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info(ctx, "Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gave up waiting for running jobs: %w", ctx.Err())
	}
}

// chainLogger adapts ports.Logger to the cron.Logger interface the recovery
// wrapper logs through. Key/value pairs become one fields map.
type chainLogger struct {
	logger ports.Logger
}

func (l chainLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(context.Background(), "cron: "+msg, kvFields(keysAndValues))
}

func (l chainLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(context.Background(), err, "cron: "+msg, kvFields(keysAndValues))
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
