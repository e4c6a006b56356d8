package ports

import "context"

// Job is a unit of scheduled work. Jobs must be safe to run concurrently
// with other jobs.
type Job func()

// Scheduler defines the interface for running jobs on a cron-style schedule.
// Implementations recover panics escaping a job rather than letting them
// propagate. Injecting it keeps the application core testable without
// waiting on wall clock time.
type Scheduler interface {
	// Schedule registers job to run per the cron spec and returns an
	// entry ID usable with Remove.
	Schedule(spec string, job Job) (int, error)
	// Remove deregisters a previously scheduled job. Removing an unknown
	// ID is a no-op.
	Remove(id int)
	// Start begins running scheduled jobs in the background.
	Start()
	// Stop halts scheduling and waits for running jobs to finish, or for
	// ctx to expire, whichever comes first.
	Stop(ctx context.Context) error
}
