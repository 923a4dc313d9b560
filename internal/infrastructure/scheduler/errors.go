package scheduler

import "errors"

var (
	// ErrJobNotFound is returned when a job name was never registered
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when a job name is registered twice
	ErrDuplicateJob = errors.New("job already registered")

	// ErrInvalidSchedule is returned for cron expressions the parser rejects
	ErrInvalidSchedule = errors.New("invalid cron schedule")

	// ErrJobAlreadyRunning is returned by RunNow while the same job is in flight
	ErrJobAlreadyRunning = errors.New("job already running")
)
