// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is the body of a scheduled job. ctx carries the job timeout.
type JobFunc func(ctx context.Context) error

// Job is a named unit of periodic work
type Job struct {
	Name string
	// Spec is a standard 5-field cron expression or a descriptor such as "@daily".
	Spec string
	Run  JobFunc
}

// Config holds scheduler configuration
type Config struct {
	JobTimeout time.Duration
	Location   *time.Location
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		JobTimeout: 10 * time.Minute,
		Location:   time.UTC,
	}
}

type registeredJob struct {
	Job
	entryID cron.EntryID
	running atomic.Bool
}

// CronScheduler triggers registered jobs on their cron schedules. A job whose
// previous run has not finished is skipped rather than queued.
type CronScheduler struct {
	config Config
	logger *zap.Logger
	cron   *cron.Cron

	// base is the parent context for job runs; Stop cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	jobs      map[string]*registeredJob
	isRunning bool
}

// NewCronScheduler creates a scheduler. Jobs must be registered before Start.
func NewCronScheduler(config Config, logger *zap.Logger) *CronScheduler {
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	logger = logger.Named("scheduler")
	base, cancel := context.WithCancel(context.Background())

	return &CronScheduler{
		config: config,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithChain(cron.Recover(cronLogger{logger.Sugar()})),
		),
		base:   base,
		cancel: cancel,
		jobs:   make(map[string]*registeredJob),
	}
}

// Register adds a job. The spec is validated immediately.
func (s *CronScheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}

	rj := &registeredJob{Job: job}
	id, err := s.cron.AddFunc(job.Spec, func() {
		if err := s.execute(rj); err != nil && !errors.Is(err, ErrJobAlreadyRunning) {
			s.logger.Debug("Scheduled job returned error", zap.String("job", rj.Name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%w %q for job %s: %v", ErrInvalidSchedule, job.Spec, job.Name, err)
	}
	rj.entryID = id
	s.jobs[job.Name] = rj

	s.logger.Info("Job registered", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

// Start starts the scheduler
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.cron.Start()

	s.logger.Info("Cron scheduler started",
		zap.Int("jobs", len(s.jobs)),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop stops triggering new runs and waits for running jobs or ctx,
// whichever comes first. In-flight jobs see their context cancelled.
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		s.logger.Info("Cron scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a registered job synchronously, outside its schedule
func (s *CronScheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	rj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.executeWith(ctx, rj)
}

// NextRun returns the next scheduled activation of a job. It is zero until
// the scheduler is started.
func (s *CronScheduler) NextRun(name string) (time.Time, error) {
	s.mu.Lock()
	rj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.cron.Entry(rj.entryID).Next, nil
}

// IsRunning reports whether the scheduler is started
func (s *CronScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *CronScheduler) execute(rj *registeredJob) error {
	return s.executeWith(s.base, rj)
}

func (s *CronScheduler) executeWith(parent context.Context, rj *registeredJob) error {
	if !rj.running.CompareAndSwap(false, true) {
		s.logger.Warn("Skipping job, previous run still in progress", zap.String("job", rj.Name))
		return ErrJobAlreadyRunning
	}
	defer rj.running.Store(false)

	ctx, cancel := context.WithTimeout(parent, s.config.JobTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("Job started", zap.String("job", rj.Name))

	err := rj.Run(ctx)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job", rj.Name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("Job completed",
		zap.String("job", rj.Name),
		zap.Duration("duration", duration),
	)
	return nil
}

// cronLogger adapts zap to cron.Logger for the panic recovery wrapper
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Infow(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
