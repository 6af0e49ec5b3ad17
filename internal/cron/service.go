package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/metrics"
)

const defaultInterval = time.Minute

// ServiceParams collect what the scheduler needs to run.
type ServiceParams struct {
	Logger   *logger.Logger
	Lock     Lock
	Registry *Registry
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service ticks once per interval under a distributed lock and runs every
// registered job whose cadence has come due. lastRun is process local, so
// after a failover the new leader may run a long-cadence job early; jobs
// must tolerate that by being idempotent.
type Service struct {
	logg     *logger.Logger
	lock     Lock
	registry *Registry
	metrics  *metrics.CronJobMetrics

	interval time.Duration
	lastRun  map[string]time.Time
	now      func() time.Time
}

// NewService wires a scheduler. Registry defaults to an empty one and
// Interval to defaultInterval.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Lock == nil:
		return nil, errors.New("lock is required")
	}

	svc := &Service{
		logg:     params.Logger,
		lock:     params.Lock,
		registry: params.Registry,
		metrics:  params.Metrics,
		interval: params.Interval,
		lastRun:  make(map[string]time.Time),
		now:      time.Now,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run executes cycles until the context is canceled. The first cycle runs
// immediately instead of waiting out the interval.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// runCycle takes the lock and runs the due jobs, reporting their combined
// failures. One failing job never blocks the rest, and a failed job stays
// due so it retries on the next cycle rather than waiting out its cadence.
func (s *Service) runCycle(ctx context.Context) error {
	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !ok {
		s.logg.Info(ctx, "another worker instance holds the lock; skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	entries := s.registry.Entries()
	due := s.due(entries)
	cycleCtx := s.logg.WithFields(ctx, map[string]any{
		"jobs_registered": len(entries),
		"jobs_due":        len(due),
	})
	if len(due) == 0 {
		s.logg.Info(cycleCtx, "cron cycle idle")
		return nil
	}

	s.logg.Info(cycleCtx, "cron cycle starting")
	var errs error
	for _, entry := range due {
		if err := s.runJob(ctx, entry.Job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", entry.Job.Name(), err))
			continue
		}
		s.lastRun[entry.Job.Name()] = s.now()
	}
	s.logg.Info(cycleCtx, "cron cycle complete")
	return errs
}

// due filters entries down to the jobs whose cadence has elapsed since their
// last successful run.
func (s *Service) due(entries []ScheduledJob) []ScheduledJob {
	now := s.now()
	due := make([]ScheduledJob, 0, len(entries))
	for _, entry := range entries {
		if entry.Every <= 0 {
			due = append(due, entry)
			continue
		}
		last, ran := s.lastRun[entry.Job.Name()]
		if !ran || now.Sub(last) >= entry.Every {
			due = append(due, entry)
		}
	}
	return due
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	s.logg.Info(jobCtx, "job start")

	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveDuration(job.Name(), duration)
	}

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncFailure(job.Name())
		}
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	if s.metrics != nil {
		s.metrics.IncSuccess(job.Name())
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
