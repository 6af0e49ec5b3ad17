package cron

import (
	"context"
	"time"
)

// Job is a unit of scheduled work. Name labels logs and metrics; Run does the
// work and reports failure.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// ScheduledJob pairs a job with how often it should run. Every == 0 means
// the job runs on every worker cycle.
type ScheduledJob struct {
	Job   Job
	Every time.Duration
}

// Registry holds the jobs a worker may run, in registration order. Duplicate
// names are dropped so a job cannot run twice in one cycle.
type Registry struct {
	entries []ScheduledJob
	names   map[string]struct{}
}

// NewRegistry builds a registry preloaded with every-cycle jobs.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: make(map[string]struct{})}
	r.Register(jobs...)
	return r
}

// Register appends jobs that run on every cycle.
func (r *Registry) Register(jobs ...Job) {
	for _, job := range jobs {
		r.Schedule(job, 0)
	}
}

// Schedule appends a job with its own cadence. Cadences at or below the
// worker cycle behave like every-cycle jobs. Nils and duplicate names are
// skipped.
func (r *Registry) Schedule(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if _, dup := r.names[job.Name()]; dup {
		return
	}
	r.names[job.Name()] = struct{}{}
	r.entries = append(r.entries, ScheduledJob{Job: job, Every: every})
}

// Entries returns a copy of the scheduled jobs in registration order.
func (r *Registry) Entries() []ScheduledJob {
	entries := make([]ScheduledJob, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, entry := range r.entries {
		jobs = append(jobs, entry.Job)
	}
	return jobs
}

// Names returns the registered job names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		names = append(names, entry.Job.Name())
	}
	return names
}
