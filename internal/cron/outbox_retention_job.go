package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

// Dead-letter rows outlive published events: they are the only remaining
// trace of an event that never reached the broker.
const (
	defaultEventRetentionDays = 30
	defaultDLQRetentionDays   = 90
	retentionMinAttempts      = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the nightly prune of delivered outbox
// rows and aged dead-letter rows. Zero retention values fall back to the
// package defaults.
type OutboxRetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Events    outboxRetentionRepo
	DLQ       dlqRetentionRepo
	EventDays int
	DLQDays   int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Events == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.DLQ == nil:
		return nil, fmt.Errorf("dlq repository required")
	}

	job := &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		events:    params.Events,
		dlq:       params.DLQ,
		eventDays: params.EventDays,
		dlqDays:   params.DLQDays,
		now:       time.Now,
	}
	if job.eventDays <= 0 {
		job.eventDays = defaultEventRetentionDays
	}
	if job.dlqDays <= 0 {
		job.dlqDays = defaultDLQRetentionDays
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	events    outboxRetentionRepo
	dlq       dlqRetentionRepo
	eventDays int
	dlqDays   int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes both tables in one transaction. Published events past the event
// cutoff go first, along with unpublished rows that exhausted their attempts;
// dead-letter rows fall off after the longer DLQ window.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.AddDate(0, 0, -j.eventDays)
	dlqCutoff := now.AddDate(0, 0, -j.dlqDays)

	var eventsDeleted, dlqDeleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		eventsDeleted, err = j.events.DeletePublishedBefore(ctx, tx, eventCutoff, retentionMinAttempts)
		if err != nil {
			return fmt.Errorf("prune outbox events: %w", err)
		}
		dlqDeleted, err = j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff)
		if err != nil {
			return fmt.Errorf("prune outbox dlq: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":   eventCutoff,
		"dlq_cutoff":     dlqCutoff,
		"events_deleted": eventsDeleted,
		"dlq_deleted":    dlqDeleted,
	})
	j.logg.Info(logCtx, "outbox retention sweep complete")
	return nil
}
