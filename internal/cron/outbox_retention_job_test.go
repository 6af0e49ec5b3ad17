package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

type fakeEventRetentionRepo struct {
	cutoff      time.Time
	minAttempts int
	calls       int
	deleted     int64
	err         error
}

func (f *fakeEventRetentionRepo) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	return f.deleted, f.err
}

type fakeDLQRetentionRepo struct {
	cutoff  time.Time
	calls   int
	deleted int64
	err     error
}

func (f *fakeDLQRetentionRepo) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return f.deleted, f.err
}

type passThroughTxRunner struct{}

func (passThroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newRetentionJob(t *testing.T, events *fakeEventRetentionRepo, dlq *fakeDLQRetentionRepo) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     passThroughTxRunner{},
		Events: events,
		DLQ:    dlq,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

func TestOutboxRetentionPrunesBothTables(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	events := &fakeEventRetentionRepo{deleted: 12}
	dlq := &fakeDLQRetentionRepo{deleted: 3}
	job := newRetentionJob(t, events, dlq)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if events.calls != 1 || dlq.calls != 1 {
		t.Fatalf("expected one call to each repo, got events=%d dlq=%d", events.calls, dlq.calls)
	}
	if want := now.AddDate(0, 0, -defaultEventRetentionDays); !events.cutoff.Equal(want) {
		t.Fatalf("expected event cutoff %s, got %s", want, events.cutoff)
	}
	if want := now.AddDate(0, 0, -defaultDLQRetentionDays); !dlq.cutoff.Equal(want) {
		t.Fatalf("expected dlq cutoff %s, got %s", want, dlq.cutoff)
	}
	if events.minAttempts != retentionMinAttempts {
		t.Fatalf("expected min attempts %d, got %d", retentionMinAttempts, events.minAttempts)
	}
}

func TestOutboxRetentionHonorsConfiguredWindows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	events := &fakeEventRetentionRepo{}
	dlq := &fakeDLQRetentionRepo{}
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:        passThroughTxRunner{},
		Events:    events,
		DLQ:       dlq,
		EventDays: 7,
		DLQDays:   14,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.AddDate(0, 0, -7); !events.cutoff.Equal(want) {
		t.Fatalf("expected event cutoff %s, got %s", want, events.cutoff)
	}
	if want := now.AddDate(0, 0, -14); !dlq.cutoff.Equal(want) {
		t.Fatalf("expected dlq cutoff %s, got %s", want, dlq.cutoff)
	}
}

func TestOutboxRetentionStopsWhenEventPruneFails(t *testing.T) {
	events := &fakeEventRetentionRepo{err: errors.New("deadlock")}
	dlq := &fakeDLQRetentionRepo{}
	job := newRetentionJob(t, events, dlq)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "prune outbox events") {
		t.Fatalf("unexpected error %v", err)
	}
	if dlq.calls != 0 {
		t.Fatalf("expected dlq prune to be skipped, got %d calls", dlq.calls)
	}
}

func TestOutboxRetentionReportsDLQPruneFailure(t *testing.T) {
	events := &fakeEventRetentionRepo{}
	dlq := &fakeDLQRetentionRepo{err: errors.New("timeout")}
	job := newRetentionJob(t, events, dlq)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "prune outbox dlq") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestOutboxRetentionRequiresCollaborators(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	base := OutboxRetentionJobParams{
		Logger: logg,
		DB:     passThroughTxRunner{},
		Events: &fakeEventRetentionRepo{},
		DLQ:    &fakeDLQRetentionRepo{},
	}

	cases := map[string]func(p OutboxRetentionJobParams) OutboxRetentionJobParams{
		"logger": func(p OutboxRetentionJobParams) OutboxRetentionJobParams { p.Logger = nil; return p },
		"db":     func(p OutboxRetentionJobParams) OutboxRetentionJobParams { p.DB = nil; return p },
		"events": func(p OutboxRetentionJobParams) OutboxRetentionJobParams { p.Events = nil; return p },
		"dlq":    func(p OutboxRetentionJobParams) OutboxRetentionJobParams { p.DLQ = nil; return p },
	}
	for name, strip := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewOutboxRetentionJob(strip(base)); err == nil {
				t.Fatal("expected constructor error")
			}
		})
	}
}
