package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/danielortiz-dev/vendique-backend/internal/inventory"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

type fakeSweeper struct {
	result *inventory.SweepResult
	err    error
	called int
}

func (f *fakeSweeper) CleanupExpiredReservations(ctx context.Context) (*inventory.SweepResult, error) {
	f.called++
	return f.result, f.err
}

func newReservationSweepJob(t *testing.T, sweeper *fakeSweeper) Job {
	t.Helper()
	job, err := NewReservationSweepJob(ReservationSweepJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sweeper: sweeper,
	})
	if err != nil {
		t.Fatalf("NewReservationSweepJob: %v", err)
	}
	return job
}

func TestReservationSweepJobRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{result: &inventory.SweepResult{GroupsExpired: 2, RowsExpired: 3, UnitsRestored: 9}}
	job := newReservationSweepJob(t, sweeper)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.called != 1 {
		t.Fatalf("expected sweeper called once, got %d", sweeper.called)
	}
}

func TestReservationSweepJobPropagatesError(t *testing.T) {
	sweeper := &fakeSweeper{
		result: &inventory.SweepResult{GroupsExpired: 1},
		err:    errors.New("boom"),
	}
	job := newReservationSweepJob(t, sweeper)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from a failed sweep")
	}
}

func TestReservationSweepJobRequiresDependencies(t *testing.T) {
	if _, err := NewReservationSweepJob(ReservationSweepJobParams{Sweeper: &fakeSweeper{}}); err == nil {
		t.Fatal("expected error without logger")
	}
	if _, err := NewReservationSweepJob(ReservationSweepJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})}); err == nil {
		t.Fatal("expected error without sweeper")
	}
}
