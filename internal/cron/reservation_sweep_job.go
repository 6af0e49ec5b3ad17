package cron

import (
	"context"
	"fmt"

	"github.com/danielortiz-dev/vendique-backend/internal/inventory"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

// ReservationSweepJobParams configure the expired-reservation sweep.
type ReservationSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper reservationSweeper
}

type reservationSweeper interface {
	CleanupExpiredReservations(ctx context.Context) (*inventory.SweepResult, error)
}

// NewReservationSweepJob builds the job that expires overdue reservation
// groups and restores their held stock.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("inventory sweeper required")
	}
	return &reservationSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
	}, nil
}

type reservationSweepJob struct {
	logg    *logger.Logger
	sweeper reservationSweeper
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.CleanupExpiredReservations(ctx)
	if result != nil {
		// A partial sweep still reports what it managed to expire.
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"groups_expired": result.GroupsExpired,
			"rows_expired":   result.RowsExpired,
			"units_restored": result.UnitsRestored,
		})
		j.logg.Info(logCtx, "reservation sweep complete")
	}
	if err != nil {
		return fmt.Errorf("reservation sweep: %w", err)
	}
	return nil
}
