package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/internal/payments/reservation"
	"github.com/voltcart/voltcart-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DomainSweeper releases a vertical's expired pending holds.
type DomainSweeper interface {
	SweepExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

// ReservationSweepJobParams configure the expired-hold sweeper.
type ReservationSweepJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Sweepers []DomainSweeper
}

// NewReservationSweepJob builds the cron job that releases soft locks whose
// expiry the request path never got around to observing.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	return &reservationSweepJob{
		logg:       params.Logger,
		db:         params.DB,
		sweepers:   params.Sweepers,
		stockSweep: reservation.SweepExpired,
		now:        time.Now,
	}, nil
}

type reservationSweepJob struct {
	logg       *logger.Logger
	db         txRunner
	sweepers   []DomainSweeper
	stockSweep func(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
	now        func() time.Time
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error

	var released int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		released, txErr = j.stockSweep(ctx, tx, now)
		return txErr
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep stock reservations: %w", err))
	} else if released > 0 {
		j.logg.Info(j.logg.WithField(ctx, "released", released), "released expired stock reservations")
	}

	for _, sweeper := range j.sweepers {
		if sweeper == nil {
			continue
		}
		var swept int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var txErr error
			swept, txErr = sweeper.SweepExpired(ctx, tx, now)
			return txErr
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep domain holds: %w", err))
			continue
		}
		if swept > 0 {
			j.logg.Info(j.logg.WithField(ctx, "swept", swept), "cancelled expired pending orders")
		}
	}

	return multierr.Combine(errs...)
}
