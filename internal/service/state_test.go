package service

import (
	"context"
	"testing"
	"time"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []models.BookingStatus{
	models.BookingPending,
	models.BookingConfirmed,
	models.BookingActive,
	models.BookingCompleted,
	models.BookingCancelled,
}

type transition struct {
	action Action
	run    func(ctx context.Context, f *fixture, id int64) (*models.Booking, error)
	// result is the status after a legal transition.
	result func(from models.BookingStatus) models.BookingStatus
}

func same(from models.BookingStatus) models.BookingStatus { return from }

func to(s models.BookingStatus) func(models.BookingStatus) models.BookingStatus {
	return func(models.BookingStatus) models.BookingStatus { return s }
}

var transitions = []transition{
	{ActionConfirm, func(ctx context.Context, f *fixture, id int64) (*models.Booking, error) {
		return f.bookings.ConfirmBooking(ctx, id)
	}, to(models.BookingConfirmed)},
	{ActionCheckIn, func(ctx context.Context, f *fixture, id int64) (*models.Booking, error) {
		return f.bookings.CheckIn(ctx, id, testUser)
	}, to(models.BookingActive)},
	{ActionCheckOut, func(ctx context.Context, f *fixture, id int64) (*models.Booking, error) {
		return f.bookings.CheckOut(ctx, id, testUser)
	}, to(models.BookingCompleted)},
	{ActionExtend, func(ctx context.Context, f *fixture, id int64) (*models.Booking, error) {
		return f.bookings.ExtendBooking(ctx, id, testUser, mondayEleven.Add(time.Hour))
	}, same},
	{ActionCancel, func(ctx context.Context, f *fixture, id int64) (*models.Booking, error) {
		return f.bookings.CancelBooking(ctx, id, testUser, "table")
	}, to(models.BookingCancelled)},
	{ActionRegenerate, func(ctx context.Context, f *fixture, id int64) (*models.Booking, error) {
		return f.bookings.RegenerateAccessCode(ctx, id, testUser)
	}, same},
	{ActionRefund, func(ctx context.Context, f *fixture, id int64) (*models.Booking, error) {
		res, err := f.payments.RefundBooking(ctx, id, testUser, nil, "")
		if err != nil {
			return nil, err
		}
		return res.Booking, nil
	}, to(models.BookingCancelled)},
}

func TestTransitionTable(t *testing.T) {
	for _, tr := range transitions {
		for _, from := range allStatuses {
			legal := from.In(allowedFrom[tr.action]...)
			t.Run(string(tr.action)+"/"+string(from), func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()
				created := f.create(t, mondayNine, mondayEleven)
				before := f.forceStatus(t, created.ID, from)
				// inside the check-in window, before start
				f.clock.Set(mondayNine.Add(-30 * time.Minute))

				got, err := tr.run(ctx, f, created.ID)
				after := f.reload(t, created.ID)

				if !legal {
					require.Error(t, err)
					assert.Equal(t, errs.KindValidation, errs.KindOf(err))
					assert.Contains(t, err.Error(), string(from))
					assert.Equal(t, before.Version, after.Version, "rejected transitions write nothing")
					assert.Equal(t, models.UnitAvailable, f.unitStatus(t))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tr.result(from), got.Status)
				assert.Equal(t, tr.result(from), after.Status)
				assert.Greater(t, after.Version, before.Version)
			})
		}
	}
}

func TestTransitionTableCoversEveryAction(t *testing.T) {
	covered := map[Action]bool{}
	for _, tr := range transitions {
		covered[tr.action] = true
	}
	for action := range allowedFrom {
		assert.True(t, covered[action], "no table entry for %q", action)
	}
}
