package availability

import (
	"context"
	"time"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"

	"github.com/rs/zerolog"
)

// Conflict is an existing blocking booking that overlaps the requested interval.
type Conflict struct {
	BookingID int64     `json:"booking_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

type Result struct {
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts"`
}

type UnitGetter interface {
	GetUnit(ctx context.Context, id int64) (*models.Unit, error)
}

type BookingLister interface {
	ListBlockingBookings(ctx context.Context, unitID int64, start, end time.Time) ([]*models.Booking, error)
}

type Checker struct {
	units    UnitGetter
	bookings BookingLister
	logger   *zerolog.Logger
}

func NewChecker(units UnitGetter, bookings BookingLister, logger *zerolog.Logger) *Checker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Checker{units: units, bookings: bookings, logger: logger}
}

// CheckAvailability is advisory. Writers must repeat the check inside their transaction.
func (c *Checker) CheckAvailability(ctx context.Context, unitID int64, start, end time.Time) (*Result, error) {
	if !end.After(start) {
		return nil, errs.Validationf("end must be after start")
	}
	unit, err := c.units.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !unit.Bookable() {
		return &Result{Available: false, Conflicts: []Conflict{}}, nil
	}

	existing, err := c.bookings.ListBlockingBookings(ctx, unitID, start, end)
	if err != nil {
		return nil, errs.Wrap(err, "list blocking bookings")
	}
	res := Evaluate(unit, existing, start, end, 0)
	if !res.Available {
		c.logger.Debug().
			Int64("unit_id", unitID).
			Int("conflicts", len(res.Conflicts)).
			Msg("unit unavailable")
	}
	return &res, nil
}

// Evaluate decides availability from a unit and candidate bookings.
// A booking with id excludeID is ignored, so a booking never conflicts with itself.
func Evaluate(unit *models.Unit, existing []*models.Booking, start, end time.Time, excludeID int64) Result {
	if !unit.Bookable() {
		return Result{Available: false, Conflicts: []Conflict{}}
	}
	conflicts := []Conflict{}
	for _, b := range existing {
		if b.ID == excludeID && excludeID != 0 {
			continue
		}
		if !b.Status.IsBlocking() {
			continue
		}
		if Overlaps(b.StartTime, b.EndTime, start, end) {
			conflicts = append(conflicts, Conflict{BookingID: b.ID, Start: b.StartTime, End: b.EndTime})
		}
	}
	return Result{Available: len(conflicts) == 0, Conflicts: conflicts}
}

// Overlaps is the conflict predicate for an existing booking against a request.
// Both bounds are inclusive, so bookings that touch end-to-start conflict.
func Overlaps(existingStart, existingEnd, reqStart, reqEnd time.Time) bool {
	return !existingStart.After(reqEnd) && !existingEnd.Before(reqStart)
}
