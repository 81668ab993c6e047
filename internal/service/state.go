package service

import (
	"fmt"
	"time"

	"storagebooking/internal/availability"
	"storagebooking/internal/errs"
	"storagebooking/internal/models"
)

// Action is a booking lifecycle transition.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionCheckIn    Action = "check in"
	ActionCheckOut   Action = "check out"
	ActionExtend     Action = "extend"
	ActionCancel     Action = "cancel"
	ActionRegenerate Action = "regenerate access code for"
	ActionRefund     Action = "refund"
)

// allowedFrom lists the source statuses each action accepts.
var allowedFrom = map[Action][]models.BookingStatus{
	ActionConfirm:    {models.BookingPending},
	ActionCheckIn:    {models.BookingConfirmed},
	ActionCheckOut:   {models.BookingActive},
	ActionExtend:     {models.BookingConfirmed, models.BookingActive},
	ActionCancel:     {models.BookingPending, models.BookingConfirmed},
	ActionRegenerate: {models.BookingConfirmed, models.BookingActive},
	ActionRefund:     {models.BookingPending, models.BookingConfirmed},
}

// ensureStatus rejects an action whose source status is illegal, naming that status.
func ensureStatus(b *models.Booking, action Action) error {
	if b.Status.In(allowedFrom[action]...) {
		return nil
	}
	return errs.Validationf("cannot %s booking %s in status %s", action, b.BookingNumber, b.Status)
}

func ensureOwner(b *models.Booking, userID int64) error {
	if b.OwnedBy(userID) {
		return nil
	}
	return errs.Authorizationf("booking %d does not belong to user %d", b.ID, userID)
}

// UnavailableError reports the bookings that block a requested interval.
// An empty Conflicts list means the unit itself is not bookable.
type UnavailableError struct {
	UnitID    int64
	Start     time.Time
	End       time.Time
	Conflicts []availability.Conflict
}

func (e *UnavailableError) Error() string {
	if len(e.Conflicts) == 0 {
		return fmt.Sprintf("unit %d is not bookable", e.UnitID)
	}
	return fmt.Sprintf("unit %d is unavailable: %d conflicting booking(s)", e.UnitID, len(e.Conflicts))
}

func newUnavailableError(unitID int64, start, end time.Time, res availability.Result) error {
	return errs.Mark(&UnavailableError{UnitID: unitID, Start: start, End: end, Conflicts: res.Conflicts}, errs.ErrConflict)
}

// ErrRateLimited is returned when a user creates bookings too quickly.
var ErrRateLimited = errs.Mark(errs.New("rate limit exceeded"), errs.ErrValidation)
