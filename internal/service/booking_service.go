package service

import (
	"context"
	"fmt"
	"time"

	"storagebooking/internal/availability"
	"storagebooking/internal/clock"
	"storagebooking/internal/codes"
	"storagebooking/internal/domain"
	"storagebooking/internal/errs"
	"storagebooking/internal/events"
	"storagebooking/internal/metrics"
	"storagebooking/internal/models"
	"storagebooking/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type BookingOptions struct {
	MinDuration      time.Duration
	MaxAdvanceDays   int
	CheckInWindow    time.Duration
	CodeAttempts     int
	CreateRateLimit  int
	CreateRateWindow time.Duration
}

func (o *BookingOptions) applyDefaults() {
	if o.MinDuration <= 0 {
		o.MinDuration = models.DefaultMinBookingDuration
	}
	if o.MaxAdvanceDays <= 0 {
		o.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if o.CheckInWindow <= 0 {
		o.CheckInWindow = models.DefaultCheckInWindow
	}
	if o.CodeAttempts <= 0 {
		o.CodeAttempts = models.DefaultCodeAttempts
	}
	if o.CreateRateLimit <= 0 {
		o.CreateRateLimit = models.DefaultCreateRateLimit
	}
	if o.CreateRateWindow <= 0 {
		o.CreateRateWindow = models.DefaultCreateRateWindow
	}
}

type CreateBookingRequest struct {
	UserID int64
	UnitID int64
	Start  time.Time
	End    time.Time
	Notes  string
}

// BookingService owns the booking lifecycle. Every transition re-reads and
// re-validates inside one transaction; events go out only after commit.
type BookingService struct {
	store    domain.Store
	checker  *availability.Checker
	pricing  *pricing.Engine
	codes    codes.Generator
	guard    domain.GuardStore
	eventBus domain.EventPublisher
	clock    clock.Clock
	opts     BookingOptions
	logger   *zerolog.Logger
}

func NewBookingService(
	store domain.Store,
	engine *pricing.Engine,
	gen codes.Generator,
	guard domain.GuardStore,
	eventBus domain.EventPublisher,
	clk clock.Clock,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	opts.applyDefaults()
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if gen == nil {
		gen = codes.NewRandomGenerator()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "booking_service").Logger()
	return &BookingService{
		store:    store,
		checker:  availability.NewChecker(store, store, &l),
		pricing:  engine,
		codes:    gen,
		guard:    guard,
		eventBus: eventBus,
		clock:    clk,
		opts:     opts,
		logger:   &l,
	}
}

func (s *BookingService) CheckAvailability(ctx context.Context, unitID int64, start, end time.Time) (*availability.Result, error) {
	res, err := s.checker.CheckAvailability(ctx, unitID, start, end)
	if err != nil {
		return nil, err
	}
	if len(res.Conflicts) > 0 {
		metrics.IncAvailabilityConflict()
	}
	return res, nil
}

func (s *BookingService) CalculatePrice(ctx context.Context, unitID int64, start, end time.Time) (*pricing.Calculation, error) {
	defer metrics.ObservePrice(time.Now())
	return s.pricing.CalculatePrice(ctx, unitID, start, end)
}

func (s *BookingService) validateInterval(start, end time.Time) error {
	if !end.After(start) {
		return errs.Validationf("end must be after start")
	}
	if end.Sub(start) < s.opts.MinDuration {
		return errs.Validationf("booking is below the minimum duration of %s", s.opts.MinDuration)
	}
	now := s.clock.Now()
	if start.Before(now) {
		return errs.Validationf("start must not be in the past")
	}
	if start.After(now.AddDate(0, 0, s.opts.MaxAdvanceDays)) {
		return errs.Validationf("start is more than %d days ahead", s.opts.MaxAdvanceDays)
	}
	return nil
}

func (s *BookingService) checkCreateRate(ctx context.Context, userID int64) error {
	if s.guard == nil {
		return nil
	}
	key := fmt.Sprintf("booking:create:%d", userID)
	ok, err := s.guard.CheckRateLimit(ctx, key, s.opts.CreateRateLimit, s.opts.CreateRateWindow)
	if err != nil {
		// Fail open: the guard store is an abuse limit, not a correctness check.
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("rate limit check failed")
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// CreateBooking reserves [start, end] on the unit as a PENDING booking.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if req.UserID <= 0 || req.UnitID <= 0 {
		return nil, errs.Validationf("user id and unit id are required")
	}
	if err := s.validateInterval(req.Start, req.End); err != nil {
		return nil, err
	}
	if err := s.checkCreateRate(ctx, req.UserID); err != nil {
		return nil, err
	}

	res, err := s.CheckAvailability(ctx, req.UnitID, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, newUnavailableError(req.UnitID, req.Start, req.End, *res)
	}

	var created *models.Booking
	err = s.store.RunInTx(ctx, func(tx domain.Tx) error {
		unit, err := tx.GetUnit(ctx, req.UnitID)
		if err != nil {
			return err
		}
		if err := s.recheck(ctx, tx, unit, req.Start, req.End, 0); err != nil {
			return err
		}

		calc, err := s.pricing.QuoteUsing(ctx, tx, unit, req.Start, req.End)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		number, err := codes.Unique(ctx, s.opts.CodeAttempts,
			func() (string, error) { return s.codes.BookingNumber(now) },
			tx.BookingNumberExists)
		if err != nil {
			return errs.Wrap(err, "generate booking number")
		}
		code, err := codes.Unique(ctx, s.opts.CodeAttempts, s.codes.AccessCode, tx.AccessCodeInUse)
		if err != nil {
			return errs.Wrap(err, "generate access code")
		}

		booking := &models.Booking{
			BookingNumber: number,
			UserID:        req.UserID,
			UnitID:        unit.ID,
			StartTime:     req.Start,
			EndTime:       req.End,
			Status:        models.BookingPending,
			TotalPrice:    calc.Total,
			Currency:      calc.Currency,
			AccessCode:    code,
			Notes:         req.Notes,
		}
		if err := tx.CreateBooking(ctx, booking); err != nil {
			return err
		}
		created = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", created.ID).
		Str("booking_number", created.BookingNumber).
		Int64("unit_id", created.UnitID).
		Str("total", created.TotalPrice.StringFixed(2)).
		Msg("booking created")
	s.publishEvent(events.EventBookingCreated, created)
	return created, nil
}

// recheck is the transactional availability guarantee. Advisory checks outside
// a transaction only short-circuit obvious conflicts.
func (s *BookingService) recheck(ctx context.Context, tx domain.Tx, unit *models.Unit, start, end time.Time, excludeID int64) error {
	existing, err := tx.ListBlockingBookings(ctx, unit.ID, start, end)
	if err != nil {
		return err
	}
	res := availability.Evaluate(unit, existing, start, end, excludeID)
	if !res.Available {
		metrics.IncAvailabilityConflict()
		return newUnavailableError(unit.ID, start, end, res)
	}
	return nil
}

// ConfirmBooking moves a PENDING booking to CONFIRMED after payment.
func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var confirmed *models.Booking
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := s.confirmInTx(ctx, tx, b); err != nil {
			return err
		}
		confirmed = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(events.EventBookingConfirmed, confirmed)
	return confirmed, nil
}

// confirmInTx re-checks the interval excluding the booking itself, then marks
// the unit reserved when it was free.
func (s *BookingService) confirmInTx(ctx context.Context, tx domain.Tx, b *models.Booking) error {
	if err := ensureStatus(b, ActionConfirm); err != nil {
		return err
	}
	unit, err := tx.GetUnit(ctx, b.UnitID)
	if err != nil {
		return err
	}
	if err := s.recheck(ctx, tx, unit, b.StartTime, b.EndTime, b.ID); err != nil {
		return err
	}

	b.Status = models.BookingConfirmed
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return err
	}
	if unit.Status == models.UnitAvailable {
		return tx.UpdateUnitStatus(ctx, unit, models.UnitReserved)
	}
	return nil
}

// mutate loads a booking owned by userID, checks the action is legal and runs
// apply inside a single transaction.
func (s *BookingService) mutate(ctx context.Context, bookingID, userID int64, action Action, apply func(tx domain.Tx, b *models.Booking) error) (*models.Booking, error) {
	var out *models.Booking
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := ensureOwner(b, userID); err != nil {
			return err
		}
		if err := ensureStatus(b, action); err != nil {
			return err
		}
		if err := apply(tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		s.logger.Debug().Err(err).Int64("booking_id", bookingID).Str("action", string(action)).Msg("transition rejected")
		return nil, err
	}
	return out, nil
}

// CheckIn activates a confirmed booking and occupies the unit.
func (s *BookingService) CheckIn(ctx context.Context, bookingID, userID int64) (*models.Booking, error) {
	b, err := s.mutate(ctx, bookingID, userID, ActionCheckIn, func(tx domain.Tx, b *models.Booking) error {
		now := s.clock.Now()
		opensAt := b.StartTime.Add(-s.opts.CheckInWindow)
		if now.Before(opensAt) {
			return errs.Validationf("check-in for booking %s opens at %s", b.BookingNumber, opensAt.Format(time.RFC3339))
		}
		unit, err := tx.GetUnit(ctx, b.UnitID)
		if err != nil {
			return err
		}
		if err := tx.UpdateUnitStatus(ctx, unit, models.UnitOccupied); err != nil {
			return err
		}
		b.Status = models.BookingActive
		b.CheckInTime = &now
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(events.EventBookingCheckedIn, b)
	return b, nil
}

// CheckOut completes an active booking, frees the unit and credits loyalty points.
func (s *BookingService) CheckOut(ctx context.Context, bookingID, userID int64) (*models.Booking, error) {
	b, err := s.mutate(ctx, bookingID, userID, ActionCheckOut, func(tx domain.Tx, b *models.Booking) error {
		now := s.clock.Now()
		unit, err := tx.GetUnit(ctx, b.UnitID)
		if err != nil {
			return err
		}
		if err := tx.UpdateUnitStatus(ctx, unit, models.UnitAvailable); err != nil {
			return err
		}
		b.Status = models.BookingCompleted
		b.CheckOutTime = &now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}

		points := LoyaltyPoints(b.TotalPrice)
		if points == 0 {
			return nil
		}
		return tx.CreditLoyalty(ctx, &models.LoyaltyEntry{
			UserID:    b.UserID,
			BookingID: b.ID,
			Points:    points,
			Reason:    "check-out " + b.BookingNumber,
		})
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(events.EventBookingCheckedOut, b)
	return b, nil
}

// LoyaltyPoints is one point per whole currency unit paid.
func LoyaltyPoints(total decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	return total.Floor().IntPart()
}

// ExtendBooking moves the end to newEnd and adds the price of the added interval.
func (s *BookingService) ExtendBooking(ctx context.Context, bookingID, userID int64, newEnd time.Time) (*models.Booking, error) {
	var delta decimal.Decimal
	b, err := s.mutate(ctx, bookingID, userID, ActionExtend, func(tx domain.Tx, b *models.Booking) error {
		if !newEnd.After(b.EndTime) {
			return errs.Validationf("new end must be after current end %s", b.EndTime.Format(time.RFC3339))
		}
		if !newEnd.After(s.clock.Now()) {
			return errs.Validationf("new end must be in the future")
		}
		unit, err := tx.GetUnit(ctx, b.UnitID)
		if err != nil {
			return err
		}
		if err := s.recheck(ctx, tx, unit, b.EndTime, newEnd, b.ID); err != nil {
			return err
		}
		calc, err := s.pricing.QuoteUsing(ctx, tx, unit, b.EndTime, newEnd)
		if err != nil {
			return err
		}
		delta = calc.Total
		b.EndTime = newEnd
		b.TotalPrice = pricing.RoundMoney(b.TotalPrice.Add(calc.Total))
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("booking_id", b.ID).
		Time("new_end", newEnd).
		Str("added", delta.StringFixed(2)).
		Msg("booking extended")
	s.publishEvent(events.EventBookingExtended, b)
	return b, nil
}

// CancelBooking cancels a PENDING or CONFIRMED booking.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID int64, reason string) (*models.Booking, error) {
	b, err := s.mutate(ctx, bookingID, userID, ActionCancel, func(tx domain.Tx, b *models.Booking) error {
		return cancelInTx(ctx, tx, b, reason)
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(events.EventBookingCancelled, b)
	return b, nil
}

func cancelInTx(ctx context.Context, tx domain.Tx, b *models.Booking, reason string) error {
	unit, err := tx.GetUnit(ctx, b.UnitID)
	if err != nil {
		return err
	}
	if unit.Status == models.UnitReserved {
		if err := tx.UpdateUnitStatus(ctx, unit, models.UnitAvailable); err != nil {
			return err
		}
	}
	b.Status = models.BookingCancelled
	b.CancellationReason = reason
	return tx.UpdateBooking(ctx, b)
}

// RegenerateAccessCode replaces the access code with a fresh, different one.
func (s *BookingService) RegenerateAccessCode(ctx context.Context, bookingID, userID int64) (*models.Booking, error) {
	b, err := s.mutate(ctx, bookingID, userID, ActionRegenerate, func(tx domain.Tx, b *models.Booking) error {
		old := b.AccessCode
		code, err := codes.Unique(ctx, s.opts.CodeAttempts, s.codes.AccessCode, func(ctx context.Context, c string) (bool, error) {
			if c == old {
				return true, nil
			}
			return tx.AccessCodeInUse(ctx, c)
		})
		if err != nil {
			return errs.Wrap(err, "generate access code")
		}
		b.AccessCode = code
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(events.EventBookingAccessCodeRenewed, b)
	return b, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID int64) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(b, userID); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BookingService) ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return s.store.ListUserBookings(ctx, userID)
}

// ListBookingsInRange returns bookings of any status overlapping [from, to].
func (s *BookingService) ListBookingsInRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	if !to.After(from) {
		return nil, errs.Validationf("range end must be after range start")
	}
	return s.store.ListBookingsInRange(ctx, from, to)
}

func (s *BookingService) GetLoyaltyAccount(ctx context.Context, userID int64) (*models.LoyaltyAccount, error) {
	return s.store.GetLoyaltyAccount(ctx, userID)
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking) {
	publish(s.eventBus, s.logger, eventType, events.NewBookingPayload(b))
}

func publish(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, payload events.BookingEventPayload) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", payload.BookingID).Msg("publish event error")
	}
}
