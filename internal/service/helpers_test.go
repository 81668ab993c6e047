package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"storagebooking/internal/clock"
	"storagebooking/internal/database"
	"storagebooking/internal/domain"
	"storagebooking/internal/events"
	"storagebooking/internal/models"
	"storagebooking/internal/payment"
	"storagebooking/internal/pricing"
	"storagebooking/internal/refund"
	"storagebooking/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Saturday morning; the fixtures book the following Monday.
var (
	testNow      = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	mondayNine   = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	mondayEleven = time.Date(2025, 3, 3, 11, 0, 0, 0, time.UTC)
)

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) record(e *events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.Type)
	return nil
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types...)
}

type fakeDispatcher struct {
	tasks []models.OutboxTask
}

func (d *fakeDispatcher) Dispatch(_ context.Context, task models.OutboxTask) {
	d.tasks = append(d.tasks, task)
}

type fixture struct {
	db         *database.DB
	clock      *clock.MockClock
	engine     *pricing.Engine
	bookings   *BookingService
	payments   *PaymentService
	guard      *repository.MemoryGuardStore
	dispatcher *fakeDispatcher
	events     *eventLog
	unit       *models.Unit
}

type fixtureOption func(*BookingOptions, *PaymentOptions)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	return newFixtureAt(t, ":memory:", opts...)
}

func newFixtureAt(t *testing.T, path string, opts ...fixtureOption) *fixture {
	t.Helper()
	clk := clock.NewMockClock(testNow)
	logger := zerolog.Nop()
	db, err := database.NewDB(path, &logger, database.WithClock(clk), database.WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	unit := &models.Unit{
		LocationID:   1,
		City:         "Austin",
		UnitNumber:   "A-101",
		Size:         models.SizeMedium,
		PricePerHour: decimal.RequireFromString("2.50"),
		PricePerDay:  decimal.RequireFromString("15"),
		IsActive:     true,
	}
	require.NoError(t, db.CreateUnit(ctx, unit))
	require.NoError(t, db.CreatePricingRule(ctx, &models.PricingRule{
		Name:       "Weekend Surcharge",
		RuleType:   models.RuleTime,
		Conditions: models.RuleConditions{DayOfWeek: []int{0, 6}},
		Multiplier: decimal.RequireFromString("1.2"),
		Priority:   10,
		IsActive:   true,
	}))

	bookingOpts := BookingOptions{}
	paymentOpts := PaymentOptions{Enabled: true}
	for _, o := range opts {
		o(&bookingOpts, &paymentOpts)
	}

	bus := events.NewEventBus()
	log := &eventLog{}
	bus.Subscribe(events.AllEvents, log.record)

	guard := repository.NewMemoryGuardStore(clk)
	engine := pricing.NewEngine(db, db, clk, pricing.Options{TaxRate: pricing.DefaultTaxRate, Location: time.UTC}, &logger)
	bookings := NewBookingService(db, engine, nil, guard, bus, clk, bookingOpts, &logger)

	policy, err := refund.NewPolicy(nil)
	require.NoError(t, err)
	dispatcher := &fakeDispatcher{}
	payments := NewPaymentService(bookings, policy, payment.NewSandboxGateway(&logger), guard, dispatcher, paymentOpts, &logger)

	return &fixture{
		db:         db,
		clock:      clk,
		engine:     engine,
		bookings:   bookings,
		payments:   payments,
		guard:      guard,
		dispatcher: dispatcher,
		events:     log,
		unit:       unit,
	}
}

const testUser int64 = 42

func (f *fixture) create(t *testing.T, start, end time.Time) *models.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), CreateBookingRequest{
		UserID: testUser, UnitID: f.unit.ID, Start: start, End: end,
	})
	require.NoError(t, err)
	return b
}

// forceStatus writes a status directly, bypassing the state machine.
func (f *fixture) forceStatus(t *testing.T, id int64, status models.BookingStatus) *models.Booking {
	t.Helper()
	ctx := context.Background()
	var out *models.Booking
	require.NoError(t, f.db.RunInTx(ctx, func(tx domain.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		b.Status = status
		out = b
		return tx.UpdateBooking(ctx, b)
	}))
	return out
}

func (f *fixture) setUnitStatus(t *testing.T, status models.UnitStatus) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.db.RunInTx(ctx, func(tx domain.Tx) error {
		u, err := tx.GetUnit(ctx, f.unit.ID)
		if err != nil {
			return err
		}
		return tx.UpdateUnitStatus(ctx, u, status)
	}))
}

func (f *fixture) unitStatus(t *testing.T) models.UnitStatus {
	t.Helper()
	u, err := f.db.GetUnit(context.Background(), f.unit.ID)
	require.NoError(t, err)
	return u.Status
}

func (f *fixture) reload(t *testing.T, id int64) *models.Booking {
	t.Helper()
	b, err := f.db.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
