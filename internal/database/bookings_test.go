package database

import (
	"context"
	"testing"
	"time"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(unitID int64, number string, start time.Time, hours int, status models.BookingStatus) *models.Booking {
	return &models.Booking{
		BookingNumber: number,
		UserID:        42,
		UnitID:        unitID,
		StartTime:     start,
		EndTime:       start.Add(time.Duration(hours) * time.Hour),
		Status:        status,
		TotalPrice:    decimal.RequireFromString("5.50"),
		Currency:      "USD",
		AccessCode:    "123456",
	}
}

func TestBookingCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUnit(t, db, "A-1")

	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	b := newBooking(u.ID, "SB-20250301-AAAAAA", start, 2, models.BookingPending)
	b.Notes = "ground floor please"
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.BookingNumber, got.BookingNumber)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.TotalPrice.Equal(decimal.RequireFromString("5.5")))
	assert.Nil(t, got.CheckInTime)
	assert.Equal(t, "ground floor please", got.Notes)

	byNumber, err := db.GetBookingByNumber(ctx, b.BookingNumber)
	require.NoError(t, err)
	assert.Equal(t, b.ID, byNumber.ID)

	exists, err := db.BookingNumberExists(ctx, b.BookingNumber)
	require.NoError(t, err)
	assert.True(t, exists)

	dup := newBooking(u.ID, b.BookingNumber, start.Add(48*time.Hour), 1, models.BookingPending)
	err = db.CreateBooking(ctx, dup)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	_, err = db.GetBooking(ctx, 999)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	checkIn := start.Add(-30 * time.Minute)
	got.Status = models.BookingActive
	got.CheckInTime = &checkIn
	require.NoError(t, db.UpdateBooking(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	reloaded, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingActive, reloaded.Status)
	require.NotNil(t, reloaded.CheckInTime)
	assert.True(t, reloaded.CheckInTime.Equal(checkIn))

	// stale copy loses
	b.Status = models.BookingCancelled
	err = db.UpdateBooking(ctx, b)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestListBlockingBookingsInclusiveBounds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUnit(t, db, "A-1")
	other := createTestUnit(t, db, "A-2")

	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	// 08-10 confirmed, 12-14 pending, two finished 10-12, and a 10-12 on another unit
	fixtures := []*models.Booking{
		newBooking(u.ID, "B1", day.Add(8*time.Hour), 2, models.BookingConfirmed),
		newBooking(u.ID, "B2", day.Add(12*time.Hour), 2, models.BookingPending),
		newBooking(u.ID, "B3", day.Add(10*time.Hour), 2, models.BookingCancelled),
		newBooking(u.ID, "B4", day.Add(10*time.Hour), 2, models.BookingCompleted),
		newBooking(other.ID, "B5", day.Add(10*time.Hour), 2, models.BookingActive),
	}
	for _, b := range fixtures {
		require.NoError(t, db.CreateBooking(ctx, b))
	}

	got, err := db.ListBlockingBookings(ctx, u.ID, day.Add(10*time.Hour), day.Add(12*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2, "touching bookings on both sides conflict")
	assert.Equal(t, "B1", got[0].BookingNumber)
	assert.Equal(t, "B2", got[1].BookingNumber)

	got, err = db.ListBlockingBookings(ctx, u.ID, day.Add(10*time.Hour+time.Minute), day.Add(11*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAccessCodeInUse(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUnit(t, db, "A-1")
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	done := newBooking(u.ID, "B1", start, 1, models.BookingCompleted)
	done.AccessCode = "111111"
	require.NoError(t, db.CreateBooking(ctx, done))

	live := newBooking(u.ID, "B2", start.Add(5*time.Hour), 1, models.BookingConfirmed)
	live.AccessCode = "222222"
	require.NoError(t, db.CreateBooking(ctx, live))

	inUse, err := db.AccessCodeInUse(ctx, "111111")
	require.NoError(t, err)
	assert.False(t, inUse, "codes of finished bookings are free again")

	inUse, err = db.AccessCodeInUse(ctx, "222222")
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestListUserBookingsAndRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUnit(t, db, "A-1")
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	first := newBooking(u.ID, "B1", start, 1, models.BookingConfirmed)
	second := newBooking(u.ID, "B2", start.Add(24*time.Hour), 1, models.BookingCancelled)
	third := newBooking(u.ID, "B3", start.Add(72*time.Hour), 1, models.BookingPending)
	third.UserID = 7
	for _, b := range []*models.Booking{first, second, third} {
		require.NoError(t, db.CreateBooking(ctx, b))
	}

	mine, err := db.ListUserBookings(ctx, 42)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "B2", mine[0].BookingNumber, "newest start first")

	none, err := db.ListUserBookings(ctx, 1000)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	inRange, err := db.ListBookingsInRange(ctx, start.Add(12*time.Hour), start.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, "B2", inRange[0].BookingNumber)
}
