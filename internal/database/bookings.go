package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"
)

const bookingColumns = `id, booking_number, user_id, unit_id, start_time, end_time, status,
	total_price, currency, access_code, check_in_time, check_out_time,
	cancellation_reason, notes, created_at, updated_at, version`

func scanBooking(s scanner) (*models.Booking, error) {
	var b models.Booking
	err := s.Scan(
		&b.ID, &b.BookingNumber, &b.UserID, &b.UnitID, &b.StartTime, &b.EndTime, &b.Status,
		&b.TotalPrice, &b.Currency, &b.AccessCode, &b.CheckInTime, &b.CheckOutTime,
		&b.CancellationReason, &b.Notes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (q queries) listBookings(ctx context.Context, msg, where string, args ...any) ([]*models.Booking, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE `+where, args...)
	if err != nil {
		return nil, classify(err, msg)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify(err, "failed to scan booking")
		}
		bookings = append(bookings, b)
	}
	return bookings, classify(rows.Err(), msg)
}

func (q queries) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				booking_number, user_id, unit_id, start_time, end_time, status,
				total_price, currency, access_code, notes, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	now := q.now()
	result, err := q.q.ExecContext(ctx, query,
		booking.BookingNumber,
		booking.UserID,
		booking.UnitID,
		booking.StartTime.UTC(),
		booking.EndTime.UTC(),
		booking.Status,
		booking.TotalPrice,
		booking.Currency,
		booking.AccessCode,
		booking.Notes,
		now,
		now,
	)
	if err != nil {
		return classify(err, "failed to create booking")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "failed to get last insert id")
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (q queries) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("booking %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "failed to get booking")
	}
	return b, nil
}

func (q queries) GetBookingByNumber(ctx context.Context, number string) (*models.Booking, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_number = ?`, number)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("booking %s not found", number)
	}
	if err != nil {
		return nil, classify(err, "failed to get booking by number")
	}
	return b, nil
}

// ListBlockingBookings uses the same inclusive bounds as availability.Overlaps.
func (q queries) ListBlockingBookings(ctx context.Context, unitID int64, start, end time.Time) ([]*models.Booking, error) {
	return q.listBookings(ctx, "failed to list blocking bookings",
		`unit_id = ? AND status IN (?, ?, ?) AND start_time <= ? AND end_time >= ? ORDER BY start_time ASC, id ASC`,
		unitID, models.BookingPending, models.BookingConfirmed, models.BookingActive, end.UTC(), start.UTC(),
	)
}

func (q queries) ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return q.listBookings(ctx, "failed to get user bookings",
		`user_id = ? ORDER BY start_time DESC, id DESC`, userID)
}

// ListBookingsInRange returns bookings of any status whose interval touches [from, to].
func (q queries) ListBookingsInRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	return q.listBookings(ctx, "failed to get bookings by range",
		`start_time <= ? AND end_time >= ? ORDER BY start_time ASC, id ASC`, to.UTC(), from.UTC())
}

func (q queries) BookingNumberExists(ctx context.Context, number string) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE booking_number = ?`, number).Scan(&n)
	if err != nil {
		return false, classify(err, "failed to check booking number")
	}
	return n > 0, nil
}

// AccessCodeInUse reports whether a blocking booking already holds code.
func (q queries) AccessCodeInUse(ctx context.Context, code string) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE access_code = ? AND status IN (?, ?, ?)`,
		code, models.BookingPending, models.BookingConfirmed, models.BookingActive,
	).Scan(&n)
	if err != nil {
		return false, classify(err, "failed to check access code")
	}
	return n > 0, nil
}

func (q queries) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	query := `UPDATE bookings SET
				status = ?, end_time = ?, total_price = ?, access_code = ?,
				check_in_time = ?, check_out_time = ?, cancellation_reason = ?, notes = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`
	now := q.now()
	result, err := q.q.ExecContext(ctx, query,
		booking.Status,
		booking.EndTime.UTC(),
		booking.TotalPrice,
		booking.AccessCode,
		utcPtr(booking.CheckInTime),
		utcPtr(booking.CheckOutTime),
		booking.CancellationReason,
		booking.Notes,
		now,
		booking.ID,
		booking.Version,
	)
	if err != nil {
		return classify(err, "failed to update booking")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	booking.Version++
	booking.UpdatedAt = now
	return nil
}
