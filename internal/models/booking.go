package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingActive    BookingStatus = "ACTIVE"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// BlockingStatuses count toward interval-overlap conflicts.
var BlockingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingActive}

func (s BookingStatus) IsBlocking() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingActive:
		return true
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// In reports whether s is one of the given statuses.
func (s BookingStatus) In(statuses ...BookingStatus) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

type Booking struct {
	ID                 int64           `json:"id"`
	BookingNumber      string          `json:"booking_number"`
	UserID             int64           `json:"user_id"`
	UnitID             int64           `json:"unit_id"`
	StartTime          time.Time       `json:"start_time"`
	EndTime            time.Time       `json:"end_time"`
	Status             BookingStatus   `json:"status"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	Currency           string          `json:"currency"`
	AccessCode         string          `json:"access_code"`
	CheckInTime        *time.Time      `json:"check_in_time,omitempty"`
	CheckOutTime       *time.Time      `json:"check_out_time,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int64           `json:"version"`
}

func (b *Booking) OwnedBy(userID int64) bool {
	return b.UserID == userID
}
