package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type UnitSize string

const (
	SizeSmall  UnitSize = "SMALL"
	SizeMedium UnitSize = "MEDIUM"
	SizeLarge  UnitSize = "LARGE"
	SizeXL     UnitSize = "XL"
)

func (s UnitSize) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge, SizeXL:
		return true
	}
	return false
}

type UnitStatus string

const (
	UnitAvailable   UnitStatus = "AVAILABLE"
	UnitOccupied    UnitStatus = "OCCUPIED"
	UnitReserved    UnitStatus = "RESERVED"
	UnitMaintenance UnitStatus = "MAINTENANCE"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case UnitAvailable, UnitOccupied, UnitReserved, UnitMaintenance:
		return true
	}
	return false
}

// Unit is a rentable storage unit at a location.
type Unit struct {
	ID            int64           `json:"id"`
	LocationID    int64           `json:"location_id"`
	City          string          `json:"city"`
	UnitNumber    string          `json:"unit_number"`
	Size          UnitSize        `json:"size"`
	PricePerHour  decimal.Decimal `json:"price_per_hour"`
	PricePerDay   decimal.Decimal `json:"price_per_day"`
	PricePerMonth decimal.Decimal `json:"price_per_month"`
	Currency      string          `json:"currency"`
	Status        UnitStatus      `json:"status"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int64           `json:"version"`
}

// MonthlyRate falls back to 30 daily rates when no monthly price is set.
func (u *Unit) MonthlyRate() decimal.Decimal {
	if u.PricePerMonth.IsPositive() {
		return u.PricePerMonth
	}
	return u.PricePerDay.Mul(decimal.NewFromInt(DaysPerMonth))
}

// Bookable reports whether the unit accepts scheduling at all.
func (u *Unit) Bookable() bool {
	return u.IsActive && u.Status != UnitMaintenance
}
