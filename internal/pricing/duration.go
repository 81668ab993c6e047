package pricing

import (
	"time"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierHourly  Tier = "hourly"
	TierDaily   Tier = "daily"
	TierMonthly Tier = "monthly"
)

const (
	day             = 24 * time.Hour
	hourlyTierLimit = 24
	dailyTierLimit  = 720
	monthLengthDays = models.DaysPerMonth
)

// Duration is a classified booking interval. Every count is rounded up.
type Duration struct {
	Hours  int64
	Days   int64
	Months int64
	Tier   Tier
}

// ClassifyDuration maps [start, end) to its pricing tier and counts.
func ClassifyDuration(start, end time.Time) (Duration, error) {
	if !end.After(start) {
		return Duration{}, errs.Validationf("end %s must be after start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	span := end.Sub(start)
	d := Duration{
		Hours: ceilDiv(span, time.Hour),
		Days:  ceilDiv(span, day),
	}
	d.Months = (d.Days + monthLengthDays - 1) / monthLengthDays

	switch {
	case d.Hours <= hourlyTierLimit:
		d.Tier = TierHourly
	case d.Hours <= dailyTierLimit:
		d.Tier = TierDaily
	default:
		d.Tier = TierMonthly
	}
	return d, nil
}

// Count is the number of tier units billed.
func (d Duration) Count() int64 {
	switch d.Tier {
	case TierDaily:
		return d.Days
	case TierMonthly:
		return d.Months
	default:
		return d.Hours
	}
}

// Rate is the unit's price for one tier unit.
func (d Duration) Rate(u *models.Unit) decimal.Decimal {
	switch d.Tier {
	case TierDaily:
		return u.PricePerDay
	case TierMonthly:
		return u.MonthlyRate()
	default:
		return u.PricePerHour
	}
}

func ceilDiv(span, unit time.Duration) int64 {
	n := int64(span / unit)
	if span%unit != 0 {
		n++
	}
	return n
}
