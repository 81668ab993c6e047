package refund

import (
	"sort"
	"time"

	"storagebooking/internal/errs"

	"github.com/shopspring/decimal"
)

// Tier grants Percent of the total when at least MinNotice remains before start.
type Tier struct {
	MinNotice time.Duration `yaml:"min_notice"`
	Percent   int           `yaml:"percent"`
}

// DefaultTiers: >=48h full, >=24h 75%, >=6h 50%, otherwise nothing.
func DefaultTiers() []Tier {
	return []Tier{
		{MinNotice: 48 * time.Hour, Percent: 100},
		{MinNotice: 24 * time.Hour, Percent: 75},
		{MinNotice: 6 * time.Hour, Percent: 50},
		{MinNotice: 0, Percent: 0},
	}
}

type Quote struct {
	HoursUntilStart float64         `json:"hours_until_start"`
	Percent         int             `json:"percent"`
	Eligible        decimal.Decimal `json:"eligible"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
}

type Policy struct {
	tiers []Tier
}

func NewPolicy(tiers []Tier) (*Policy, error) {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	for _, t := range sorted {
		if t.Percent < 0 || t.Percent > 100 {
			return nil, errs.Validationf("refund tier percent %d out of range", t.Percent)
		}
		if t.MinNotice < 0 {
			return nil, errs.Validationf("refund tier notice %s is negative", t.MinNotice)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinNotice > sorted[j].MinNotice })
	return &Policy{tiers: sorted}, nil
}

// Percent returns the refundable share for the given notice.
// Past starts get 0.
func (p *Policy) Percent(notice time.Duration) int {
	for _, t := range p.tiers {
		if notice >= t.MinNotice {
			return t.Percent
		}
	}
	return 0
}

// Calculate caps the requested amount at the tier's share of total.
// A nil request means the full eligible amount.
func (p *Policy) Calculate(start, now time.Time, total decimal.Decimal, requested *decimal.Decimal) (Quote, error) {
	if requested != nil && requested.IsNegative() {
		return Quote{}, errs.Validationf("refund amount must not be negative")
	}
	notice := start.Sub(now)
	pct := p.Percent(notice)
	eligible := total.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100)).Round(2)

	amount := eligible
	if requested != nil && requested.LessThan(eligible) {
		amount = requested.Round(2)
	}
	return Quote{
		HoursUntilStart: notice.Hours(),
		Percent:         pct,
		Eligible:        eligible,
		RefundAmount:    amount,
	}, nil
}
