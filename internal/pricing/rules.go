package pricing

import (
	"slices"
	"sort"
	"time"

	"storagebooking/internal/models"

	"github.com/shopspring/decimal"
)

type AdjustmentType string

const (
	Surcharge AdjustmentType = "surcharge"
	Discount  AdjustmentType = "discount"
)

// Adjustment is one applied rule. Amount is always non-negative; Type carries the sign.
type Adjustment struct {
	RuleID     int64           `json:"rule_id"`
	Name       string          `json:"name"`
	Type       AdjustmentType  `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage int64           `json:"percentage"`
}

// Signed returns the amount as it contributes to the subtotal.
func (a Adjustment) Signed() decimal.Decimal {
	if a.Type == Discount {
		return a.Amount.Neg()
	}
	return a.Amount
}

// Candidate is the booking being priced.
type Candidate struct {
	Unit     *models.Unit
	Start    time.Time
	Duration Duration
}

// RuleEvaluator matches rules against a candidate. Day-of-week and hour
// conditions are read in loc.
type RuleEvaluator struct {
	loc *time.Location
}

func NewRuleEvaluator(loc *time.Location) *RuleEvaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &RuleEvaluator{loc: loc}
}

// ActiveRules keeps rules that are enabled and whose window contains now.
func ActiveRules(rules []models.PricingRule, now time.Time) []models.PricingRule {
	active := make([]models.PricingRule, 0, len(rules))
	for i := range rules {
		if rules[i].ActiveAt(now) {
			active = append(active, rules[i])
		}
	}
	return active
}

// SortByPriority orders rules by priority descending, ties by id.
func SortByPriority(rules []models.PricingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// Matches reports whether every supplied condition of rule holds for c.
func (e *RuleEvaluator) Matches(rule *models.PricingRule, c Candidate) bool {
	cond := rule.Conditions
	start := c.Start.In(e.loc)

	if len(cond.DayOfWeek) > 0 && !slices.Contains(cond.DayOfWeek, int(start.Weekday())) {
		return false
	}
	if hr := cond.HourRange; hr != nil {
		h := start.Hour()
		if h < hr.Start || h >= hr.End {
			return false
		}
	}
	hours := float64(c.Duration.Hours)
	if cond.MinDuration != nil && hours < *cond.MinDuration {
		return false
	}
	if cond.MaxDuration != nil && hours > *cond.MaxDuration {
		return false
	}
	if len(cond.UnitSize) > 0 && (c.Unit == nil || !slices.Contains(cond.UnitSize, c.Unit.Size)) {
		return false
	}
	if len(cond.Cities) > 0 && (c.Unit == nil || !slices.Contains(cond.Cities, c.Unit.City)) {
		return false
	}
	return true
}

// Evaluate returns one unrounded adjustment per matching rule, in priority order.
func (e *RuleEvaluator) Evaluate(rules []models.PricingRule, c Candidate, base decimal.Decimal) []Adjustment {
	ordered := slices.Clone(rules)
	SortByPriority(ordered)

	var out []Adjustment
	for i := range ordered {
		rule := &ordered[i]
		if !e.Matches(rule, c) {
			continue
		}
		delta := rule.Multiplier.Sub(one)
		adjType := Surcharge
		if rule.Multiplier.LessThan(one) {
			adjType = Discount
		}
		out = append(out, Adjustment{
			RuleID:     rule.ID,
			Name:       rule.Name,
			Type:       adjType,
			Amount:     base.Mul(delta.Abs()),
			Percentage: delta.Mul(hundred).Round(0).IntPart(),
		})
	}
	return out
}
