package models

import (
	"bytes"
	"encoding/json"
	"time"

	"storagebooking/internal/errs"

	"github.com/shopspring/decimal"
)

type RuleType string

const (
	RuleTime     RuleType = "TIME"
	RuleDuration RuleType = "DURATION"
	RuleSize     RuleType = "SIZE"
	RuleCustom   RuleType = "CUSTOM"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTime, RuleDuration, RuleSize, RuleCustom:
		return true
	}
	return false
}

// HourRange is the half-open local-hour window [Start, End).
type HourRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// RuleConditions is the closed set of predicates a rule may carry.
// A nil or empty field places no constraint.
type RuleConditions struct {
	DayOfWeek   []int      `json:"day_of_week,omitempty" yaml:"day_of_week,omitempty"`
	HourRange   *HourRange `json:"hour_range,omitempty" yaml:"hour_range,omitempty"`
	MinDuration *float64   `json:"min_duration,omitempty" yaml:"min_duration,omitempty"`
	MaxDuration *float64   `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
	UnitSize    []UnitSize `json:"unit_size,omitempty" yaml:"unit_size,omitempty"`
	Cities      []string   `json:"cities,omitempty" yaml:"cities,omitempty"`
}

func (c RuleConditions) Validate() error {
	for _, d := range c.DayOfWeek {
		if d < 0 || d > 6 {
			return errs.Validationf("day_of_week %d out of range 0..6", d)
		}
	}
	if hr := c.HourRange; hr != nil {
		if hr.Start < 0 || hr.End > 24 || hr.Start >= hr.End {
			return errs.Validationf("hour_range [%d, %d) is invalid", hr.Start, hr.End)
		}
	}
	if c.MinDuration != nil && *c.MinDuration < 0 {
		return errs.Validationf("min_duration must not be negative")
	}
	if c.MaxDuration != nil && *c.MaxDuration < 0 {
		return errs.Validationf("max_duration must not be negative")
	}
	if c.MinDuration != nil && c.MaxDuration != nil && *c.MinDuration > *c.MaxDuration {
		return errs.Validationf("min_duration %.2f exceeds max_duration %.2f", *c.MinDuration, *c.MaxDuration)
	}
	for _, s := range c.UnitSize {
		if !s.Valid() {
			return errs.Validationf("unknown unit size %q", s)
		}
	}
	return nil
}

// ParseRuleConditions decodes stored conditions, rejecting unknown keys.
func ParseRuleConditions(raw []byte) (RuleConditions, error) {
	var c RuleConditions
	if len(bytes.TrimSpace(raw)) == 0 {
		return c, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return RuleConditions{}, errs.Mark(errs.Wrap(err, "decode rule conditions"), errs.ErrValidation)
	}
	if err := c.Validate(); err != nil {
		return RuleConditions{}, err
	}
	return c, nil
}

type PricingRule struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	RuleType   RuleType        `json:"rule_type"`
	Conditions RuleConditions  `json:"conditions"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Priority   int             `json:"priority"`
	IsActive   bool            `json:"is_active"`
	ValidFrom  *time.Time      `json:"valid_from,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (r *PricingRule) Validate() error {
	if r.Name == "" {
		return errs.Validationf("pricing rule name is required")
	}
	if !r.RuleType.Valid() {
		return errs.Validationf("pricing rule %q has unknown type %q", r.Name, r.RuleType)
	}
	if !r.Multiplier.IsPositive() {
		return errs.Validationf("pricing rule %q multiplier must be positive", r.Name)
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom) {
		return errs.Validationf("pricing rule %q window ends before it starts", r.Name)
	}
	return r.Conditions.Validate()
}

// ActiveAt reports whether the rule is enabled and its optional date window contains t.
func (r *PricingRule) ActiveAt(t time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.ValidFrom != nil && t.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && t.After(*r.ValidUntil) {
		return false
	}
	return true
}
