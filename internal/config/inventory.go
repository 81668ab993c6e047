package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"storagebooking/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Inventory is the seed data for units and pricing rules.
type Inventory struct {
	Units []UnitSpec `yaml:"units"`
	Rules []RuleSpec `yaml:"pricing_rules"`
}

type UnitSpec struct {
	LocationID    int64  `yaml:"location_id"`
	City          string `yaml:"city"`
	UnitNumber    string `yaml:"unit_number"`
	Size          string `yaml:"size"`
	PricePerHour  string `yaml:"price_per_hour"`
	PricePerDay   string `yaml:"price_per_day"`
	PricePerMonth string `yaml:"price_per_month"`
	Currency      string `yaml:"currency"`
	Status        string `yaml:"status"`
	Active        *bool  `yaml:"active"`
}

type RuleSpec struct {
	Name       string                `yaml:"name"`
	Type       string                `yaml:"type"`
	Conditions models.RuleConditions `yaml:"conditions"`
	Multiplier string                `yaml:"multiplier"`
	Priority   int                   `yaml:"priority"`
	Active     *bool                 `yaml:"active"`
	ValidFrom  *time.Time            `yaml:"valid_from"`
	ValidUntil *time.Time            `yaml:"valid_until"`
}

func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeInventory(bytes.NewReader(data))
}

// DecodeInventory rejects unknown keys at every level, rule conditions included.
func DecodeInventory(r io.Reader) (*Inventory, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var inv Inventory
	if err := dec.Decode(&inv); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	return &inv, nil
}

func (u UnitSpec) ToModel() (*models.Unit, error) {
	size := models.UnitSize(u.Size)
	if !size.Valid() {
		return nil, fmt.Errorf("unit %s: unknown size %q", u.UnitNumber, u.Size)
	}
	if u.UnitNumber == "" {
		return nil, fmt.Errorf("unit without unit_number at location %d", u.LocationID)
	}
	status := models.UnitAvailable
	if u.Status != "" {
		status = models.UnitStatus(u.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("unit %s: unknown status %q", u.UnitNumber, u.Status)
		}
	}

	hourly, err := parseMoney(u.PricePerHour, true)
	if err != nil {
		return nil, fmt.Errorf("unit %s: price_per_hour: %w", u.UnitNumber, err)
	}
	daily, err := parseMoney(u.PricePerDay, true)
	if err != nil {
		return nil, fmt.Errorf("unit %s: price_per_day: %w", u.UnitNumber, err)
	}
	monthly, err := parseMoney(u.PricePerMonth, false)
	if err != nil {
		return nil, fmt.Errorf("unit %s: price_per_month: %w", u.UnitNumber, err)
	}

	currency := u.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &models.Unit{
		LocationID:    u.LocationID,
		City:          u.City,
		UnitNumber:    u.UnitNumber,
		Size:          size,
		PricePerHour:  hourly,
		PricePerDay:   daily,
		PricePerMonth: monthly,
		Currency:      currency,
		Status:        status,
		IsActive:      u.Active == nil || *u.Active,
	}, nil
}

func (r RuleSpec) ToModel() (*models.PricingRule, error) {
	mult, err := decimal.NewFromString(r.Multiplier)
	if err != nil {
		return nil, fmt.Errorf("rule %q: multiplier: %w", r.Name, err)
	}
	rule := &models.PricingRule{
		Name:       r.Name,
		RuleType:   models.RuleType(r.Type),
		Conditions: r.Conditions,
		Multiplier: mult,
		Priority:   r.Priority,
		IsActive:   r.Active == nil || *r.Active,
		ValidFrom:  r.ValidFrom,
		ValidUntil: r.ValidUntil,
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	return rule, nil
}

func parseMoney(s string, required bool) (decimal.Decimal, error) {
	if s == "" {
		if required {
			return decimal.Zero, fmt.Errorf("value is required")
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("value %s is negative", s)
	}
	return d, nil
}
