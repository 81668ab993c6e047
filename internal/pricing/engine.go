package pricing

import (
	"context"
	"time"

	"storagebooking/internal/clock"
	"storagebooking/internal/errs"
	"storagebooking/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultTaxRate applies when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// Calculation is an itemized price. All amounts are rounded to cents.
type Calculation struct {
	UnitID       int64           `json:"unit_id"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Duration     int64           `json:"duration"`
	DurationType Tier            `json:"duration_type"`
	Adjustments  []Adjustment    `json:"adjustments"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}

type UnitGetter interface {
	GetUnit(ctx context.Context, id int64) (*models.Unit, error)
}

type RuleLister interface {
	ListPricingRules(ctx context.Context) ([]models.PricingRule, error)
}

type Options struct {
	TaxRate  decimal.Decimal
	Location *time.Location
}

type Engine struct {
	units     UnitGetter
	rules     RuleLister
	clock     clock.Clock
	evaluator *RuleEvaluator
	taxRate   decimal.Decimal
	logger    *zerolog.Logger
}

func NewEngine(units UnitGetter, rules RuleLister, clk clock.Clock, opts Options, logger *zerolog.Logger) *Engine {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if opts.TaxRate.IsNegative() {
		opts.TaxRate = DefaultTaxRate
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Engine{
		units:     units,
		rules:     rules,
		clock:     clk,
		evaluator: NewRuleEvaluator(opts.Location),
		taxRate:   opts.TaxRate,
		logger:    logger,
	}
}

// CalculatePrice prices [start, end) on the given unit.
func (e *Engine) CalculatePrice(ctx context.Context, unitID int64, start, end time.Time) (*Calculation, error) {
	unit, err := e.units.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return e.Quote(ctx, unit, start, end)
}

// Quote prices an already loaded unit against the currently active rules.
func (e *Engine) Quote(ctx context.Context, unit *models.Unit, start, end time.Time) (*Calculation, error) {
	return e.QuoteUsing(ctx, e.rules, unit, start, end)
}

// QuoteUsing is Quote with rules read from src, typically an open transaction.
func (e *Engine) QuoteUsing(ctx context.Context, src RuleLister, unit *models.Unit, start, end time.Time) (*Calculation, error) {
	rules, err := src.ListPricingRules(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "load pricing rules")
	}
	calc, err := e.Price(unit, ActiveRules(rules, e.clock.Now()), start, end)
	if err != nil {
		return nil, err
	}
	e.logger.Debug().
		Int64("unit_id", unit.ID).
		Str("tier", string(calc.DurationType)).
		Str("total", calc.Total.StringFixed(2)).
		Int("adjustments", len(calc.Adjustments)).
		Msg("price calculated")
	return calc, nil
}

// Price is the pure computation over a unit and an active rule set.
func (e *Engine) Price(unit *models.Unit, rules []models.PricingRule, start, end time.Time) (*Calculation, error) {
	if unit == nil {
		return nil, errs.NotFoundf("unit not found")
	}
	dur, err := ClassifyDuration(start, end)
	if err != nil {
		return nil, err
	}

	base := dur.Rate(unit).Mul(decimal.NewFromInt(dur.Count()))
	adjustments := e.evaluator.Evaluate(rules, Candidate{Unit: unit, Start: start, Duration: dur}, base)

	subtotal := base
	for _, adj := range adjustments {
		subtotal = subtotal.Add(adj.Signed())
	}
	if subtotal.LessThan(unit.PricePerHour) {
		subtotal = unit.PricePerHour
	}
	subtotal = RoundMoney(subtotal)
	tax := RoundMoney(subtotal.Mul(e.taxRate))

	reported := make([]Adjustment, len(adjustments))
	for i, adj := range adjustments {
		adj.Amount = RoundMoney(adj.Amount)
		reported[i] = adj
	}

	return &Calculation{
		UnitID:       unit.ID,
		BasePrice:    RoundMoney(base),
		Duration:     dur.Count(),
		DurationType: dur.Tier,
		Adjustments:  reported,
		Subtotal:     subtotal,
		TaxRate:      e.taxRate,
		Tax:          tax,
		Total:        RoundMoney(subtotal.Add(tax)),
		Currency:     unit.Currency,
	}, nil
}
