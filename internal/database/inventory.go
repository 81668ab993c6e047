package database

import (
	"context"
	"fmt"

	"storagebooking/internal/config"
	"storagebooking/internal/errs"
)

type ImportStats struct {
	UnitsCreated int
	UnitsSkipped int
	RulesCreated int
	RulesSkipped int
}

// ImportInventory seeds units and pricing rules. It is safe to run on every
// start: units already present at their location and rules with a known name
// are skipped, never updated.
func (db *DB) ImportInventory(ctx context.Context, inv *config.Inventory) (ImportStats, error) {
	var stats ImportStats
	if inv == nil {
		return stats, nil
	}

	for i, spec := range inv.Units {
		unit, err := spec.ToModel()
		if err != nil {
			return stats, fmt.Errorf("unit #%d: %w", i+1, err)
		}
		err = db.CreateUnit(ctx, unit)
		switch {
		case err == nil:
			stats.UnitsCreated++
		case errs.KindOf(err) == errs.KindConflict:
			stats.UnitsSkipped++
		default:
			return stats, fmt.Errorf("unit %s: %w", spec.UnitNumber, err)
		}
	}

	existing, err := db.ListPricingRules(ctx)
	if err != nil {
		return stats, err
	}
	known := make(map[string]bool, len(existing))
	for _, r := range existing {
		known[r.Name] = true
	}
	for i, spec := range inv.Rules {
		rule, err := spec.ToModel()
		if err != nil {
			return stats, fmt.Errorf("pricing rule #%d: %w", i+1, err)
		}
		if known[rule.Name] {
			stats.RulesSkipped++
			continue
		}
		if err := db.CreatePricingRule(ctx, rule); err != nil {
			return stats, fmt.Errorf("pricing rule %s: %w", rule.Name, err)
		}
		known[rule.Name] = true
		stats.RulesCreated++
	}

	db.logger.Info().
		Int("units_created", stats.UnitsCreated).
		Int("units_skipped", stats.UnitsSkipped).
		Int("rules_created", stats.RulesCreated).
		Int("rules_skipped", stats.RulesSkipped).
		Msg("inventory imported")
	return stats, nil
}
