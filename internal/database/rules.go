package database

import (
	"context"
	"encoding/json"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"
)

func (q queries) createPricingRule(ctx context.Context, rule *models.PricingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return errs.Wrap(err, "encode rule conditions")
	}

	query := `INSERT INTO pricing_rules (
				name, rule_type, conditions, multiplier, priority, is_active,
				valid_from, valid_until, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := q.now()
	result, err := q.q.ExecContext(ctx, query,
		rule.Name,
		rule.RuleType,
		string(conditions),
		rule.Multiplier,
		rule.Priority,
		rule.IsActive,
		utcPtr(rule.ValidFrom),
		utcPtr(rule.ValidUntil),
		now,
		now,
	)
	if err != nil {
		return classify(err, "failed to create pricing rule")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "failed to get last insert id")
	}
	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// ListPricingRules returns every stored rule. Stored conditions with unknown keys fail the load.
func (q queries) ListPricingRules(ctx context.Context) ([]models.PricingRule, error) {
	query := `SELECT id, name, rule_type, conditions, multiplier, priority, is_active,
	                 valid_from, valid_until, created_at, updated_at
              FROM pricing_rules ORDER BY priority DESC, id ASC`
	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err, "failed to list pricing rules")
	}
	defer rows.Close()

	rules := []models.PricingRule{}
	for rows.Next() {
		var r models.PricingRule
		var raw string
		err := rows.Scan(&r.ID, &r.Name, &r.RuleType, &raw, &r.Multiplier, &r.Priority, &r.IsActive,
			&r.ValidFrom, &r.ValidUntil, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, classify(err, "failed to scan pricing rule")
		}
		r.Conditions, err = models.ParseRuleConditions([]byte(raw))
		if err != nil {
			return nil, errs.Wrapf(err, "pricing rule %d", r.ID)
		}
		rules = append(rules, r)
	}
	return rules, classify(rows.Err(), "failed to iterate pricing rules")
}

// CreatePricingRule stores the rule and drops the rule cache.
func (db *DB) CreatePricingRule(ctx context.Context, rule *models.PricingRule) error {
	if err := db.queries.createPricingRule(ctx, rule); err != nil {
		return err
	}
	db.mu.Lock()
	db.rulesCache = nil
	db.mu.Unlock()
	return nil
}

// ListPricingRules serves a copy of the cached rules after the first load.
func (db *DB) ListPricingRules(ctx context.Context) ([]models.PricingRule, error) {
	db.mu.RLock()
	cached := db.rulesCache
	db.mu.RUnlock()
	if cached != nil {
		return copyRules(cached), nil
	}

	rules, err := db.queries.ListPricingRules(ctx)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	db.rulesCache = copyRules(rules)
	db.mu.Unlock()
	return rules, nil
}

func copyRules(rules []models.PricingRule) []models.PricingRule {
	out := make([]models.PricingRule, len(rules))
	copy(out, rules)
	return out
}
