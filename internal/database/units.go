package database

import (
	"context"
	"database/sql"
	"errors"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"
)

const unitColumns = `id, location_id, city, unit_number, size, price_per_hour, price_per_day,
	price_per_month, currency, status, is_active, created_at, updated_at, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(s scanner) (*models.Unit, error) {
	var u models.Unit
	err := s.Scan(
		&u.ID, &u.LocationID, &u.City, &u.UnitNumber, &u.Size, &u.PricePerHour, &u.PricePerDay,
		&u.PricePerMonth, &u.Currency, &u.Status, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.Version,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (q queries) CreateUnit(ctx context.Context, unit *models.Unit) error {
	query := `INSERT INTO units (
				location_id, city, unit_number, size, price_per_hour, price_per_day,
				price_per_month, currency, status, is_active, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	now := q.now()
	if unit.Status == "" {
		unit.Status = models.UnitAvailable
	}
	if unit.Currency == "" {
		unit.Currency = models.DefaultCurrency
	}
	result, err := q.q.ExecContext(ctx, query,
		unit.LocationID,
		unit.City,
		unit.UnitNumber,
		unit.Size,
		unit.PricePerHour,
		unit.PricePerDay,
		unit.PricePerMonth,
		unit.Currency,
		unit.Status,
		unit.IsActive,
		now,
		now,
	)
	if err != nil {
		err = classify(err, "failed to create unit")
		if errs.KindOf(err) == errs.KindConflict {
			return errs.Conflictf("unit %s already exists at location %d", unit.UnitNumber, unit.LocationID)
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "failed to get last insert id")
	}
	unit.ID = id
	unit.CreatedAt = now
	unit.UpdatedAt = now
	unit.Version = 1
	return nil
}

func (q queries) GetUnit(ctx context.Context, id int64) (*models.Unit, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("unit %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "failed to get unit")
	}
	return u, nil
}

func (q queries) ListUnits(ctx context.Context) ([]*models.Unit, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+unitColumns+` FROM units ORDER BY location_id, unit_number`)
	if err != nil {
		return nil, classify(err, "failed to list units")
	}
	defer rows.Close()

	units := []*models.Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, classify(err, "failed to scan unit")
		}
		units = append(units, u)
	}
	return units, classify(rows.Err(), "failed to iterate units")
}

// UpdateUnitStatus is version-checked; on success unit reflects the stored row.
func (q queries) UpdateUnitStatus(ctx context.Context, unit *models.Unit, status models.UnitStatus) error {
	if !status.Valid() {
		return errs.Validationf("unknown unit status %q", status)
	}
	now := q.now()
	query := `UPDATE units SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := q.q.ExecContext(ctx, query, status, now, unit.ID, unit.Version)
	if err != nil {
		return classify(err, "failed to update unit status")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	unit.Status = status
	unit.Version++
	unit.UpdatedAt = now
	return nil
}
