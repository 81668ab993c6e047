package database

import (
	"context"
	"database/sql"
	"errors"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"
)

// CreditLoyalty appends a ledger entry and bumps the balance.
// A second credit for the same booking is a Conflict.
func (q queries) CreditLoyalty(ctx context.Context, entry *models.LoyaltyEntry) error {
	if entry.Points < 0 {
		return errs.Validationf("loyalty credit must not be negative")
	}
	now := q.now()
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO loyalty_ledger (user_id, booking_id, points, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.UserID, entry.BookingID, entry.Points, entry.Reason, now)
	if err != nil {
		err = classify(err, "failed to append loyalty entry")
		if errs.KindOf(err) == errs.KindConflict {
			return errs.Conflictf("booking %d already credited", entry.BookingID)
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "failed to get last insert id")
	}

	_, err = q.q.ExecContext(ctx, `INSERT INTO loyalty_accounts (user_id, points, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET points = points + excluded.points, updated_at = excluded.updated_at`,
		entry.UserID, entry.Points, now)
	if err != nil {
		return classify(err, "failed to update loyalty balance")
	}
	entry.ID = id
	entry.CreatedAt = now
	return nil
}

// GetLoyaltyAccount returns a zero balance for users without history.
func (q queries) GetLoyaltyAccount(ctx context.Context, userID int64) (*models.LoyaltyAccount, error) {
	acc := &models.LoyaltyAccount{UserID: userID, Entries: []models.LoyaltyEntry{}}
	err := q.q.QueryRowContext(ctx,
		`SELECT points, updated_at FROM loyalty_accounts WHERE user_id = ?`, userID,
	).Scan(&acc.Points, &acc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return acc, nil
	}
	if err != nil {
		return nil, classify(err, "failed to get loyalty account")
	}

	rows, err := q.q.QueryContext(ctx,
		`SELECT id, user_id, booking_id, points, reason, created_at FROM loyalty_ledger
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, classify(err, "failed to list loyalty entries")
	}
	defer rows.Close()
	for rows.Next() {
		var e models.LoyaltyEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.BookingID, &e.Points, &e.Reason, &e.CreatedAt); err != nil {
			return nil, classify(err, "failed to scan loyalty entry")
		}
		acc.Entries = append(acc.Entries, e)
	}
	return acc, classify(rows.Err(), "failed to iterate loyalty entries")
}
