package database

import (
	"context"
	"database/sql"
	"errors"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"
)

const transactionColumns = `id, booking_id, user_id, payment_intent_id, kind, amount, currency,
	status, gateway_ref, created_at, updated_at`

func scanTransaction(s scanner) (*models.Transaction, error) {
	var t models.Transaction
	var intent sql.NullString
	err := s.Scan(&t.ID, &t.BookingID, &t.UserID, &intent, &t.Kind, &t.Amount, &t.Currency,
		&t.Status, &t.GatewayRef, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.PaymentIntentID = intent.String
	return &t, nil
}

// CreateTransaction fails with Conflict when the payment intent was already recorded.
func (q queries) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	query := `INSERT INTO payment_transactions (
				booking_id, user_id, payment_intent_id, kind, amount, currency,
				status, gateway_ref, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := q.now()
	result, err := q.q.ExecContext(ctx, query,
		txn.BookingID,
		txn.UserID,
		nullString(txn.PaymentIntentID),
		txn.Kind,
		txn.Amount,
		txn.Currency,
		txn.Status,
		txn.GatewayRef,
		now,
		now,
	)
	if err != nil {
		return classify(err, "failed to create transaction")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "failed to get last insert id")
	}
	txn.ID = id
	txn.CreatedAt = now
	txn.UpdatedAt = now
	return nil
}

func (q queries) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("transaction %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "failed to get transaction")
	}
	return t, nil
}

func (q queries) GetTransactionByIntent(ctx context.Context, intentID string) (*models.Transaction, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE payment_intent_id = ?`, intentID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("payment intent %s not recorded", intentID)
	}
	if err != nil {
		return nil, classify(err, "failed to get transaction by intent")
	}
	return t, nil
}

func (q queries) UpdateTransactionStatus(ctx context.Context, id int64, status models.TransactionStatus, gatewayRef string) error {
	result, err := q.q.ExecContext(ctx,
		`UPDATE payment_transactions SET status = ?, gateway_ref = ?, updated_at = ? WHERE id = ?`,
		status, gatewayRef, q.now(), id)
	if err != nil {
		return classify(err, "failed to update transaction")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFoundf("transaction %d not found", id)
	}
	return nil
}
