package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionCharge TransactionKind = "CHARGE"
	TransactionRefund TransactionKind = "REFUND"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionSucceeded TransactionStatus = "SUCCEEDED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Transaction is a payment movement. PaymentIntentID is the gateway's stable id
// and is unique, which is what makes webhook deliveries idempotent.
type Transaction struct {
	ID              int64             `json:"id"`
	BookingID       int64             `json:"booking_id"`
	UserID          int64             `json:"user_id"`
	PaymentIntentID string            `json:"payment_intent_id"`
	Kind            TransactionKind   `json:"kind"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Status          TransactionStatus `json:"status"`
	GatewayRef      string            `json:"gateway_ref,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
