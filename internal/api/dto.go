package api

import (
	"time"

	"storagebooking/internal/availability"
	"storagebooking/internal/models"
	"storagebooking/internal/pricing"
	"storagebooking/internal/refund"
	"storagebooking/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

const eventPaymentSucceeded = "payment_intent.succeeded"

type createBookingRequest struct {
	UnitID    int64     `json:"unit_id" validate:"gt=0"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time" validate:"gtfield=StartTime"`
	Notes     string    `json:"notes" validate:"max=500"`
}

type extendRequest struct {
	NewEndTime time.Time `json:"new_end_time"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type refundRequest struct {
	Amount *string `json:"amount,omitempty" validate:"omitempty,numeric"`
	Reason string  `json:"reason" validate:"max=500"`
}

type webhookRequest struct {
	Type string             `json:"type" validate:"required"`
	Data paymentIntentEvent `json:"data"`
}

type paymentIntentEvent struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	BookingID       int64  `json:"booking_id" validate:"gt=0"`
	Amount          string `json:"amount" validate:"required,numeric"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
}

type bookingResponse struct {
	ID                 int64                `json:"id"`
	BookingNumber      string               `json:"booking_number"`
	UserID             int64                `json:"user_id"`
	UnitID             int64                `json:"unit_id"`
	StartTime          time.Time            `json:"start_time"`
	EndTime            time.Time            `json:"end_time"`
	Status             models.BookingStatus `json:"status"`
	TotalPrice         string               `json:"total_price"`
	Currency           string               `json:"currency"`
	AccessCode         string               `json:"access_code,omitempty"`
	CheckInTime        *time.Time           `json:"check_in_time,omitempty"`
	CheckOutTime       *time.Time           `json:"check_out_time,omitempty"`
	CancellationReason string               `json:"cancellation_reason,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// newBookingResponse renders b. The access code is only shown to the owner.
func newBookingResponse(b *models.Booking, owner bool) bookingResponse {
	resp := bookingResponse{
		ID:                 b.ID,
		BookingNumber:      b.BookingNumber,
		UserID:             b.UserID,
		UnitID:             b.UnitID,
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		Status:             b.Status,
		TotalPrice:         money(b.TotalPrice),
		Currency:           b.Currency,
		CheckInTime:        b.CheckInTime,
		CheckOutTime:       b.CheckOutTime,
		CancellationReason: b.CancellationReason,
		Notes:              b.Notes,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if owner {
		resp.AccessCode = b.AccessCode
	}
	return resp
}

func newBookingList(bookings []*models.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, newBookingResponse(b, true))
	}
	return out
}

type availabilityResponse struct {
	UnitID    int64                   `json:"unit_id"`
	Start     time.Time               `json:"start"`
	End       time.Time               `json:"end"`
	Available bool                    `json:"available"`
	Conflicts []availability.Conflict `json:"conflicts"`
}

type adjustmentResponse struct {
	RuleID     int64                  `json:"rule_id"`
	Name       string                 `json:"name"`
	Type       pricing.AdjustmentType `json:"type"`
	Amount     string                 `json:"amount"`
	Percentage int64                  `json:"percentage"`
}

type priceResponse struct {
	UnitID       int64                `json:"unit_id"`
	BasePrice    string               `json:"base_price"`
	Duration     int64                `json:"duration"`
	DurationType pricing.Tier         `json:"duration_type"`
	Adjustments  []adjustmentResponse `json:"adjustments"`
	Subtotal     string               `json:"subtotal"`
	TaxRate      string               `json:"tax_rate"`
	Tax          string               `json:"tax"`
	Total        string               `json:"total"`
	Currency     string               `json:"currency"`
}

func newPriceResponse(c *pricing.Calculation) priceResponse {
	adjustments := make([]adjustmentResponse, 0, len(c.Adjustments))
	for _, a := range c.Adjustments {
		adjustments = append(adjustments, adjustmentResponse{
			RuleID:     a.RuleID,
			Name:       a.Name,
			Type:       a.Type,
			Amount:     money(a.Amount),
			Percentage: a.Percentage,
		})
	}
	return priceResponse{
		UnitID:       c.UnitID,
		BasePrice:    money(c.BasePrice),
		Duration:     c.Duration,
		DurationType: c.DurationType,
		Adjustments:  adjustments,
		Subtotal:     money(c.Subtotal),
		TaxRate:      c.TaxRate.String(),
		Tax:          money(c.Tax),
		Total:        money(c.Total),
		Currency:     c.Currency,
	}
}

type refundQuoteResponse struct {
	HoursUntilStart float64 `json:"hours_until_start"`
	Percent         int     `json:"percent"`
	Eligible        string  `json:"eligible"`
	RefundAmount    string  `json:"refund_amount"`
}

func newRefundQuoteResponse(q refund.Quote) refundQuoteResponse {
	return refundQuoteResponse{
		HoursUntilStart: q.HoursUntilStart,
		Percent:         q.Percent,
		Eligible:        money(q.Eligible),
		RefundAmount:    money(q.RefundAmount),
	}
}

type transactionResponse struct {
	ID         int64                    `json:"id"`
	BookingID  int64                    `json:"booking_id"`
	Kind       models.TransactionKind   `json:"kind"`
	Amount     string                   `json:"amount"`
	Currency   string                   `json:"currency"`
	Status     models.TransactionStatus `json:"status"`
	GatewayRef string                   `json:"gateway_ref,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
}

type refundResponse struct {
	Booking     bookingResponse      `json:"booking"`
	Quote       refundQuoteResponse  `json:"quote"`
	Transaction *transactionResponse `json:"transaction,omitempty"`
}

func newRefundResponse(res *service.RefundResult) refundResponse {
	out := refundResponse{
		Booking: newBookingResponse(res.Booking, true),
		Quote:   newRefundQuoteResponse(res.Quote),
	}
	if t := res.Transaction; t != nil {
		out.Transaction = &transactionResponse{
			ID:         t.ID,
			BookingID:  t.BookingID,
			Kind:       t.Kind,
			Amount:     money(t.Amount),
			Currency:   t.Currency,
			Status:     t.Status,
			GatewayRef: t.GatewayRef,
			CreatedAt:  t.CreatedAt,
		}
	}
	return out
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
