package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"storagebooking/internal/clock"
	"storagebooking/internal/domain"
	"storagebooking/internal/errs"
	"storagebooking/internal/events"
	"storagebooking/internal/models"
	"storagebooking/internal/payment"
	"storagebooking/internal/refund"
	"storagebooking/internal/worker"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaymentSucceeded is a charge confirmation delivered by the gateway webhook.
type PaymentSucceeded struct {
	PaymentIntentID string
	BookingID       int64
	Amount          decimal.Decimal
	Currency        string
}

type RefundResult struct {
	Booking     *models.Booking     `json:"booking"`
	Quote       refund.Quote        `json:"quote"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

type refundPayload struct {
	TransactionID int64 `json:"transaction_id"`
}

type PaymentOptions struct {
	Enabled        bool
	WebhookLockTTL time.Duration
}

// PaymentService connects gateway collaborators to the booking state machine.
type PaymentService struct {
	bookings   *BookingService
	store      domain.Store
	refunds    *refund.Policy
	gateway    payment.Gateway
	guard      domain.GuardStore
	dispatcher domain.TaskDispatcher
	eventBus   domain.EventPublisher
	clock      clock.Clock
	opts       PaymentOptions
	logger     *zerolog.Logger
}

func NewPaymentService(
	bookings *BookingService,
	policy *refund.Policy,
	gateway payment.Gateway,
	guard domain.GuardStore,
	dispatcher domain.TaskDispatcher,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *PaymentService {
	if opts.WebhookLockTTL <= 0 {
		opts.WebhookLockTTL = models.DefaultWebhookLockTTL
	}
	if gateway == nil {
		gateway = payment.Unconfigured{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "payment_service").Logger()
	return &PaymentService{
		bookings:   bookings,
		store:      bookings.store,
		refunds:    policy,
		gateway:    gateway,
		guard:      guard,
		dispatcher: dispatcher,
		eventBus:   bookings.eventBus,
		clock:      bookings.clock,
		opts:       opts,
		logger:     &l,
	}
}

// HandlePaymentSucceeded records the charge and confirms the booking in one
// transaction. Repeated deliveries of the same intent return the booking unchanged.
func (s *PaymentService) HandlePaymentSucceeded(ctx context.Context, ev PaymentSucceeded) (*models.Booking, error) {
	if ev.PaymentIntentID == "" || ev.BookingID <= 0 {
		return nil, errs.Validationf("payment intent id and booking id are required")
	}
	if ev.Amount.IsNegative() {
		return nil, errs.Validationf("payment amount must not be negative")
	}

	if s.guard != nil {
		key := "webhook:" + ev.PaymentIntentID
		ok, err := s.guard.Acquire(ctx, key, s.opts.WebhookLockTTL)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("intent", ev.PaymentIntentID).Msg("webhook lock unavailable, relying on intent uniqueness")
		case !ok:
			return nil, errs.Conflictf("payment intent %s is already being processed", ev.PaymentIntentID)
		default:
			defer func() {
				if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
					s.logger.Warn().Err(err).Str("intent", ev.PaymentIntentID).Msg("release webhook lock")
				}
			}()
		}
	}

	var (
		booking   *models.Booking
		duplicate bool
	)
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		duplicate = false
		existing, err := tx.GetTransactionByIntent(ctx, ev.PaymentIntentID)
		if err == nil {
			duplicate = true
			booking, err = tx.GetBooking(ctx, existing.BookingID)
			return err
		}
		if !errs.Is(err, errs.ErrNotFound) {
			return err
		}

		b, err := tx.GetBooking(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		currency := ev.Currency
		if currency == "" {
			currency = b.Currency
		}
		if err := tx.CreateTransaction(ctx, &models.Transaction{
			BookingID:       b.ID,
			UserID:          b.UserID,
			PaymentIntentID: ev.PaymentIntentID,
			Kind:            models.TransactionCharge,
			Amount:          ev.Amount,
			Currency:        currency,
			Status:          models.TransactionSucceeded,
		}); err != nil {
			return err
		}
		if err := s.bookings.confirmInTx(ctx, tx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		s.logger.Info().Str("intent", ev.PaymentIntentID).Int64("booking_id", booking.ID).Msg("duplicate payment webhook ignored")
		return booking, nil
	}
	s.logger.Info().Str("intent", ev.PaymentIntentID).Int64("booking_id", booking.ID).Msg("payment recorded, booking confirmed")
	publish(s.eventBus, s.logger, events.EventBookingConfirmed, events.NewBookingPayload(booking))
	return booking, nil
}

func (s *PaymentService) quote(b *models.Booking, amount *decimal.Decimal) (refund.Quote, error) {
	if err := ensureStatus(b, ActionRefund); err != nil {
		return refund.Quote{}, err
	}
	return s.refunds.Calculate(b.StartTime, s.clock.Now(), b.TotalPrice, amount)
}

// CalculateRefund is read-only: it reports what RefundBooking would return now.
func (s *PaymentService) CalculateRefund(ctx context.Context, bookingID, userID int64, amount *decimal.Decimal) (refund.Quote, error) {
	if !s.opts.Enabled {
		return refund.Quote{}, errs.Unavailablef("payments are not configured")
	}
	b, err := s.bookings.GetBooking(ctx, bookingID, userID)
	if err != nil {
		return refund.Quote{}, err
	}
	return s.quote(b, amount)
}

// RefundBooking cancels the booking and records the refund intent atomically.
// The gateway is called later by the outbox worker, keyed by the transaction id.
func (s *PaymentService) RefundBooking(ctx context.Context, bookingID, userID int64, amount *decimal.Decimal, reason string) (*RefundResult, error) {
	if !s.opts.Enabled {
		return nil, errs.Unavailablef("payments are not configured")
	}
	if reason == "" {
		reason = "refund requested"
	}

	var (
		result RefundResult
		task   *models.OutboxTask
	)
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		task = nil
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := ensureOwner(b, userID); err != nil {
			return err
		}
		q, err := s.quote(b, amount)
		if err != nil {
			return err
		}
		if err := cancelInTx(ctx, tx, b, reason); err != nil {
			return err
		}
		result = RefundResult{Booking: b, Quote: q}
		if !q.RefundAmount.IsPositive() {
			return nil
		}

		txn := &models.Transaction{
			BookingID: b.ID,
			UserID:    b.UserID,
			Kind:      models.TransactionRefund,
			Amount:    q.RefundAmount,
			Currency:  b.Currency,
			Status:    models.TransactionPending,
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		raw, err := json.Marshal(refundPayload{TransactionID: txn.ID})
		if err != nil {
			return errs.Wrap(err, "encode refund task")
		}
		task = &models.OutboxTask{TaskType: worker.TaskRefund, AggregateID: b.ID, Payload: string(raw)}
		if err := tx.CreateOutboxTask(ctx, task); err != nil {
			return err
		}
		result.Transaction = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	if task != nil && s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, *task)
	}

	s.logger.Info().
		Int64("booking_id", bookingID).
		Int("percent", result.Quote.Percent).
		Str("amount", result.Quote.RefundAmount.StringFixed(2)).
		Msg("booking refunded")
	payload := events.NewBookingPayload(result.Booking)
	publish(s.eventBus, s.logger, events.EventBookingCancelled, payload)
	payload.Amount = result.Quote.RefundAmount.StringFixed(2)
	publish(s.eventBus, s.logger, events.EventBookingRefundRequested, payload)
	return &result, nil
}

// HandleRefundTask is the outbox handler for refund tasks. The transaction id is
// the gateway idempotency key, so a retried task never refunds twice.
func (s *PaymentService) HandleRefundTask(ctx context.Context, task models.OutboxTask) error {
	var p refundPayload
	if err := json.Unmarshal([]byte(task.Payload), &p); err != nil || p.TransactionID == 0 {
		return fmt.Errorf("decode refund task %d: %w", task.ID, worker.ErrPermanent)
	}

	txn, err := s.store.GetTransaction(ctx, p.TransactionID)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("refund transaction %d: %w", p.TransactionID, worker.ErrPermanent)
		}
		return err
	}
	if txn.Status != models.TransactionPending {
		return nil
	}

	res, err := s.gateway.Refund(ctx, payment.RefundRequest{
		IdempotencyKey: "refund-" + strconv.FormatInt(txn.ID, 10),
		BookingID:      txn.BookingID,
		UserID:         txn.UserID,
		Amount:         txn.Amount,
		Currency:       txn.Currency,
	})
	if err != nil {
		if errs.Is(err, errs.ErrValidation) {
			if uerr := s.setTransactionStatus(ctx, txn.ID, models.TransactionFailed, ""); uerr != nil {
				return uerr
			}
			return fmt.Errorf("gateway rejected refund %d: %v: %w", txn.ID, err, worker.ErrPermanent)
		}
		return errs.Wrapf(err, "gateway refund %d", txn.ID)
	}
	return s.setTransactionStatus(ctx, txn.ID, models.TransactionSucceeded, res.RefundID)
}

func (s *PaymentService) setTransactionStatus(ctx context.Context, id int64, status models.TransactionStatus, ref string) error {
	return s.store.RunInTx(ctx, func(tx domain.Tx) error {
		return tx.UpdateTransactionStatus(ctx, id, status, ref)
	})
}
