package domain

import (
	"context"
	"time"

	"storagebooking/internal/models"
)

type UnitReader interface {
	GetUnit(ctx context.Context, id int64) (*models.Unit, error)
	ListUnits(ctx context.Context) ([]*models.Unit, error)
}

type BookingReader interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByNumber(ctx context.Context, number string) (*models.Booking, error)
	// ListBlockingBookings returns blocking bookings on the unit that may overlap [start, end].
	ListBlockingBookings(ctx context.Context, unitID int64, start, end time.Time) ([]*models.Booking, error)
	ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	ListBookingsInRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
	BookingNumberExists(ctx context.Context, number string) (bool, error)
	AccessCodeInUse(ctx context.Context, code string) (bool, error)
}

type RuleReader interface {
	ListPricingRules(ctx context.Context) ([]models.PricingRule, error)
}

type TransactionReader interface {
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	GetTransactionByIntent(ctx context.Context, intentID string) (*models.Transaction, error)
}

type LoyaltyReader interface {
	GetLoyaltyAccount(ctx context.Context, userID int64) (*models.LoyaltyAccount, error)
}

// Reader is every query available both outside and inside a transaction.
type Reader interface {
	UnitReader
	BookingReader
	RuleReader
	TransactionReader
	LoyaltyReader
}

// Tx is one atomic unit of work. Reads through Tx observe its own writes.
type Tx interface {
	Reader
	CreateBooking(ctx context.Context, booking *models.Booking) error
	// UpdateBooking writes every mutable column if booking.Version still matches, then bumps it.
	UpdateBooking(ctx context.Context, booking *models.Booking) error
	UpdateUnitStatus(ctx context.Context, unit *models.Unit, status models.UnitStatus) error
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	UpdateTransactionStatus(ctx context.Context, id int64, status models.TransactionStatus, gatewayRef string) error
	CreditLoyalty(ctx context.Context, entry *models.LoyaltyEntry) error
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error
}

type Store interface {
	Reader
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	CreateUnit(ctx context.Context, unit *models.Unit) error
	CreatePricingRule(ctx context.Context, rule *models.PricingRule) error
	Ping(ctx context.Context) error
}

type OutboxStore interface {
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error
	GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error)
	GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetFailedOutboxTasks(ctx context.Context) ([]models.OutboxTask, error)
}

// GuardStore holds short-lived locks and counters shared between instances.
type GuardStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// TaskDispatcher hands committed outbox tasks to the worker for prompt execution.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, task models.OutboxTask)
}
