package payment

import (
	"context"
	"sync"

	"storagebooking/internal/errs"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RefundRequest asks the gateway to return money for a booking.
// IdempotencyKey is stable across retries of the same refund.
type RefundRequest struct {
	IdempotencyKey string
	BookingID      int64
	UserID         int64
	Amount         decimal.Decimal
	Currency       string
}

type RefundResult struct {
	RefundID string
}

type Gateway interface {
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// SandboxGateway accepts every refund and remembers the id issued per key.
type SandboxGateway struct {
	logger *zerolog.Logger

	mu     sync.Mutex
	issued map[string]string
}

func NewSandboxGateway(logger *zerolog.Logger) *SandboxGateway {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &SandboxGateway{logger: logger, issued: make(map[string]string)}
}

func (g *SandboxGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return RefundResult{}, err
	}
	if req.IdempotencyKey == "" {
		return RefundResult{}, errs.Validationf("idempotency key is required")
	}
	if !req.Amount.IsPositive() {
		return RefundResult{}, errs.Validationf("refund amount must be positive")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.issued[req.IdempotencyKey]; ok {
		return RefundResult{RefundID: id}, nil
	}

	id := "re_" + uuid.NewString()
	g.issued[req.IdempotencyKey] = id
	g.logger.Info().
		Str("refund_id", id).
		Int64("booking_id", req.BookingID).
		Str("amount", req.Amount.StringFixed(2)).
		Str("currency", req.Currency).
		Msg("sandbox refund issued")
	return RefundResult{RefundID: id}, nil
}

// Unconfigured is used when payments are disabled.
type Unconfigured struct{}

func (Unconfigured) Refund(context.Context, RefundRequest) (RefundResult, error) {
	return RefundResult{}, errs.Unavailablef("payment gateway is not configured")
}
