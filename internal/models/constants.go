package models

import "time"

const (
	OutboxPending   = "pending"
	OutboxRetry     = "retry"
	OutboxCompleted = "completed"
	OutboxFailed    = "failed"
)

const (
	// DaysPerMonth is the month length used by duration tiers and the monthly rate fallback.
	DaysPerMonth = 30

	// DefaultCheckInWindow is how early before start a check-in is accepted.
	DefaultCheckInWindow = time.Hour

	// DefaultMinBookingDuration is the shortest bookable interval.
	DefaultMinBookingDuration = time.Hour

	// DefaultMaxAdvanceDays limits how far ahead a booking may start.
	DefaultMaxAdvanceDays = 365

	// DefaultCodeAttempts bounds retry-on-collision for generated codes.
	DefaultCodeAttempts = 10

	// DefaultCreateRateLimit is booking creations allowed per user per window.
	DefaultCreateRateLimit  = 20
	DefaultCreateRateWindow = time.Hour

	// DefaultWebhookLockTTL is how long an in-flight webhook delivery holds its lock.
	DefaultWebhookLockTTL = 30 * time.Second

	DefaultCurrency = "USD"
)
