package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint", 200)
		ObservePrice(time.Now())
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(bookingEvents.WithLabelValues("booking_created"))
	IncBookingEvent("booking_created")
	assert.Equal(t, before+1, testutil.ToFloat64(bookingEvents.WithLabelValues("booking_created")))

	before = testutil.ToFloat64(outboxTasks.WithLabelValues("refund", "failed"))
	IncOutbox("refund", "failed")
	assert.Equal(t, before+1, testutil.ToFloat64(outboxTasks.WithLabelValues("refund", "failed")))

	before = testutil.ToFloat64(availabilityConflicts)
	IncAvailabilityConflict()
	assert.Equal(t, before+1, testutil.ToFloat64(availabilityConflicts))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "2xx", statusLabel(201))
	assert.Equal(t, "3xx", statusLabel(304))
	assert.Equal(t, "4xx", statusLabel(429))
	assert.Equal(t, "5xx", statusLabel(503))
}
