package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storagebooking/internal/clock"
	"storagebooking/internal/config"
	"storagebooking/internal/database"
	"storagebooking/internal/events"
	"storagebooking/internal/models"
	"storagebooking/internal/payment"
	"storagebooking/internal/pricing"
	"storagebooking/internal/refund"
	"storagebooking/internal/repository"
	"storagebooking/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

const (
	testUser     = "42"
	mondayNine   = "2025-03-03T09:00:00Z"
	mondayEleven = "2025-03-03T11:00:00Z"
)

type testEnv struct {
	db     *database.DB
	clock  *clock.MockClock
	server *HTTPServer
	unit   *models.Unit
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "full", Extra: "full-extra", Name: "backoffice"},
				{Key: "reader", Extra: "reader-extra", Name: "site", Permissions: []string{PermReadAvailability, PermReadPricing}},
			},
		},
	}
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	clk := clock.NewMockClock(testNow)
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger, database.WithClock(clk), database.WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	unit := &models.Unit{
		LocationID:   1,
		City:         "Austin",
		UnitNumber:   "A-101",
		Size:         models.SizeMedium,
		PricePerHour: decimal.RequireFromString("2.50"),
		PricePerDay:  decimal.RequireFromString("15"),
		IsActive:     true,
	}
	require.NoError(t, db.CreateUnit(context.Background(), unit))

	guard := repository.NewMemoryGuardStore(clk)
	engine := pricing.NewEngine(db, db, clk, pricing.Options{TaxRate: pricing.DefaultTaxRate, Location: time.UTC}, &logger)
	bookings := service.NewBookingService(db, engine, nil, guard, events.NewEventBus(), clk, service.BookingOptions{}, &logger)
	policy, err := refund.NewPolicy(nil)
	require.NoError(t, err)
	payments := service.NewPaymentService(bookings, policy, payment.NewSandboxGateway(&logger), guard, nil,
		service.PaymentOptions{Enabled: true}, &logger)

	return &testEnv{
		db:     db,
		clock:  clk,
		server: NewHTTPServer(cfg, bookings, payments, db, time.UTC, &logger),
		unit:   unit,
	}
}

// request builds a request authenticated as the full-access key and testUser.
func request(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", "full")
	req.Header.Set("X-API-Extra", "full-extra")
	req.Header.Set("X-User-ID", testUser)
	return req
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	return e.serve(request(method, path, body))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}
