package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"
	"storagebooking/internal/report"
	"storagebooking/internal/service"

	"github.com/shopspring/decimal"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	start, end, err := queryInterval(r, "start", "end")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, err := s.bookings.CheckAvailability(r.Context(), unitID, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		UnitID:    unitID,
		Start:     start,
		End:       end,
		Available: res.Available,
		Conflicts: res.Conflicts,
	})
}

func (s *HTTPServer) handlePrice(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	start, end, err := queryInterval(r, "start", "end")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	calc, err := s.bookings.CalculatePrice(r.Context(), unitID, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPriceResponse(calc))
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req createBookingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	b, err := s.bookings.CreateBooking(r.Context(), service.CreateBookingRequest{
		UserID: userID,
		UnitID: req.UnitID,
		Start:  req.StartTime,
		End:    req.EndTime,
		Notes:  strings.TrimSpace(req.Notes),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBookingResponse(b, true))
}

// bookingAction adapts an owner-scoped booking operation with no body.
func (s *HTTPServer) bookingAction(fn func(ctx context.Context, bookingID, userID int64) (*models.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, bookingID, err := s.caller(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		b, err := fn(r.Context(), bookingID, userID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBookingResponse(b, true))
	}
}

func (s *HTTPServer) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := s.self(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	bookings, err := s.bookings.ListUserBookings(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": newBookingList(bookings)})
}

func (s *HTTPServer) handleLoyalty(w http.ResponseWriter, r *http.Request) {
	userID, err := s.self(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	acct, err := s.bookings.GetLoyaltyAccount(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// handleConfirm is the operator path; payment webhooks confirm through handleWebhook.
func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	bookingID, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.bookings.ConfirmBooking(r.Context(), bookingID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b, false))
}

func (s *HTTPServer) handleExtend(w http.ResponseWriter, r *http.Request) {
	userID, bookingID, err := s.caller(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req extendRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.bookings.ExtendBooking(r.Context(), bookingID, userID, req.NewEndTime)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b, true))
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, bookingID, err := s.caller(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req cancelRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.bookings.CancelBooking(r.Context(), bookingID, userID, strings.TrimSpace(req.Reason))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b, true))
}

func (s *HTTPServer) handleRefundQuote(w http.ResponseWriter, r *http.Request) {
	userID, bookingID, err := s.caller(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	q, err := s.payments.CalculateRefund(r.Context(), bookingID, userID, amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRefundQuoteResponse(q))
}

func (s *HTTPServer) handleRefund(w http.ResponseWriter, r *http.Request) {
	userID, bookingID, err := s.caller(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req refundRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var raw string
	if req.Amount != nil {
		raw = *req.Amount
	}
	amount, err := parseAmount(raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, err := s.payments.RefundBooking(r.Context(), bookingID, userID, amount, strings.TrimSpace(req.Reason))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRefundResponse(res))
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	err := decodeJSON(w, r, &req, false)
	if req.Type != "" && req.Type != eventPaymentSucceeded {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	amount, err := decimal.NewFromString(req.Data.Amount)
	if err != nil {
		s.writeServiceError(w, r, errs.Validationf("invalid amount %q", req.Data.Amount))
		return
	}
	b, err := s.payments.HandlePaymentSucceeded(r.Context(), service.PaymentSucceeded{
		PaymentIntentID: req.Data.PaymentIntentID,
		BookingID:       req.Data.BookingID,
		Amount:          amount,
		Currency:        strings.ToUpper(req.Data.Currency),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "processed",
		"booking": newBookingResponse(b, false),
	})
}

func (s *HTTPServer) handleBookingsReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := queryInterval(r, "from", "to")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	bookings, err := s.bookings.ListBookingsInRange(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="bookings_`+
		from.In(s.location).Format("2006-01-02")+"_to_"+to.In(s.location).Format("2006-01-02")+`.xlsx"`)
	if err := report.WriteBookings(w, bookings, from, to, s.location); err != nil {
		s.log.Error().Err(err).Msg("write bookings report")
	}
}

// caller returns the authenticated user and the booking id from the path.
func (s *HTTPServer) caller(r *http.Request) (userID, bookingID int64, err error) {
	userID, err = s.auth.UserID(r)
	if err != nil {
		return 0, 0, err
	}
	bookingID, err = pathID(r)
	return userID, bookingID, err
}

// self returns the path user id, which must be the caller.
func (s *HTTPServer) self(r *http.Request) (int64, error) {
	userID, pathUser, err := s.caller(r)
	if err != nil {
		return 0, err
	}
	if userID != pathUser {
		return 0, errs.Authorizationf("user %d cannot read data of user %d", userID, pathUser)
	}
	return userID, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validationf("invalid id %q", raw)
	}
	return id, nil
}

func queryInterval(r *http.Request, startKey, endKey string) (time.Time, time.Time, error) {
	start, err := queryTime(r, startKey)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := queryTime(r, endKey)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	// An unescaped "+" in an offset arrives as a space.
	raw := strings.ReplaceAll(strings.TrimSpace(r.URL.Query().Get(key)), " ", "+")
	if raw == "" {
		return time.Time{}, errs.Validationf("%s is required", key)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errs.Validationf("%s must be an RFC3339 timestamp", key)
	}
	return t, nil
}

func parseAmount(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errs.Validationf("invalid amount %q", raw)
	}
	return &d, nil
}
