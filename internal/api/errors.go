package api

import (
	"net/http"

	"storagebooking/internal/availability"
	"storagebooking/internal/errs"
	"storagebooking/internal/service"
)

type errorResponse struct {
	Error     string                  `json:"error"`
	Kind      string                  `json:"kind,omitempty"`
	Conflicts []availability.Conflict `json:"conflicts,omitempty"`
}

func statusForError(err error) int {
	if errs.Is(err, service.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindAuthorization:
		return http.StatusForbidden
	case errs.KindUnavailable, errs.KindRetryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error onto a status code. Internal errors
// are logged and replaced with a generic message.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	kind := errs.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: kind.String()}

	var unavailable *service.UnavailableError
	if errs.As(err, &unavailable) {
		resp.Conflicts = unavailable.Conflicts
	}

	switch kind {
	case errs.KindInternal:
		s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		resp.Error = "internal error"
	case errs.KindRetryable:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, resp)
}
