package api

import (
	"context"
	"errors"
	"net/http"

	"smarterdog/internal/database"
	"smarterdog/internal/models"
	"smarterdog/internal/schedule"
	"smarterdog/internal/service"
	"smarterdog/internal/wizard"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, wizard.ErrMissingFields),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, database.ErrInvalidInput),
		errors.Is(err, schedule.ErrInvalidDate),
		errors.Is(err, schedule.ErrInvalidClock),
		errors.Is(err, models.ErrInvalidValue):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrInvalidService),
		errors.Is(err, schedule.ErrPastDate),
		errors.Is(err, schedule.ErrDateTooFar),
		errors.Is(err, schedule.ErrClosedDay),
		errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, wizard.ErrUnknownAction):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, database.ErrSlotTaken),
		errors.Is(err, database.ErrNotCancellable),
		errors.Is(err, service.ErrSubmitLocked),
		errors.Is(err, wizard.ErrSubmissionInFlight),
		errors.Is(err, wizard.ErrNotSubmitting),
		errors.Is(err, wizard.ErrBookingClosed):
		return http.StatusConflict

	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// writeServiceError renders err. Unexpected errors are logged and their
// text is not exposed.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var mfe *wizard.MissingFieldsError
	if errors.As(err, &mfe) {
		body.Fields = mfe.Fields
	}

	switch status {
	case http.StatusInternalServerError:
		s.log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		body.Error = "internal error"
	case http.StatusServiceUnavailable:
		s.log.Warn().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request timed out")
		body.Error = "service unavailable"
	}
	writeJSON(w, status, body)
}
