package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/booking"
	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/freebusy"
	"github.com/nittei/nittei/internal/store"
)

// apiError is the JSON error envelope of every non-2xx response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, apiError{Code: code, Message: message})
}

func badClientData(w http.ResponseWriter, message string) {
	respondError(w, http.StatusBadRequest, "bad_client_data", message)
}

func unauthorized(w http.ResponseWriter, message string) {
	respondError(w, http.StatusUnauthorized, "unauthorized", message)
}

func unidentifiable(w http.ResponseWriter, message string) {
	respondError(w, http.StatusBadRequest, "unidentifiable", message)
}

func notFound(w http.ResponseWriter, message string) {
	respondError(w, http.StatusNotFound, "not_found", message)
}

func conflict(w http.ResponseWriter, message string) {
	respondError(w, http.StatusConflict, "conflict", message)
}

// handleError maps core errors to the HTTP taxonomy. Unknown errors are
// internal: logged with detail, returned opaque.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var dateErr *domain.InvalidDateError
	var tzErr *domain.InvalidTimezoneError

	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrCalendarNotFound),
		errors.Is(err, store.ErrEventNotFound),
		errors.Is(err, store.ErrScheduleNotFound),
		errors.Is(err, store.ErrServiceNotFound),
		errors.Is(err, store.ErrResourceNotFound):
		notFound(w, err.Error())

	case errors.Is(err, store.ErrIntegrationExists),
		errors.Is(err, store.ErrBusyCalendarExists):
		conflict(w, err.Error())

	case errors.Is(err, booking.ErrUserNotAvailable):
		badClientData(w, "the user is not available at the given time")

	case errors.Is(err, booking.ErrWindowTooLarge),
		errors.Is(err, freebusy.ErrWindowTooLarge):
		badClientData(w, "the queried window exceeds the maximum allowed duration")

	case errors.Is(err, domain.ErrInvalidBookingInterval):
		badClientData(w, "invalid interval: it should be between 5 minutes and 2 hours, specified in milliseconds")

	case errors.Is(err, domain.ErrInvalidBookingTimespan),
		errors.Is(err, domain.ErrInvalidTimespan):
		badClientData(w, "the provided start and end do not form a valid window")

	case errors.As(err, &dateErr), errors.As(err, &tzErr):
		badClientData(w, err.Error())

	case errors.Is(err, errInvalidTimePlan),
		errors.Is(err, errInvalidStatus),
		errors.Is(err, domain.ErrInvalidRecurrence),
		errors.Is(err, domain.ErrInvalidReminder),
		errors.Is(err, domain.ErrNegativeDuration),
		errors.Is(err, domain.ErrExceptionWithoutOriginalStart),
		errors.Is(err, domain.ErrExceptionWithRecurrence):
		badClientData(w, err.Error())

	default:
		s.logger.Error("internal error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
