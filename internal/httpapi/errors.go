package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"clearline/go-engine/internal/fold"
	"clearline/go-engine/internal/journal"
	"clearline/go-engine/internal/settlement"
	"clearline/go-engine/pkg/engine"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// statusFor maps a rejection to an HTTP status. The engine taxonomy
// splits into caller mistakes (4xx) and everything else.
func statusFor(err error) int {
	switch {
	case errors.Is(err, journal.ErrChannelNotFound),
		errors.Is(err, fold.ErrNoRequest):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnsupportedVersion),
		errors.Is(err, engine.ErrUnknownAction),
		errors.Is(err, engine.ErrMissingParty),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, settlement.ErrMalformedFact):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrRequestExpected),
		errors.Is(err, engine.ErrUnexpectedRequestForCreate),
		errors.Is(err, engine.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidRequestState):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, journal.ErrChannelNotFound):
		return "channel-not-found"
	case errors.Is(err, fold.ErrNoRequest):
		return "request-not-found"
	case errors.Is(err, settlement.ErrMalformedFact):
		return "malformed-fact"
	default:
		return engine.ErrorCode(err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRejection(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorEnvelope{Error: apiError{
		Code:    codeFor(err),
		Message: err.Error(),
	}})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}
