package engine

import "errors"

// Rejection taxonomy. Every failed apply wraps exactly one of these
// sentinels; callers branch with errors.Is and map to stable codes
// with ErrorCode.
var (
	ErrUnsupportedVersion         = errors.New("unsupported action version")
	ErrRequestExpected            = errors.New("action requires an existing request")
	ErrUnexpectedRequestForCreate = errors.New("create cannot target an existing request")
	ErrInvalidRequestState        = errors.New("request failed structural validation")
	ErrUnknownAction              = errors.New("unknown action")
	ErrMissingParty               = errors.New("request needs at least one party")
	ErrInvalidAmount              = errors.New("invalid expected amount")
	ErrSignatureInvalid           = errors.New("signature cannot be verified")
	ErrInvalidStateTransition     = errors.New("invalid state transition")
	ErrUnauthorized               = errors.New("signer is not authorized")
)

// ErrorCode renders a rejection as a stable slug for logs, metrics and
// API responses. Unrecognized errors map to "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedVersion):
		return "unsupported-version"
	case errors.Is(err, ErrRequestExpected):
		return "request-expected"
	case errors.Is(err, ErrUnexpectedRequestForCreate):
		return "unexpected-request-for-create"
	case errors.Is(err, ErrInvalidRequestState):
		return "invalid-request-state"
	case errors.Is(err, ErrUnknownAction):
		return "unknown-action"
	case errors.Is(err, ErrMissingParty):
		return "missing-party"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid-amount"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature-invalid"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid-state-transition"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
