package protocol

import (
	"encoding/json"
	"time"
)

type RequestState string

const (
	StateCreated  RequestState = "created"
	StateAccepted RequestState = "accepted"
	StateCanceled RequestState = "canceled"
)

func (s RequestState) Valid() bool {
	switch s {
	case StateCreated, StateAccepted, StateCanceled:
		return true
	}
	return false
}

// ExtensionData is one namespaced payload carried through the core
// untouched and uninterpreted.
type ExtensionData map[string]any

// Event records one applied action in a request's audit log.
type Event struct {
	Name         ActionName     `json:"name"`
	ActionSigner Identity       `json:"action_signer"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Request is the canonical state derived from an ordered chain of
// signed actions.
type Request struct {
	RequestID      string          `json:"request_id"`
	Creator        Identity        `json:"creator"`
	Payee          *Identity       `json:"payee,omitempty"`
	Payer          *Identity       `json:"payer,omitempty"`
	ExpectedAmount Amount          `json:"expected_amount"`
	State          RequestState    `json:"state"`
	ExtensionsData []ExtensionData `json:"extensions_data,omitempty"`
	Version        string          `json:"version"`
	Events         []Event         `json:"events"`
}

// Clone returns a deep copy sharing no mutable memory with the
// receiver.
func (r Request) Clone() Request {
	out := r
	if r.Payee != nil {
		payee := *r.Payee
		out.Payee = &payee
	}
	if r.Payer != nil {
		payer := *r.Payer
		out.Payer = &payer
	}
	out.ExpectedAmount = r.ExpectedAmount.Clone()
	if r.ExtensionsData != nil {
		out.ExtensionsData = make([]ExtensionData, 0, len(r.ExtensionsData))
		for _, ext := range r.ExtensionsData {
			out.ExtensionsData = append(out.ExtensionsData, ExtensionData(CloneParams(ext)))
		}
	}
	if r.Events != nil {
		out.Events = make([]Event, 0, len(r.Events))
		for _, ev := range r.Events {
			cloned := ev
			cloned.Parameters = CloneParams(ev.Parameters)
			out.Events = append(out.Events, cloned)
		}
	}
	return out
}

// CloneParams deep-copies a parameter map. Nested maps and slices are
// copied; scalar values pass through.
func CloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneParams(val)
	case ExtensionData:
		return ExtensionData(CloneParams(val))
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, cloneValue(item))
		}
		return out
	case []ExtensionData:
		out := make([]ExtensionData, 0, len(val))
		for _, item := range val {
			out = append(out, ExtensionData(CloneParams(item)))
		}
		return out
	case json.RawMessage:
		return append(json.RawMessage(nil), val...)
	default:
		return v
	}
}
