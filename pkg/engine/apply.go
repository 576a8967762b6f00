package engine

import (
	"fmt"
	"time"

	"clearline/go-engine/pkg/protocol"
)

// Apply reduces one signed action against the prior request, or
// against nothing when prior is nil. On success it returns the
// complete next request; on failure the returned error wraps one
// taxonomy sentinel and prior is left byte-identical. The caller's
// request is never aliased or mutated.
func (e *Engine) Apply(signed protocol.SignedAction, prior *protocol.Request) (protocol.Request, error) {
	return e.ApplyAt(signed, prior, e.now())
}

// ApplyAt is Apply with an explicit event timestamp, letting callers
// replay a journal with its recorded confirmation times.
func (e *Engine) ApplyAt(signed protocol.SignedAction, prior *protocol.Request, at time.Time) (protocol.Request, error) {
	act := signed.Data

	// The version gate runs before anything else is interpreted.
	if !e.SupportsVersion(act.Version) {
		return protocol.Request{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, act.Version)
	}

	isCreate := act.Name == protocol.ActionCreate
	if isCreate && prior != nil {
		return protocol.Request{}, fmt.Errorf("%w: request %s already exists", ErrUnexpectedRequestForCreate, prior.RequestID)
	}
	if !isCreate && prior == nil {
		return protocol.Request{}, fmt.Errorf("%w: action %q", ErrRequestExpected, string(act.Name))
	}

	working := protocol.Request{}
	if !isCreate {
		working = prior.Clone()
		if err := ValidateRequest(working); err != nil {
			return protocol.Request{}, fmt.Errorf("%w: %v", ErrInvalidRequestState, err)
		}
	}

	payload, err := protocol.CanonicalActionBytes(act)
	if err != nil {
		return protocol.Request{}, fmt.Errorf("%w: canonical encoding: %v", ErrSignatureInvalid, err)
	}
	signer, err := e.verifier.Recover(payload, signed.Signature)
	if err != nil {
		return protocol.Request{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	signer = signer.Normalize()
	if err := protocol.ValidateIdentity(signer); err != nil {
		return protocol.Request{}, fmt.Errorf("%w: recovered identity: %v", ErrSignatureInvalid, err)
	}

	handler, ok := e.handlers[act.Name]
	if !ok {
		return protocol.Request{}, fmt.Errorf("%w: %q", ErrUnknownAction, string(act.Name))
	}
	next, err := handler.Apply(working, act, signer, at)
	if err != nil {
		return protocol.Request{}, err
	}
	return next, nil
}
