package engine

import (
	"fmt"
	"time"

	"clearline/go-engine/pkg/protocol"
)

// acceptHandler marks a request as agreed by its payer. Every other
// field passes through unchanged.
type acceptHandler struct{}

func (acceptHandler) Name() protocol.ActionName {
	return protocol.ActionAccept
}

func (acceptHandler) Apply(req protocol.Request, act protocol.Action, signer protocol.Identity, at time.Time) (protocol.Request, error) {
	if req.State != protocol.StateCreated {
		return protocol.Request{}, fmt.Errorf("%w: accept requires state %q, request is %q",
			ErrInvalidStateTransition, protocol.StateCreated, req.State)
	}
	if req.Payer == nil || !signer.Equal(*req.Payer) {
		return protocol.Request{}, fmt.Errorf("%w: only the payer may accept", ErrUnauthorized)
	}
	req.State = protocol.StateAccepted
	req.Events = append(req.Events, newEvent(act, signer, at))
	return req, nil
}
