package engine

import (
	"errors"
	"fmt"
	"strings"

	"clearline/go-engine/pkg/protocol"
)

// ValidateRequest checks the structural invariants every request must
// hold after creation. The dispatcher runs it on each update path;
// creation output is constructed valid and is not re-checked.
func ValidateRequest(req protocol.Request) error {
	if strings.TrimSpace(req.RequestID) == "" {
		return errors.New("request id is empty")
	}
	if len(req.RequestID) != 66 || !strings.HasPrefix(req.RequestID, "0x") {
		return fmt.Errorf("request id %q is not 0x-prefixed 32-byte hex", req.RequestID)
	}
	if err := protocol.ValidateIdentity(req.Creator); err != nil {
		return fmt.Errorf("creator: %v", err)
	}
	if !req.State.Valid() {
		return fmt.Errorf("state %q is not known", string(req.State))
	}
	if req.Payee == nil && req.Payer == nil {
		return errors.New("request names neither payee nor payer")
	}
	if req.Payee != nil {
		if err := protocol.ValidateIdentity(*req.Payee); err != nil {
			return fmt.Errorf("payee: %v", err)
		}
	}
	if req.Payer != nil {
		if err := protocol.ValidateIdentity(*req.Payer); err != nil {
			return fmt.Errorf("payer: %v", err)
		}
	}
	if req.ExpectedAmount.Sign() < 0 {
		return errors.New("expected amount is negative")
	}
	if strings.TrimSpace(req.Version) == "" {
		return errors.New("version is empty")
	}
	if len(req.Events) == 0 {
		return errors.New("event log is empty")
	}
	for i, ev := range req.Events {
		if strings.TrimSpace(string(ev.Name)) == "" {
			return fmt.Errorf("event %d has no action name", i)
		}
		if err := protocol.ValidateIdentity(ev.ActionSigner); err != nil {
			return fmt.Errorf("event %d signer: %v", i, err)
		}
	}
	return nil
}
