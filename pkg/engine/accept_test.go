package engine

import (
	"errors"
	"testing"

	"clearline/go-engine/pkg/protocol"
)

func acceptSigned(sig string) protocol.SignedAction {
	return signedBy(protocol.Action{Name: protocol.ActionAccept, Version: CurrentVersion}, sig)
}

func TestAcceptByPayer(t *testing.T) {
	eng := newTestEngine(t)
	req := mustCreate(t, eng)

	accepted, err := eng.Apply(acceptSigned("sig-payer"), &req)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.State != protocol.StateAccepted {
		t.Fatalf("expected accepted, got %q", accepted.State)
	}
	if accepted.RequestID != req.RequestID {
		t.Fatal("request id must not change on accept")
	}
	if accepted.ExpectedAmount.String() != req.ExpectedAmount.String() {
		t.Fatal("expected amount must not change on accept")
	}
	if len(accepted.Events) != 2 || accepted.Events[1].Name != protocol.ActionAccept {
		t.Fatalf("accept event missing: %+v", accepted.Events)
	}
}

func TestAcceptRejectsNonPayer(t *testing.T) {
	eng := newTestEngine(t)
	req := mustCreate(t, eng)

	for _, sig := range []string{"sig-payee", "sig-outsider"} {
		_, err := eng.Apply(acceptSigned(sig), &req)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("signer %s: expected ErrUnauthorized, got %v", sig, err)
		}
	}
}

func TestAcceptNeedsAPayer(t *testing.T) {
	eng := newTestEngine(t)
	payeeOnly := protocol.Action{
		Name:    protocol.ActionCreate,
		Version: CurrentVersion,
		Parameters: map[string]any{
			"payee":          payeeID,
			"expectedAmount": "250",
		},
	}
	req, err := eng.Apply(signedBy(payeeOnly, "sig-payee"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = eng.Apply(acceptSigned("sig-payee"), &req)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for payerless request, got %v", err)
	}
}

func TestAcceptOnlyFromCreated(t *testing.T) {
	eng := newTestEngine(t)

	// The state precondition dominates: it fires for any signer, not
	// just the payer.
	for _, state := range []protocol.RequestState{protocol.StateAccepted, protocol.StateCanceled} {
		for _, sig := range []string{"sig-payer", "sig-payee"} {
			req := mustCreate(t, eng)
			req.State = state
			_, err := eng.Apply(acceptSigned(sig), &req)
			if !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("state %q signer %s: expected ErrInvalidStateTransition, got %v", state, sig, err)
			}
		}
	}
}
