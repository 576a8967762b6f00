package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"clearline/go-engine/pkg/protocol"
)

func TestPaymentReferenceDeterministic(t *testing.T) {
	requestID := "0xabc0000000000000000000000000000000000000000000000000000000000000"
	payee := "0x5aeda56215b167893e80b4fe645ba6d5bab767de"

	first := PaymentReference(requestID, payee)
	second := PaymentReference(requestID, payee)
	if first == "" || first != second {
		t.Fatalf("reference must be stable, got %q and %q", first, second)
	}

	// Case differences must not change the reference.
	mixed := PaymentReference(requestID, "0x5AEDA56215B167893E80B4FE645BA6D5BAB767DE")
	if mixed != first {
		t.Fatalf("reference must be case-insensitive, got %q vs %q", mixed, first)
	}

	other := PaymentReference(requestID, "0x627306090abab3a6e1400e9345bc60c78a8bef57")
	if other == first {
		t.Fatal("different payees must produce different references")
	}
}

func TestReferenceForRequest(t *testing.T) {
	payee := protocol.Identity{Type: protocol.IdentityTypeEthereumAddress, Value: "0x5aeda56215b167893e80b4fe645ba6d5bab767de"}
	req := protocol.Request{
		RequestID: "0xabc0000000000000000000000000000000000000000000000000000000000000",
		Payee:     &payee,
	}
	if ReferenceForRequest(req) == "" {
		t.Fatal("request with payee must have a reference")
	}
	req.Payee = nil
	if ReferenceForRequest(req) != "" {
		t.Fatal("request without payee must have no reference")
	}
}

func testFact(reference string, at time.Time) Fact {
	amount, _ := protocol.ParseAmount("500")
	return Fact{
		Reference: reference,
		Amount:    amount,
		TxHash:    "0xdeadbeef",
		At:        at,
	}
}

func TestMemoryRecorder(t *testing.T) {
	recorder := NewMemoryRecorder()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := recorder.Record(ctx, testFact("ref-1", base.Add(time.Hour))); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := recorder.Record(ctx, testFact("ref-1", base)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := recorder.Record(ctx, testFact("ref-2", base)); err != nil {
		t.Fatalf("record: %v", err)
	}

	facts, err := recorder.ListByReference(ctx, "ref-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts))
	}
	if !facts[0].At.Before(facts[1].At) {
		t.Fatal("facts must list in time order")
	}

	none, err := recorder.ListByReference(ctx, "ref-absent")
	if err != nil {
		t.Fatalf("list absent: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no facts, got %d", len(none))
	}
}

func TestRecorderRejectsMalformedFacts(t *testing.T) {
	recorder := NewMemoryRecorder()
	ctx := context.Background()
	base := time.Now()

	bad := testFact("", base)
	if err := recorder.Record(ctx, bad); !errors.Is(err, ErrMalformedFact) {
		t.Fatalf("expected ErrMalformedFact, got %v", err)
	}

	negative := testFact("ref-1", base)
	amount, _ := protocol.ParseAmount("-5")
	negative.Amount = amount
	if err := recorder.Record(ctx, negative); !errors.Is(err, ErrMalformedFact) {
		t.Fatalf("expected ErrMalformedFact for negative amount, got %v", err)
	}
}
