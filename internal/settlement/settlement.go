// Package settlement holds what the engine consumes from the payment
// layer: confirmation facts keyed by payment reference. Executing
// transfers is an external collaborator's job; facts are received
// here, never produced.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/sha3"

	"clearline/go-engine/pkg/protocol"
)

var (
	ErrMalformedFact = errors.New("malformed payment fact")
)

// Fact is one confirmed transfer reported by the settlement layer.
type Fact struct {
	Reference  string          `json:"reference"`
	Amount     protocol.Amount `json:"amount"`
	Fee        protocol.Amount `json:"fee"`
	FeeAddress string          `json:"fee_address,omitempty"`
	TxHash     string          `json:"tx_hash"`
	At         time.Time       `json:"at"`
}

func ValidateFact(fact Fact) error {
	if strings.TrimSpace(fact.Reference) == "" {
		return errors.New("reference is required")
	}
	if fact.Amount.Sign() <= 0 {
		return errors.New("amount must be positive")
	}
	if fact.Fee.Sign() < 0 {
		return errors.New("fee cannot be negative")
	}
	if strings.TrimSpace(fact.TxHash) == "" {
		return errors.New("tx hash is required")
	}
	return nil
}

// Recorder accepts settlement facts and answers reference lookups.
type Recorder interface {
	Record(ctx context.Context, fact Fact) error
	ListByReference(ctx context.Context, reference string) ([]Fact, error)
}

// PaymentReference derives the short identifier payers attach to a
// transfer so it can be matched back to a request. The pair is hashed
// lowercased; the first 8 bytes are base58-encoded.
func PaymentReference(requestID, payeeAddress string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.ToLower(requestID)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(payeeAddress)))
	sum := h.Sum(nil)
	return base58.Encode(sum[:8])
}

// ReferenceForRequest resolves the reference of a derived request, or
// "" when the request has no payee to route funds to.
func ReferenceForRequest(req protocol.Request) string {
	if req.RequestID == "" || req.Payee == nil {
		return ""
	}
	return PaymentReference(req.RequestID, req.Payee.Value)
}

// MemoryRecorder keeps facts in process memory.
type MemoryRecorder struct {
	mu    sync.RWMutex
	facts map[string][]Fact
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{facts: make(map[string][]Fact)}
}

func (r *MemoryRecorder) Record(ctx context.Context, fact Fact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateFact(fact); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFact, err)
	}
	fact.Amount = fact.Amount.Clone()
	fact.Fee = fact.Fee.Clone()
	fact.At = fact.At.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts[fact.Reference] = append(r.facts[fact.Reference], fact)
	return nil
}

func (r *MemoryRecorder) ListByReference(ctx context.Context, reference string) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	facts := r.facts[reference]
	out := make([]Fact, 0, len(facts))
	for _, fact := range facts {
		fact.Amount = fact.Amount.Clone()
		fact.Fee = fact.Fee.Clone()
		out = append(out, fact)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

var _ Recorder = (*MemoryRecorder)(nil)
