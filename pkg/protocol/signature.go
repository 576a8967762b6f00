package protocol

import (
	"errors"
	"fmt"
	"strings"
)

type SignatureMethod string

const (
	// SignatureMethodEcdsa signs the keccak256 digest of the canonical
	// action bytes with a secp256k1 key.
	SignatureMethodEcdsa SignatureMethod = "ecdsa"
	// SignatureMethodEcdsaEthereum signs the same bytes wrapped in the
	// EIP-191 personal-message prefix.
	SignatureMethodEcdsaEthereum SignatureMethod = "ecdsa-ethereum"
)

func (m SignatureMethod) Valid() bool {
	switch m {
	case SignatureMethodEcdsa, SignatureMethodEcdsaEthereum:
		return true
	}
	return false
}

var (
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signature carries a 65-byte r||s||v secp256k1 signature as
// 0x-prefixed hex.
type Signature struct {
	Method SignatureMethod `json:"method"`
	Value  string          `json:"value"`
}

func ValidateSignature(sig Signature) error {
	if !sig.Method.Valid() {
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidSignature, string(sig.Method))
	}
	if len(sig.Value) != 132 || !strings.HasPrefix(sig.Value, "0x") {
		return fmt.Errorf("%w: value is not 0x-prefixed 65-byte hex", ErrInvalidSignature)
	}
	for _, c := range sig.Value[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return fmt.Errorf("%w: value is not 0x-prefixed 65-byte hex", ErrInvalidSignature)
		}
	}
	return nil
}
