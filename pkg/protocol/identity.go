package protocol

import (
	"errors"
	"fmt"
	"strings"
)

type IdentityType string

const (
	// IdentityTypeEthereumAddress identifies an actor by the 20-byte
	// address derived from a secp256k1 public key.
	IdentityTypeEthereumAddress IdentityType = "ethereumAddress"
)

func (t IdentityType) Valid() bool {
	return t == IdentityTypeEthereumAddress
}

var (
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Identity names one protocol actor. Values of type ethereumAddress
// compare case-insensitively.
type Identity struct {
	Type  IdentityType `json:"type"`
	Value string       `json:"value"`
}

func (id Identity) Equal(other Identity) bool {
	if id.Type != other.Type {
		return false
	}
	return strings.EqualFold(id.Value, other.Value)
}

// Normalize returns the identity with its value in canonical form.
func (id Identity) Normalize() Identity {
	if id.Type == IdentityTypeEthereumAddress {
		id.Value = strings.ToLower(id.Value)
	}
	return id
}

func ValidateIdentity(id Identity) error {
	if !id.Type.Valid() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidIdentity, string(id.Type))
	}
	if !isHexAddress(id.Value) {
		return fmt.Errorf("%w: value is not a 0x-prefixed 20-byte hex address", ErrInvalidIdentity)
	}
	return nil
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
