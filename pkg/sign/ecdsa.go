// Package sign implements secp256k1 signing and identity recovery for
// canonical action bytes.
package sign

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"clearline/go-engine/pkg/protocol"
)

var (
	ErrUnsupportedMethod  = errors.New("unsupported signature method")
	ErrSignatureMalformed = errors.New("signature is malformed")
)

// digestFor maps a signature method to the 32-byte digest that is
// actually signed.
func digestFor(method protocol.SignatureMethod, payload []byte) ([]byte, error) {
	switch method {
	case protocol.SignatureMethodEcdsa:
		return crypto.Keccak256(payload), nil
	case protocol.SignatureMethodEcdsaEthereum:
		prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(payload), payload)
		return crypto.Keccak256([]byte(prefixed)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, string(method))
	}
}

// EcdsaVerifier recovers the signing identity from a signature over
// the supplied payload. It satisfies the engine's IdentityVerifier
// contract.
type EcdsaVerifier struct{}

func NewEcdsaVerifier() *EcdsaVerifier {
	return &EcdsaVerifier{}
}

func (v *EcdsaVerifier) Recover(payload []byte, sig protocol.Signature) (protocol.Identity, error) {
	if err := protocol.ValidateSignature(sig); err != nil {
		return protocol.Identity{}, fmt.Errorf("%w: %v", ErrSignatureMalformed, err)
	}
	raw, err := hex.DecodeString(sig.Value[2:])
	if err != nil {
		return protocol.Identity{}, fmt.Errorf("%w: %v", ErrSignatureMalformed, err)
	}
	digest, err := digestFor(sig.Method, payload)
	if err != nil {
		return protocol.Identity{}, err
	}

	// Wallets emit recovery ids as 27/28, crypto.SigToPub wants 0/1.
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	if raw[64] > 1 {
		return protocol.Identity{}, fmt.Errorf("%w: recovery id out of range", ErrSignatureMalformed)
	}
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return protocol.Identity{}, fmt.Errorf("%w: %v", ErrSignatureMalformed, err)
	}
	addr := crypto.PubkeyToAddress(*pub)
	return protocol.Identity{
		Type:  protocol.IdentityTypeEthereumAddress,
		Value: strings.ToLower(addr.Hex()),
	}, nil
}

// EcdsaSigner produces signatures the verifier can recover. It backs
// tests and the devsigner tool; production signing stays outside the
// engine.
type EcdsaSigner struct {
	key *ecdsa.PrivateKey
}

func NewSigner(key *ecdsa.PrivateKey) *EcdsaSigner {
	return &EcdsaSigner{key: key}
}

func NewSignerFromHex(keyHex string) (*EcdsaSigner, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &EcdsaSigner{key: key}, nil
}

func (s *EcdsaSigner) Address() protocol.Identity {
	addr := crypto.PubkeyToAddress(s.key.PublicKey)
	return protocol.Identity{
		Type:  protocol.IdentityTypeEthereumAddress,
		Value: strings.ToLower(addr.Hex()),
	}
}

func (s *EcdsaSigner) Sign(payload []byte, method protocol.SignatureMethod) (protocol.Signature, error) {
	digest, err := digestFor(method, payload)
	if err != nil {
		return protocol.Signature{}, err
	}
	raw, err := crypto.Sign(digest, s.key)
	if err != nil {
		return protocol.Signature{}, fmt.Errorf("sign digest: %w", err)
	}
	return protocol.Signature{Method: method, Value: "0x" + hex.EncodeToString(raw)}, nil
}

// SignAction signs the canonical bytes of an action.
func (s *EcdsaSigner) SignAction(act protocol.Action, method protocol.SignatureMethod) (protocol.SignedAction, error) {
	payload, err := protocol.CanonicalActionBytes(act)
	if err != nil {
		return protocol.SignedAction{}, err
	}
	sig, err := s.Sign(payload, method)
	if err != nil {
		return protocol.SignedAction{}, err
	}
	return protocol.SignedAction{Data: act.Clone(), Signature: sig}, nil
}
