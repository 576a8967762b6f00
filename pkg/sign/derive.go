package sign

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoSigning = "clearline/signer/secp256k1/v1"

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrKeyDerivation   = errors.New("key derivation failed")
)

// NewMnemonic returns a fresh 24-word BIP-39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// DeriveKey expands a mnemonic into a secp256k1 private key. The same
// mnemonic always yields the same key.
func DeriveKey(mnemonic string) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	reader := hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoSigning))

	// Successive blocks are read until one lands in the curve's scalar
	// range; the first practically always does.
	buf := make([]byte, 32)
	for attempt := 0; attempt < 8; attempt++ {
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, err
		}
		key, err := crypto.ToECDSA(buf)
		if err == nil {
			return key, nil
		}
	}
	return nil, ErrKeyDerivation
}

// NewSignerFromMnemonic is the common path for tests and the devsigner
// tool.
func NewSignerFromMnemonic(mnemonic string) (*EcdsaSigner, error) {
	key, err := DeriveKey(mnemonic)
	if err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}
