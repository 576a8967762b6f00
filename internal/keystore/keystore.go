// Package keystore persists a signer mnemonic encrypted at rest. The key
// itself is never written; it is re-derived from the mnemonic on load.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clearline/go-engine/pkg/sign"
)

var (
	ErrNotFound = errors.New("keystore file not found")
	ErrExists   = errors.New("keystore file already exists")
)

type record struct {
	Mnemonic  string    `json:"mnemonic"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Init generates a fresh mnemonic, persists it encrypted at path and
// returns the derived signer plus the mnemonic for one-time display.
// An existing file is never overwritten.
func Init(path, passphrase string) (*sign.EcdsaSigner, string, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrExists, path)
	}
	mnemonic, err := sign.NewMnemonic()
	if err != nil {
		return nil, "", fmt.Errorf("generate mnemonic: %w", err)
	}
	signer, err := Import(path, passphrase, mnemonic)
	if err != nil {
		return nil, "", err
	}
	return signer, mnemonic, nil
}

// Import derives a signer from the supplied mnemonic and persists the
// mnemonic encrypted at path.
func Import(path, passphrase, mnemonic string) (*sign.EcdsaSigner, error) {
	signer, err := sign.NewSignerFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	rec := record{
		Mnemonic:  strings.TrimSpace(mnemonic),
		Address:   signer.Address().Value,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	encrypted, err := encrypt(passphrase, payload)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, encrypted, 0o600); err != nil {
		return nil, err
	}
	return signer, nil
}

// Load decrypts the keystore at path and re-derives the signer. The
// address recorded at init is cross-checked against the derived one.
func Load(path, passphrase string) (*sign.EcdsaSigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	payload, err := decrypt(passphrase, raw)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	signer, err := sign.NewSignerFromMnemonic(rec.Mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if rec.Address != "" && !strings.EqualFold(rec.Address, signer.Address().Value) {
		return nil, fmt.Errorf("%w: recorded address does not match derived key", ErrInvalid)
	}
	return signer, nil
}

// Exists reports whether a keystore file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
