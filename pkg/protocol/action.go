package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type ActionName string

const (
	ActionCreate ActionName = "create"
	ActionAccept ActionName = "accept"
)

// Action is one signed intent against a request. Parameters are
// action-specific; numeric values decoded from the wire are kept as
// json.Number so their digits survive re-encoding.
type Action struct {
	Name       ActionName     `json:"name"`
	Version    string         `json:"version"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type SignedAction struct {
	Data      Action    `json:"data"`
	Signature Signature `json:"signature"`
}

var ErrMalformedAction = errors.New("malformed action")

// DecodeSignedAction parses exactly one signed action. Unknown
// top-level fields and trailing tokens are rejected.
func DecodeSignedAction(r io.Reader) (SignedAction, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var signed SignedAction
	if err := dec.Decode(&signed); err != nil {
		return SignedAction{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return SignedAction{}, fmt.Errorf("%w: unexpected trailing json tokens", ErrMalformedAction)
	} else if !errors.Is(err, io.EOF) {
		return SignedAction{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	if signed.Data.Name == "" {
		return SignedAction{}, fmt.Errorf("%w: action name is required", ErrMalformedAction)
	}
	return signed, nil
}

func DecodeSignedActionBytes(raw []byte) (SignedAction, error) {
	return DecodeSignedAction(bytes.NewReader(raw))
}

// Clone returns a deep copy; the receiver's parameter maps are never
// shared with the result.
func (a Action) Clone() Action {
	out := a
	out.Parameters = CloneParams(a.Parameters)
	return out
}

func (s SignedAction) Clone() SignedAction {
	return SignedAction{Data: s.Data.Clone(), Signature: s.Signature}
}
