package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"clearline/go-engine/pkg/protocol"
)

// createHandler starts a request from nothing. The request id is
// derived from the canonical creation payload, so identical payloads
// converge on the same id without coordination.
type createHandler struct{}

func (createHandler) Name() protocol.ActionName {
	return protocol.ActionCreate
}

func (createHandler) Apply(_ protocol.Request, act protocol.Action, signer protocol.Identity, at time.Time) (protocol.Request, error) {
	payee, err := identityParam(act.Parameters, "payee")
	if err != nil {
		return protocol.Request{}, fmt.Errorf("%w: payee: %v", ErrMissingParty, err)
	}
	payer, err := identityParam(act.Parameters, "payer")
	if err != nil {
		return protocol.Request{}, fmt.Errorf("%w: payer: %v", ErrMissingParty, err)
	}
	if payee == nil && payer == nil {
		return protocol.Request{}, fmt.Errorf("%w: create names neither payee nor payer", ErrMissingParty)
	}

	amount, err := amountParam(act.Parameters, "expectedAmount")
	if err != nil {
		return protocol.Request{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if amount.Sign() < 0 {
		return protocol.Request{}, fmt.Errorf("%w: expected amount is negative", ErrInvalidAmount)
	}

	if !signerIsParty(signer, payee, payer) {
		return protocol.Request{}, fmt.Errorf("%w: creator must be the payee or the payer", ErrUnauthorized)
	}

	extensions, err := extensionsParam(act.Parameters, "extensionsData")
	if err != nil {
		return protocol.Request{}, fmt.Errorf("%w: extensionsData: %v", ErrInvalidRequestState, err)
	}

	id, err := protocol.ActionID(act)
	if err != nil {
		return protocol.Request{}, fmt.Errorf("derive request id: %w", err)
	}

	return protocol.Request{
		RequestID:      id,
		Creator:        signer,
		Payee:          payee,
		Payer:          payer,
		ExpectedAmount: amount,
		State:          protocol.StateCreated,
		ExtensionsData: extensions,
		Version:        act.Version,
		Events:         []protocol.Event{newEvent(act, signer, at)},
	}, nil
}

func signerIsParty(signer protocol.Identity, payee, payer *protocol.Identity) bool {
	if payee != nil && signer.Equal(*payee) {
		return true
	}
	if payer != nil && signer.Equal(*payer) {
		return true
	}
	return false
}

// identityParam reads an optional identity parameter. Both decoded
// JSON objects and protocol.Identity values are accepted.
func identityParam(params map[string]any, key string) (*protocol.Identity, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var id protocol.Identity
	switch val := raw.(type) {
	case protocol.Identity:
		id = val
	case *protocol.Identity:
		if val == nil {
			return nil, nil
		}
		id = *val
	case map[string]any:
		typ, _ := val["type"].(string)
		value, _ := val["value"].(string)
		id = protocol.Identity{Type: protocol.IdentityType(typ), Value: value}
	default:
		return nil, fmt.Errorf("unsupported value of type %T", raw)
	}
	if err := protocol.ValidateIdentity(id); err != nil {
		return nil, err
	}
	id = id.Normalize()
	return &id, nil
}

func amountParam(params map[string]any, key string) (protocol.Amount, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return protocol.Amount{}, fmt.Errorf("%s is required", key)
	}
	switch val := raw.(type) {
	case protocol.Amount:
		return val.Clone(), nil
	case string:
		return protocol.ParseAmount(val)
	case json.Number:
		return protocol.ParseAmount(val.String())
	case int:
		return protocol.NewAmount(int64(val)), nil
	case int64:
		return protocol.NewAmount(val), nil
	default:
		return protocol.Amount{}, fmt.Errorf("%s has unsupported value of type %T", key, raw)
	}
}

func extensionsParam(params map[string]any, key string) ([]protocol.ExtensionData, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch val := raw.(type) {
	case []protocol.ExtensionData:
		out := make([]protocol.ExtensionData, 0, len(val))
		for _, ext := range val {
			out = append(out, protocol.ExtensionData(protocol.CloneParams(ext)))
		}
		return out, nil
	case []any:
		out := make([]protocol.ExtensionData, 0, len(val))
		for i, item := range val {
			ext, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("entry %d is not an object", i)
			}
			out = append(out, protocol.ExtensionData(protocol.CloneParams(ext)))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", raw)
	}
}
