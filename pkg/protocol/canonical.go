package protocol

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/sha3"
)

var ErrNotCanonicalizable = errors.New("value cannot be canonically encoded")

// CanonicalActionBytes returns the byte sequence an action is hashed
// and signed over. The encoding is fixed by contract, not by
// serializer defaults: a JSON object with keys sorted at every level,
// no insignificant whitespace, absent optional fields omitted, and
// integer values preserved digit for digit. Two structurally equal
// actions always produce identical bytes.
func CanonicalActionBytes(a Action) ([]byte, error) {
	payload := map[string]any{
		"name":    string(a.Name),
		"version": a.Version,
	}
	if len(a.Parameters) > 0 {
		params, err := canonicalValue(a.Parameters)
		if err != nil {
			return nil, err
		}
		payload["parameters"] = params
	}
	return json.Marshal(payload)
}

// ActionID derives the content address of an action: the 0x-prefixed
// keccak256 of its canonical bytes. Identical creation payloads
// collide predictably regardless of who signed them.
func ActionID(a Action) (string, error) {
	raw, err := CanonicalActionBytes(a)
	if err != nil {
		return "", err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(raw)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, bool, json.Number:
		return val, nil
	case int:
		return json.Number(strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return json.Number(strconv.FormatInt(val, 10)), nil
	case uint64:
		return json.Number(strconv.FormatUint(val, 10)), nil
	case Amount:
		return val.String(), nil
	case Identity:
		return map[string]any{"type": string(val.Type), "value": val.Value}, nil
	case *Identity:
		if val == nil {
			return nil, nil
		}
		return canonicalValue(*val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			norm, err := canonicalValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = norm
		}
		return out, nil
	case ExtensionData:
		return canonicalValue(map[string]any(val))
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			norm, err := canonicalValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, norm)
		}
		return out, nil
	case []ExtensionData:
		out := make([]any, 0, len(val))
		for _, item := range val {
			norm, err := canonicalValue(map[string]any(item))
			if err != nil {
				return nil, err
			}
			out = append(out, norm)
		}
		return out, nil
	case float64, float32:
		// Floats lose digit fidelity across encoders; callers must
		// supply json.Number or string values instead.
		return nil, fmt.Errorf("%w: floating point value %v", ErrNotCanonicalizable, val)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrNotCanonicalizable, v)
	}
}
