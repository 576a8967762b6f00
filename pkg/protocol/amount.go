package protocol

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

var (
	ErrMalformedAmount = errors.New("malformed amount")
)

// Amount is an arbitrary-precision signed integer. The wire form is a
// canonical base-10 string: optional leading '-', no leading zeros,
// no sign on zero. JSON decoding also accepts a bare integer literal.
type Amount struct {
	i big.Int
}

func NewAmount(v int64) Amount {
	var a Amount
	a.i.SetInt64(v)
	return a
}

func ParseAmount(s string) (Amount, error) {
	if !canonicalDecimal(s) {
		return Amount{}, fmt.Errorf("%w: %q is not a canonical decimal integer", ErrMalformedAmount, s)
	}
	var a Amount
	if _, ok := a.i.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	return a, nil
}

func (a Amount) String() string {
	return a.i.String()
}

// Sign reports -1, 0 or 1.
func (a Amount) Sign() int {
	return a.i.Sign()
}

func (a Amount) Equal(other Amount) bool {
	return a.i.Cmp(&other.i) == 0
}

func (a Amount) Clone() Amount {
	var out Amount
	out.i.Set(&a.i)
	return out
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.i.String())), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedAmount, err)
		}
		s = unquoted
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func canonicalDecimal(s string) bool {
	if s == "" {
		return false
	}
	digits := s
	if s[0] == '-' {
		digits = s[1:]
		if digits == "" || digits == "0" {
			return false
		}
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	if len(digits) > 1 && digits[0] == '0' {
		return false
	}
	return true
}
