package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ErrAmountOverflow is returned when an amount operation leaves the uint256 range.
var ErrAmountOverflow = errors.New("amount overflow")

// weiPerEther is used for display conversion only.
var weiPerEther = decimal.New(1, 18)

// Wei is an unsigned 256-bit amount of the smallest currency unit.
// It is stored as a base-10 string so every SQL backend keeps it exact.
type Wei struct {
	v uint256.Int
}

// NewWei returns an amount from a uint64.
func NewWei(n uint64) Wei {
	var w Wei
	w.v.SetUint64(n)
	return w
}

// ParseWei parses a base-10 (or 0x-prefixed hex) amount.
func ParseWei(s string) (Wei, error) {
	var w Wei
	s = strings.TrimSpace(s)
	if s == "" {
		return w, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if err := w.v.SetFromHex(s); err != nil {
			return Wei{}, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		return w, nil
	}
	if err := w.v.SetFromDecimal(s); err != nil {
		return Wei{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return w, nil
}

// MustParseWei is ParseWei for constants; it panics on bad input.
func MustParseWei(s string) Wei {
	w, err := ParseWei(s)
	if err != nil {
		panic(err)
	}
	return w
}

func (w Wei) IsZero() bool { return w.v.IsZero() }
func (w Wei) Eq(o Wei) bool { return w.v.Eq(&o.v) }
func (w Wei) Lt(o Wei) bool { return w.v.Lt(&o.v) }
func (w Wei) Cmp(o Wei) int { return w.v.Cmp(&o.v) }
func (w Wei) String() string { return w.v.Dec() }
func (w Wei) Uint256() *uint256.Int { return new(uint256.Int).Set(&w.v) }

// Add returns w+o, failing on overflow.
func (w Wei) Add(o Wei) (Wei, error) {
	var r Wei
	if _, overflow := r.v.AddOverflow(&w.v, &o.v); overflow {
		return Wei{}, ErrAmountOverflow
	}
	return r, nil
}

// Sub returns w-o, failing on underflow.
func (w Wei) Sub(o Wei) (Wei, error) {
	var r Wei
	if _, underflow := r.v.SubOverflow(&w.v, &o.v); underflow {
		return Wei{}, ErrAmountOverflow
	}
	return r, nil
}

// MulDiv returns floor(w*num/den) with a 512-bit intermediate product.
func (w Wei) MulDiv(num, den uint64) (Wei, error) {
	if den == 0 {
		return Wei{}, errors.New("division by zero")
	}
	var r Wei
	n := uint256.NewInt(num)
	d := uint256.NewInt(den)
	if _, overflow := r.v.MulDivOverflow(&w.v, n, d); overflow {
		return Wei{}, ErrAmountOverflow
	}
	return r, nil
}

// DivMod splits w into n equal parts and the remainder.
func (w Wei) DivMod(n uint64) (Wei, Wei) {
	var q, m Wei
	if n == 0 {
		return q, w
	}
	d := uint256.NewInt(n)
	q.v.DivMod(&w.v, d, &m.v)
	return q, m
}

// Ether renders the amount in ether units for display.
func (w Wei) Ether() decimal.Decimal {
	d, err := decimal.NewFromString(w.v.Dec())
	if err != nil {
		return decimal.Zero
	}
	return d.Div(weiPerEther)
}

// Value implements driver.Valuer.
func (w Wei) Value() (driver.Value, error) {
	return w.v.Dec(), nil
}

// Scan implements sql.Scanner.
func (w *Wei) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		w.v.Clear()
		return nil
	case string:
		return w.v.SetFromDecimal(v)
	case []byte:
		return w.v.SetFromDecimal(string(v))
	case int64:
		if v < 0 {
			return fmt.Errorf("negative amount %d", v)
		}
		w.v.SetUint64(uint64(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Wei", src)
	}
}

func (w Wei) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.v.Dec())
}

func (w *Wei) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid amount: %s", string(data))
		}
		s = n.String()
	}
	parsed, err := ParseWei(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
