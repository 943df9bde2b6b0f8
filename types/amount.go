// Package types provides the value types shared across remit.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrOverflow is returned when a checked operation leaves the 128-bit range.
var ErrOverflow = errors.New("types: amount overflow")

// ErrNotInteger is returned when a parsed amount carries a fractional part.
var ErrNotInteger = errors.New("types: amount is not an integer")

var (
	maxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)), 0)
	minAmount = decimal.NewFromBigInt(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127)), 0)
)

// Amount is a signed quantity of the smallest asset unit (stroops, cents,
// ...), bounded to the 128-bit two's complement range. All arithmetic is
// integer-only and checked: a result outside the range yields ErrOverflow
// instead of wrapping.
//
// The zero value is a valid zero amount.
type Amount struct {
	d decimal.Decimal
}

// NewAmount creates an Amount from an int64.
func NewAmount(v int64) Amount { return Amount{d: decimal.NewFromInt(v)} }

// Zero returns the zero Amount.
func Zero() Amount { return Amount{} }

// MaxAmount returns the largest representable Amount (2^127 - 1).
func MaxAmount() Amount { return Amount{d: maxAmount} }

// MinAmount returns the smallest representable Amount (-2^127).
func MinAmount() Amount { return Amount{d: minAmount} }

// AmountFromBigInt converts a big.Int, failing with ErrOverflow when it does
// not fit in 128 bits.
func AmountFromBigInt(v *big.Int) (Amount, error) {
	return bounded(decimal.NewFromBigInt(v, 0))
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("types: parse amount %q: %w", s, err)
	}
	if !d.IsInteger() {
		return Amount{}, ErrNotInteger
	}
	return bounded(d.Truncate(0))
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Checked arithmetic

// CheckedAdd returns a + b.
func (a Amount) CheckedAdd(b Amount) (Amount, error) { return bounded(a.d.Add(b.d)) }

// CheckedSub returns a - b.
func (a Amount) CheckedSub(b Amount) (Amount, error) { return bounded(a.d.Sub(b.d)) }

// CheckedMul returns a * b.
func (a Amount) CheckedMul(b Amount) (Amount, error) { return bounded(a.d.Mul(b.d)) }

// Quo returns a / n truncated toward zero. Panics if n is zero.
func (a Amount) Quo(n int64) Amount {
	if n == 0 {
		panic("amount: division by zero")
	}
	q, _ := a.d.QuoRem(decimal.NewFromInt(n), 0)
	return Amount{d: q}
}

// Neg returns -a.
func (a Amount) Neg() (Amount, error) { return bounded(a.d.Neg()) }

// Comparison

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int { return a.d.Sign() }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// IsNegative returns true if the amount is less than zero.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// Conversion and formatting

// BigInt returns the amount as a new big.Int.
func (a Amount) BigInt() *big.Int { return a.d.BigInt() }

// Int64 returns the amount as an int64 and whether it fit.
func (a Amount) Int64() (int64, bool) {
	b := a.d.BigInt()
	if !b.IsInt64() {
		return 0, false
	}
	return b.Int64(), true
}

// String returns the base-10 integer representation.
func (a Amount) String() string { return a.d.String() }

// Format renders the amount in major units for an asset with the given
// number of decimal places: NewAmount(12345).Format(2) == "123.45".
func (a Amount) Format(decimals int32) string {
	if decimals <= 0 {
		return a.String()
	}
	return a.d.Shift(-decimals).StringFixed(decimals)
}

// MarshalJSON encodes the amount as a JSON string to keep full precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both a JSON string and a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Sum adds all values with overflow checking.
func Sum(values ...Amount) (Amount, error) {
	total := Zero()
	for _, v := range values {
		var err error
		if total, err = total.CheckedAdd(v); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}

func bounded(d decimal.Decimal) (Amount, error) {
	if d.GreaterThan(maxAmount) || d.LessThan(minAmount) {
		return Amount{}, ErrOverflow
	}
	return Amount{d: d}, nil
}
