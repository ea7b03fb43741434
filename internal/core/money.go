// Package core provides money handling and the billing ledger domain.
//
// This file contains the Money type. Amounts are held as integer cents so
// every ledger operation is exact; decimal strings are parsed and rendered
// through shopspring/decimal.
package core

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact amount with two fractional digits.
type Money struct {
	Cents int64
}

// MaxAmountCents bounds every fee and payment at 99,999,999.99.
const MaxAmountCents int64 = 9_999_999_999

var (
	hundred  = decimal.NewFromInt(100)
	maxMoney = decimal.New(MaxAmountCents, -2)
)

// ParseMoney converts a decimal string to Money with half-up rounding on the
// third decimal place.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Zero and
// negative values are accepted; use ParsePositiveMoney where an amount must
// be strictly positive.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,345") -> 12.35
//	ParseMoney("1e3")    -> 1000.00
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// ParsePositiveMoney parses s like ParseMoney and rejects amounts <= 0.
func ParsePositiveMoney(s string) (Money, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MoneyFromDecimal rounds d to cents. Values whose magnitude exceeds
// 99,999,999.99 fail with ErrInvalidAmount.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	d = d.Round(2)
	if d.Abs().GreaterThan(maxMoney) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: d.Mul(hundred).IntPart()}, nil
}

// Decimal returns the amount as a decimal value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with exactly two decimals, e.g. "160.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// MulInt multiplies the amount by an integer factor.
func (m Money) MulInt(n int64) Money {
	return Money{Cents: m.Cents * n}
}

// Cmp returns -1, 0 or +1 depending on whether m is less than, equal to or
// greater than o.
func (m Money) Cmp(o Money) int {
	switch {
	case m.Cents < o.Cents:
		return -1
	case m.Cents > o.Cents:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool        { return m.Cents == 0 }
func (m Money) IsPositive() bool    { return m.Cents > 0 }
func (m Money) IsNegative() bool    { return m.Cents < 0 }
func (m Money) IsNonPositive() bool { return m.Cents <= 0 }

// Sum adds a sequence of amounts.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// InRange reports whether the magnitude of m is at most 99,999,999.99.
func (m Money) InRange() bool {
	return m.Cents >= -MaxAmountCents && m.Cents <= MaxAmountCents
}

// Validate reports ErrInvalidAmount unless the amount is strictly positive
// and in range.
func (m Money) Validate() error {
	if m.Cents <= 0 || !m.InRange() {
		return ErrInvalidAmount
	}
	return nil
}

// MarshalJSON encodes the amount as a fixed two-decimal string so clients
// never see a binary float.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
// The number is parsed from its literal text, never through float64.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return ErrInvalidAmount
		}
		raw = unquoted
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
