/*
Package money provides the financial primitives for schedule generation.

PURPOSE:
  Every amount flowing through the schedule engine is a Money: a decimal
  value bound to a currency that knows its smallest representable unit.
  Arithmetic never rounds; rounding happens exactly once, when an amount
  is materialized onto a schedule line.

KEY CONCEPTS IN THIS FILE (money.go):
  - Currency: ISO code, decimal digits, optional payment multiple
  - Money: immutable decimal amount in a currency
  - Rounding: banker's rounding at the currency's digit count

DESIGN PRINCIPLES:
  1. Immutability: every operation returns a new Money
  2. Precision: decimal.Decimal throughout, no float64 in calculations
  3. One rounding point: raw arithmetic keeps full precision; callers
     round when an amount becomes due on a schedule line

USAGE:
  usd := money.Currency{Code: "USD", Digits: 2}
  principal := money.NewFromString(usd, "10000.00")
  interest := principal.MulDecimal(rate).Round()

SEE ALSO:
  - pmt.go: payment-formula evaluator and annualization
*/
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CURRENCY
// =============================================================================

// Currency describes how amounts are represented and rounded.
type Currency struct {
	Code   string
	Digits int32

	// InMultiplesOf forces due amounts onto a payment multiple
	// (e.g. cash loans collected in multiples of 5). Zero disables it.
	InMultiplesOf int64
}

func (c Currency) String() string { return c.Code }

// =============================================================================
// MONEY
// =============================================================================

// Money is an immutable decimal amount in a currency.
type Money struct {
	currency Currency
	amount   decimal.Decimal
}

func New(currency Currency, amount decimal.Decimal) Money {
	return Money{currency: currency, amount: amount}
}

func NewFromString(currency Currency, s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		d = decimal.Zero
	}
	return Money{currency: currency, amount: d}
}

func NewFromFloat(currency Currency, f float64) Money {
	return Money{currency: currency, amount: decimal.NewFromFloat(f)}
}

func Zero(currency Currency) Money {
	return Money{currency: currency, amount: decimal.Zero}
}

func (m Money) Currency() Currency { return m.currency }
func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Zero() Money { return Money{currency: m.currency, amount: decimal.Zero} }
func (m Money) String() string { return m.amount.StringFixed(m.currency.Digits) }

// Arithmetic. All operations keep full precision; see Round.

func (m Money) Add(b Money) Money { return Money{m.currency, m.amount.Add(b.amount)} }
func (m Money) Sub(b Money) Money { return Money{m.currency, m.amount.Sub(b.amount)} }
func (m Money) Neg() Money { return Money{m.currency, m.amount.Neg()} }
func (m Money) MulDecimal(d decimal.Decimal) Money { return Money{m.currency, m.amount.Mul(d)} }
func (m Money) DivDecimal(d decimal.Decimal) Money { return Money{m.currency, m.amount.Div(d)} }

func (m Money) MulInt(n int64) Money {
	return Money{m.currency, m.amount.Mul(decimal.NewFromInt(n))}
}

func (m Money) DivInt(n int64) Money {
	return Money{m.currency, m.amount.Div(decimal.NewFromInt(n))}
}

// Comparison

func (m Money) IsZero() bool { return m.amount.IsZero() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }
func (m Money) IsGreaterThan(b Money) bool { return m.amount.GreaterThan(b.amount) }
func (m Money) IsLessThan(b Money) bool { return m.amount.LessThan(b.amount) }
func (m Money) IsGreaterThanZero() bool { return m.amount.IsPositive() }
func (m Money) Equal(b Money) bool { return m.amount.Equal(b.amount) }

func (m Money) Min(b Money) Money {
	if m.IsLessThan(b) {
		return m
	}
	return b
}

func (m Money) Max(b Money) Money {
	if m.IsGreaterThan(b) {
		return m
	}
	return b
}

// ClampZero returns zero when the amount is negative, otherwise the amount.
func (m Money) ClampZero() Money {
	if m.IsNegative() {
		return m.Zero()
	}
	return m
}

// =============================================================================
// ROUNDING
// =============================================================================

// Round materializes the amount at the currency's digit count using
// banker's rounding, then snaps to the payment multiple if one is set.
func (m Money) Round() Money {
	rounded := m.amount.RoundBank(m.currency.Digits)
	if m.currency.InMultiplesOf > 0 {
		multiple := decimal.NewFromInt(m.currency.InMultiplesOf)
		rounded = rounded.Div(multiple).RoundBank(0).Mul(multiple)
	}
	return Money{currency: m.currency, amount: rounded}
}

// RoundDown truncates toward zero at the currency's digit count. Used when
// spreading a total across periods so the final period absorbs the residue.
func (m Money) RoundDown() Money {
	return Money{currency: m.currency, amount: m.amount.RoundDown(m.currency.Digits)}
}

// =============================================================================
// HELPERS
// =============================================================================

// Sum adds a series of amounts in the given currency.
func Sum(currency Currency, amounts ...Money) Money {
	total := Zero(currency)
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MustDecimal parses a decimal literal, panicking on malformed input.
// Intended for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("money: bad decimal literal %q: %v", s, err))
	}
	return d
}
