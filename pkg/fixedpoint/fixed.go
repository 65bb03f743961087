// Package fixedpoint implements the integer fixed-point representation used
// for every price, quantity, and monetary value in the trading core.
//
// One unit is 10⁻⁸ (a decimal-shift of 1e8), stored in a signed 64-bit
// integer. Add, Sub, Mul and VWAP are integer math. Decimal-string
// conversion (PriceFromDecimalString/QtyFromDecimalString, ToDecimalString)
// is used at the boundaries (exchange wire formats, tests). Float
// conversion (PriceFromFloat/QtyFromFloat, ToFloat) is used at the
// boundaries (config, dashboard JSON) and also inside book, risk and
// strategy code for ratio math on every tick: spread_bps, imbalance, price
// deviation, inventory skew, order sizing and the Avellaneda-Stoikov
// formulas.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the fixed-point shift: one "unit" equals 1/Scale.
const Scale int64 = 100_000_000 // 10^8

// Price is a price in fixed-point units (1.0 == 100_000_000).
type Price int64

// Qty is a quantity in fixed-point units.
type Qty int64

// Notional is a monetary value (price × quantity / Scale) in fixed-point
// units. Kept as a distinct type so a Price or Qty can never be passed
// where a Notional is expected without an explicit conversion.
type Notional int64

// Zero values, useful for "side is empty" checks.
const (
	ZeroPrice    Price    = 0
	ZeroQty      Qty      = 0
	ZeroNotional Notional = 0
)

// Add/Sub on Price and Qty are plain integer ops; defined as methods only
// so call sites read as fixed-point arithmetic rather than raw int64 math.

func (p Price) Add(o Price) Price { return p + o }
func (p Price) Sub(o Price) Price { return p - o }
func (q Qty) Add(o Qty) Qty       { return q + o }
func (q Qty) Sub(o Qty) Qty       { return q - o }

// Mul computes price × quantity / Scale using a 128-bit-wide intermediate
// (via math/big) to avoid overflow on the product before the shift, with
// the division rounded half-to-even to match RoundBank at the decimal
// boundary.
func (p Price) Mul(q Qty) Notional {
	prod := new(big.Int).Mul(big.NewInt(int64(p)), big.NewInt(int64(q)))
	return Notional(divRoundHalfEven(prod, big.NewInt(Scale)).Int64())
}

// divRoundHalfEven returns num/den rounded half-to-even (banker's rounding),
// matching decimal.RoundBank's tie-breaking rule for the integer division
// paths in Mul and VWAP.
func divRoundHalfEven(num, den *big.Int) *big.Int {
	quo, rem := new(big.Int), new(big.Int)
	quo.QuoRem(num, den, rem)
	if rem.Sign() == 0 {
		return quo
	}
	twiceRem := new(big.Int).Abs(rem)
	twiceRem.Lsh(twiceRem, 1)
	absDen := new(big.Int).Abs(den)
	cmp := twiceRem.Cmp(absDen)
	quoOdd := new(big.Int).Abs(quo).Bit(0) == 1
	if cmp > 0 || (cmp == 0 && quoOdd) {
		if (num.Sign() < 0) == (den.Sign() < 0) {
			quo.Add(quo, big.NewInt(1))
		} else {
			quo.Sub(quo, big.NewInt(1))
		}
	}
	return quo
}

// MulBps scales a Price by bps/10_000 (basis points). The division is
// big.Int's Euclidean Div, so an inexact result is rounded toward negative
// infinity, not half-to-even.
func (p Price) MulBps(bps int64) Price {
	prod := new(big.Int).Mul(big.NewInt(int64(p)), big.NewInt(bps))
	prod.Div(prod, big.NewInt(10_000))
	return Price(prod.Int64())
}

// Abs returns the absolute value.
func (p Price) Abs() Price {
	if p < 0 {
		return -p
	}
	return p
}

func (q Qty) Abs() Qty {
	if q < 0 {
		return -q
	}
	return q
}

func (n Notional) Abs() Notional {
	if n < 0 {
		return -n
	}
	return n
}

// ToFloat converts to float64. Besides boundary use (logging, dashboards),
// book, risk and strategy code call it for ratio math on every tick.
func (p Price) ToFloat() float64 { return float64(p) / float64(Scale) }
func (q Qty) ToFloat() float64   { return float64(q) / float64(Scale) }
func (n Notional) ToFloat() float64 { return float64(n) / float64(Scale) }

// FromFloat converts a float64 to fixed-point using banker's rounding
// (round-half-to-even) to the nearest 10⁻⁸ unit, via decimal.Decimal so the
// rounding mode matches FromDecimalString exactly.
func PriceFromFloat(v float64) Price {
	return Price(decimalToUnits(decimal.NewFromFloat(v)))
}

func QtyFromFloat(v float64) Qty {
	return Qty(decimalToUnits(decimal.NewFromFloat(v)))
}

// FromDecimalString parses a decimal string (e.g. "100.50") into fixed-point
// units using banker's rounding to the nearest 10⁻⁸.
func PriceFromDecimalString(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("fixedpoint: parse price %q: %w", s, err)
	}
	return Price(decimalToUnits(d)), nil
}

func QtyFromDecimalString(s string) (Qty, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("fixedpoint: parse qty %q: %w", s, err)
	}
	return Qty(decimalToUnits(d)), nil
}

func decimalToUnits(d decimal.Decimal) int64 {
	scaled := d.Mul(decimal.NewFromInt(Scale))
	return scaled.RoundBank(0).IntPart()
}

// ToDecimalString renders a fixed-point value with exactly 8 fractional
// digits; trailing zeros are kept.
func (p Price) ToDecimalString() string {
	return unitsToDecimalString(int64(p))
}

func (q Qty) ToDecimalString() string {
	return unitsToDecimalString(int64(q))
}

func (n Notional) ToDecimalString() string {
	return unitsToDecimalString(int64(n))
}

func unitsToDecimalString(units int64) string {
	d := decimal.New(units, 0).Div(decimal.NewFromInt(Scale))
	return d.StringFixedBank(8)
}

// VWAP computes (Σ price·qty) / Σ qty using the same 128-bit widening and
// half-to-even rounding rule as Mul. Returns (0, false) if totalQty is zero.
func VWAP(sumPriceQty Notional, totalQty Qty) (Price, bool) {
	if totalQty == 0 {
		return 0, false
	}
	num := new(big.Int).Mul(big.NewInt(int64(sumPriceQty)), big.NewInt(Scale))
	return Price(divRoundHalfEven(num, big.NewInt(int64(totalQty))).Int64()), true
}
