package fixedpoint

import (
	"math/big"
	"testing"
)

func TestPriceFromDecimalStringRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "100.5", "0.00000001", "12345.6789", "-42.5"}
	for _, c := range cases {
		c := c
		t.Run(c, func(t *testing.T) {
			t.Parallel()
			p, err := PriceFromDecimalString(c)
			if err != nil {
				t.Fatalf("PriceFromDecimalString(%q): %v", c, err)
			}
			got := p.ToDecimalString()
			p2, err := PriceFromDecimalString(got)
			if err != nil {
				t.Fatalf("re-parse %q: %v", got, err)
			}
			if p2 != p {
				t.Errorf("round trip mismatch: %q -> %d -> %q -> %d", c, p, got, p2)
			}
		})
	}
}

func TestDecimalToUnitsBankersRounding(t *testing.T) {
	// 0.5 units at the 9th decimal place round to even on the 8th.
	cases := []struct {
		in   string
		want int64
	}{
		{"1.000000005", 100000000},  // rounds down to even (...00)
		{"1.000000015", 100000002},  // rounds up to even (...02)
		{"1.000000025", 100000002},  // rounds down to even (...02)
		{"1.00000001", 100000001},
		{"1.00000000", 100000000},
	}
	for _, c := range cases {
		d, err := PriceFromDecimalString(c.in)
		if err != nil {
			t.Fatalf("parse %q: %v", c.in, err)
		}
		if int64(d) != c.want {
			t.Errorf("decimalToUnits(%q) = %d, want %d", c.in, int64(d), c.want)
		}
	}
}

func TestMulProducesNotional(t *testing.T) {
	price, _ := PriceFromDecimalString("100.00")
	qty, _ := QtyFromDecimalString("2.5")
	n := price.Mul(qty)
	want, _ := QtyFromDecimalString("250.0")
	if int64(n) != int64(want) {
		t.Errorf("100 * 2.5 = %s, want 250", n.ToDecimalString())
	}
}

func TestMulOverflowSafety(t *testing.T) {
	// Large price and qty whose raw int64 product would overflow before
	// the /Scale shift; big.Int intermediate must absorb it.
	price := Price(9_000_000_000_000) // 90000.0
	qty := Qty(9_000_000_000_000)     // 90000.0
	n := price.Mul(qty)
	if n <= 0 {
		t.Fatalf("expected positive notional, got %d", n)
	}
}

func TestAbs(t *testing.T) {
	if Price(-5).Abs() != 5 {
		t.Error("Price.Abs failed")
	}
	if Qty(-5).Abs() != 5 {
		t.Error("Qty.Abs failed")
	}
	if Notional(-5).Abs() != 5 {
		t.Error("Notional.Abs failed")
	}
}

func TestVWAP(t *testing.T) {
	// Two fills: 100.0 x 1, 102.0 x 1 -> vwap 101.0
	p1, _ := PriceFromDecimalString("100.0")
	p2, _ := PriceFromDecimalString("102.0")
	q1, _ := QtyFromDecimalString("1.0")
	q2, _ := QtyFromDecimalString("1.0")

	sum := p1.Mul(q1) + p2.Mul(q2)
	totalQty := q1 + q2

	vwap, ok := VWAP(sum, totalQty)
	if !ok {
		t.Fatal("expected ok=true")
	}
	want, _ := PriceFromDecimalString("101.0")
	if vwap != want {
		t.Errorf("vwap = %s, want 101.0", vwap.ToDecimalString())
	}
}

func TestVWAPZeroQty(t *testing.T) {
	_, ok := VWAP(0, 0)
	if ok {
		t.Error("expected ok=false for zero total quantity")
	}
}

func TestDivRoundHalfEvenTies(t *testing.T) {
	cases := []struct {
		name     string
		num, den int64
		want     int64
	}{
		{"tie rounds down to even quotient", 250_000_000, 100_000_000, 2},   // 2.5 -> 2 (even)
		{"tie rounds up to even quotient", 150_000_000, 100_000_000, 2},     // 1.5 -> 2 (even)
		{"negative tie rounds to even quotient", -150_000_000, 100_000_000, -2},
		{"non-tie rounds to nearest", 170_000_000, 100_000_000, 2}, // 1.7 -> 2
		{"exact division", 200_000_000, 100_000_000, 2},
	}
	for _, c := range cases {
		got := divRoundHalfEven(big.NewInt(c.num), big.NewInt(c.den)).Int64()
		if got != c.want {
			t.Errorf("%s: divRoundHalfEven(%d, %d) = %d, want %d", c.name, c.num, c.den, got, c.want)
		}
	}
}

func TestMulRoundsHalfToEven(t *testing.T) {
	// prod = 15 * 10_000_000 = 150_000_000, an exact .5 tie against Scale
	// (100_000_000); the truncated quotient 1 is odd, so it rounds up to 2.
	n := Price(15).Mul(Qty(10_000_000))
	if n != 2 {
		t.Errorf("Mul tie case = %d, want 2", n)
	}

	// Same magnitude, negated: -1.5 rounds to the nearest even, -2.
	n = Price(-15).Mul(Qty(10_000_000))
	if n != -2 {
		t.Errorf("Mul negative tie case = %d, want -2", n)
	}
}

func TestVWAPRoundsHalfToEven(t *testing.T) {
	// sumPriceQty*Scale / totalQty = 3*100_000_000 / 200_000_000 = 1.5,
	// truncated quotient 1 is odd, so it rounds up to the even 2.
	p, ok := VWAP(Notional(3), Qty(200_000_000))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if p != 2 {
		t.Errorf("VWAP tie case = %d, want 2", p)
	}
}

func TestMulBps(t *testing.T) {
	price, _ := PriceFromDecimalString("100.0")
	// 50 bps of 100.0 = 0.5
	got := price.MulBps(50)
	want, _ := PriceFromDecimalString("0.5")
	if got != want {
		t.Errorf("MulBps(50) = %s, want 0.5", got.ToDecimalString())
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	sym, err := NewSymbol("BTC-USD")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	if sym.String() != "BTC-USD" {
		t.Errorf("got %q, want BTC-USD", sym.String())
	}
}

func TestSymbolTooLong(t *testing.T) {
	_, err := NewSymbol("THIS-SYMBOL-NAME-IS-WAY-TOO-LONG")
	if err == nil {
		t.Error("expected error for oversized symbol")
	}
}

func TestFakeClockAdvance(t *testing.T) {
	clk := NewFakeClock()
	t0 := clk.Now()
	t1 := clk.Advance(1000)
	if t1.Sub(t0) != 1000 {
		t.Errorf("expected delta 1000ns, got %v", t1.Sub(t0))
	}
}
