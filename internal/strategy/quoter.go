// Package strategy implements the market-making quote generators: three
// independent Quoter implementations sharing a common interface rather
// than a base-class hierarchy, each owning its own state (inventory EMA,
// AS session clock) with no shared mutable struct between them.
package strategy

import (
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// BookSnapshot is the read-only view of the book the strategy worker
// passes to compute_quotes each tick. It is derived from internal/book's
// richer state so strategies stay decoupled from the book's B-tree
// representation.
type BookSnapshot struct {
	TwoSided bool
	BestBid  fixedpoint.Price
	BestAsk  fixedpoint.Price
	Mid      fixedpoint.Price
}

// Signal carries auxiliary inputs a quoter may fold into its spread or
// skew calculation (volatility estimate, toxicity flag, etc.).
type Signal struct {
	VolatilityAdjustmentBps float64
}

// QuoteDecision is the strategy's per-tick output.
type QuoteDecision struct {
	ShouldQuote bool
	BidPrice    fixedpoint.Price
	AskPrice    fixedpoint.Price
	BidSize     fixedpoint.Qty
	AskSize     fixedpoint.Qty
	Reason      string
}

func disabled(reason string) QuoteDecision {
	return QuoteDecision{ShouldQuote: false, Reason: reason}
}

// Quoter is the common contract for every market-making variant.
// ComputeQuotes is invoked at most once per tick by the strategy worker.
// OnFill and OnCancel are called by the engine on each fill and cancel;
// all three variants implement them as no-ops, and InventoryAdjusted
// updates its position EMA inside ComputeQuotes.
type Quoter interface {
	ComputeQuotes(book BookSnapshot, position fixedpoint.Qty, signal Signal, now fixedpoint.Timestamp) QuoteDecision
	OnFill(qty fixedpoint.Qty)
	OnCancel()
}

// Params are the quoting parameters shared by all three variants.
type Params struct {
	MinSpreadBps     float64
	MaxSpreadBps     float64
	TargetSpreadBps  float64
	InventorySkew    float64
	InventoryTarget  float64 // real-valued; rounded to fixed-point before use
	MaxPosition      fixedpoint.Qty
	DefaultOrderSize fixedpoint.Qty
	MinOrderSize     fixedpoint.Qty
	MaxOrderSize     fixedpoint.Qty
	TickSize         fixedpoint.Price

	QuoteRefreshUs  int64
	MinQuoteLifeUs  int64
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// roundToTick rounds p to the nearest multiple of tick (round-half-to-even
// via fixed-point division, since tick sizes are themselves exact
// fixed-point values).
func roundToTick(p, tick fixedpoint.Price) fixedpoint.Price {
	if tick == 0 {
		return p
	}
	units := int64(p) / int64(tick)
	rem := int64(p) % int64(tick)
	half := int64(tick) / 2
	switch {
	case rem > half || (rem == half && units%2 != 0):
		units++
	case rem < -half || (rem == -half && units%2 != 0):
		units--
	}
	return fixedpoint.Price(units * int64(tick))
}

// inventoryTargetFixed rounds Params.InventoryTarget to the nearest
// fixed-point unit using the same round-half-to-even rule as
// fixedpoint.PriceFromFloat, so skew arithmetic never leaves fixed-point.
func inventoryTargetFixed(target float64) fixedpoint.Qty {
	return fixedpoint.QtyFromFloat(target)
}
