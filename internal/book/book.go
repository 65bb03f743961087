// Package book implements the per-symbol L2/L3 order book maintained by the
// tick worker: two sorted price levels (bids descending, asks ascending)
// backed by github.com/tidwall/btree, an optional per-order L3 index, and
// the derived top-of-book metrics the strategy worker reads every tick.
package book

import (
	"sync/atomic"

	"github.com/tidwall/btree"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// State is the book's quotability state machine.
type State int

const (
	// Empty means neither side has a level.
	Empty State = iota
	// OneSided means exactly one side has at least one level.
	OneSided
	// TwoSided means both sides have at least one level and are not
	// crossed; the book is quotable.
	TwoSided
	// CrossedTransient means best_bid >= best_ask, which a correct feed
	// only produces momentarily between two legs of an atomic update. It
	// is the only non-quotable two-sided state and clears on the next
	// consistent update or snapshot.
	CrossedTransient
)

func (s State) String() string {
	switch s {
	case Empty:
		return "EMPTY"
	case OneSided:
		return "ONE_SIDED"
	case TwoSided:
		return "TWO_SIDED"
	case CrossedTransient:
		return "CROSSED_TRANSIENT"
	default:
		return "UNKNOWN"
	}
}

// Side identifies a book side.
type Side int

const (
	Bid Side = iota
	Ask
)

// Level is one price level: a price and its aggregate resting quantity.
type Level struct {
	Price fixedpoint.Price
	Qty   fixedpoint.Qty
}

// OrderID identifies a resting order in the L3 index.
type OrderID string

// L3Order is one resting order tracked by the optional L3 index.
type L3Order struct {
	ID    OrderID
	Side  Side
	Price fixedpoint.Price
	Qty   fixedpoint.Qty
}

type levels = btree.BTreeG[*Level]

// Book is a single symbol's order book. Not safe for concurrent use — the
// tick worker owns it exclusively per the engine's single-owner-per-stage
// rule; other workers read only the immutable snapshots it publishes.
type Book struct {
	Symbol fixedpoint.Symbol

	bids *levels
	asks *levels

	l3 map[OrderID]*L3Order // nil if L3 tracking is disabled

	sequence   uint64
	lastUpdate fixedpoint.Timestamp
	state      State

	droppedUpdates atomic.Uint64
}

// New constructs an empty book for symbol. enableL3 turns on the per-order
// index; book-only venues that stream L2 deltas should leave it off to
// avoid the extra bookkeeping.
func New(symbol fixedpoint.Symbol, enableL3 bool) *Book {
	b := &Book{
		Symbol: symbol,
		bids:   btree.NewBTreeG(func(a, bb *Level) bool { return a.Price > bb.Price }),
		asks:   btree.NewBTreeG(func(a, bb *Level) bool { return a.Price < bb.Price }),
		state:  Empty,
	}
	if enableL3 {
		b.l3 = make(map[OrderID]*L3Order)
	}
	return b
}

// Sequence returns the last accepted update sequence number.
func (b *Book) Sequence() uint64 { return b.sequence }

// LastUpdate returns the timestamp of the last accepted update.
func (b *Book) LastUpdate() fixedpoint.Timestamp { return b.lastUpdate }

// State returns the current book state.
func (b *Book) State() State { return b.state }

// DroppedUpdates returns the count of updates rejected for a non-increasing
// sequence number.
func (b *Book) DroppedUpdates() uint64 { return b.droppedUpdates.Load() }

// sideTree returns the btree for side.
func (b *Book) sideTree(side Side) *levels {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// ApplyL2Update applies a single aggregated price-level delta. seq, if
// non-zero, must be strictly greater than the book's current sequence or
// the update is dropped and counted (the engine reports each drop as a
// BOOK_INCONSISTENCY error event). A zero quantity removes the level.
func (b *Book) ApplyL2Update(side Side, price fixedpoint.Price, qty fixedpoint.Qty, seq uint64, now fixedpoint.Timestamp) bool {
	if seq != 0 && seq <= b.sequence {
		b.droppedUpdates.Add(1)
		return false
	}

	tree := b.sideTree(side)
	if qty == 0 {
		tree.Delete(&Level{Price: price})
	} else {
		tree.Set(&Level{Price: price, Qty: qty})
	}

	if seq != 0 {
		b.sequence = seq
	} else {
		b.sequence++
	}
	b.lastUpdate = now
	b.recomputeState()
	return true
}

// ApplySnapshot replaces both sides wholesale — used on connect and after a
// resync. The snapshot always resets CrossedTransient since it is a
// consistent, atomic view of the book.
func (b *Book) ApplySnapshot(bids, asks []Level, seq uint64, now fixedpoint.Timestamp) {
	b.bids = btree.NewBTreeG(func(a, bb *Level) bool { return a.Price > bb.Price })
	b.asks = btree.NewBTreeG(func(a, bb *Level) bool { return a.Price < bb.Price })
	for i := range bids {
		lvl := bids[i]
		if lvl.Qty != 0 {
			b.bids.Set(&lvl)
		}
	}
	for i := range asks {
		lvl := asks[i]
		if lvl.Qty != 0 {
			b.asks.Set(&lvl)
		}
	}
	b.sequence = seq
	b.lastUpdate = now
	b.recomputeState()
}

// ApplyL3Add inserts a resting order into the L3 index and folds its
// quantity into the aggregate price level. No-op if L3 tracking is
// disabled.
func (b *Book) ApplyL3Add(o L3Order, now fixedpoint.Timestamp) {
	if b.l3 == nil {
		return
	}
	b.l3[o.ID] = &o
	b.adjustLevel(o.Side, o.Price, o.Qty)
	b.sequence++
	b.lastUpdate = now
	b.recomputeState()
}

// ApplyL3Modify changes a resting order's quantity (e.g. a partial fill)
// and re-derives the affected level's aggregate.
func (b *Book) ApplyL3Modify(id OrderID, newQty fixedpoint.Qty, now fixedpoint.Timestamp) {
	if b.l3 == nil {
		return
	}
	existing, ok := b.l3[id]
	if !ok {
		return
	}
	delta := newQty - existing.Qty
	existing.Qty = newQty
	b.adjustLevel(existing.Side, existing.Price, delta)
	if newQty == 0 {
		delete(b.l3, id)
	}
	b.sequence++
	b.lastUpdate = now
	b.recomputeState()
}

// ApplyL3Remove deletes a resting order and subtracts its quantity from the
// aggregate level.
func (b *Book) ApplyL3Remove(id OrderID, now fixedpoint.Timestamp) {
	if b.l3 == nil {
		return
	}
	existing, ok := b.l3[id]
	if !ok {
		return
	}
	delete(b.l3, id)
	b.adjustLevel(existing.Side, existing.Price, -existing.Qty)
	b.sequence++
	b.lastUpdate = now
	b.recomputeState()
}

func (b *Book) adjustLevel(side Side, price fixedpoint.Price, deltaQty fixedpoint.Qty) {
	tree := b.sideTree(side)
	lvl, ok := tree.Get(&Level{Price: price})
	if !ok {
		if deltaQty > 0 {
			tree.Set(&Level{Price: price, Qty: deltaQty})
		}
		return
	}
	newQty := lvl.Qty + deltaQty
	if newQty <= 0 {
		tree.Delete(&Level{Price: price})
		return
	}
	tree.Set(&Level{Price: price, Qty: newQty})
}

func (b *Book) recomputeState() {
	bb, bidOk := b.bids.Min()
	ba, askOk := b.asks.Min()

	switch {
	case !bidOk && !askOk:
		b.state = Empty
	case bidOk != askOk:
		b.state = OneSided
	case bb.Price >= ba.Price:
		b.state = CrossedTransient
	default:
		b.state = TwoSided
	}
}

// BestBid returns the best bid level and true, or the zero Level and false
// if the bid side is empty.
func (b *Book) BestBid() (Level, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return Level{}, false
	}
	return *lvl, true
}

// BestAsk returns the best ask level and true, or the zero Level and false
// if the ask side is empty.
func (b *Book) BestAsk() (Level, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return Level{}, false
	}
	return *lvl, true
}

// Mid returns (best_bid+best_ask)/2 and true, or (0, false) if either side
// is empty.
func (b *Book) Mid() (fixedpoint.Price, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// Spread returns best_ask - best_bid and true, or (0, false) if either side
// is empty.
func (b *Book) Spread() (fixedpoint.Price, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// SpreadBps returns spread * 10_000 / mid as a plain float (basis points),
// or (0, false) if either side is empty or mid is zero. A crossed book
// yields a zero or negative value with true.
func (b *Book) SpreadBps() (float64, bool) {
	spread, ok := b.Spread()
	if !ok {
		return 0, false
	}
	mid, ok := b.Mid()
	if !ok || mid == 0 {
		return 0, false
	}
	return spread.ToFloat() / mid.ToFloat() * 10_000, true
}

// VWAPResult is the outcome of a depth walk: the volume-weighted price
// achieved and whether the requested quantity was fully satisfied.
type VWAPResult struct {
	Price        fixedpoint.Price
	Insufficient bool
}

// VWAPBid walks the bid side from the top until targetQty is filled,
// returning the volume-weighted price. If the bid side holds less than
// targetQty in aggregate, it returns the partial VWAP over what is
// available with Insufficient set.
func (b *Book) VWAPBid(targetQty fixedpoint.Qty) VWAPResult {
	return walkVWAP(b.bids, targetQty)
}

// VWAPAsk is VWAPBid for the ask side.
func (b *Book) VWAPAsk(targetQty fixedpoint.Qty) VWAPResult {
	return walkVWAP(b.asks, targetQty)
}

func walkVWAP(tree *levels, targetQty fixedpoint.Qty) VWAPResult {
	var sumNotional fixedpoint.Notional
	var filled fixedpoint.Qty
	insufficient := true

	tree.Scan(func(lvl *Level) bool {
		remaining := targetQty - filled
		take := lvl.Qty
		if take > remaining {
			take = remaining
		}
		sumNotional += lvl.Price.Mul(take)
		filled += take
		if filled >= targetQty {
			insufficient = false
			return false
		}
		return true
	})

	price, ok := fixedpoint.VWAP(sumNotional, filled)
	if !ok {
		return VWAPResult{Insufficient: true}
	}
	return VWAPResult{Price: price, Insufficient: insufficient}
}

// Imbalance computes (Σbid_qty - Σask_qty) / (Σbid_qty + Σask_qty) over the
// top N levels of each side. Returns (0, false) if both sums are zero.
func (b *Book) Imbalance(topN int) (float64, bool) {
	bidQty := sumTopN(b.bids, topN)
	askQty := sumTopN(b.asks, topN)
	total := bidQty + askQty
	if total == 0 {
		return 0, false
	}
	return (bidQty.ToFloat() - askQty.ToFloat()) / total.ToFloat(), true
}

func sumTopN(tree *levels, n int) fixedpoint.Qty {
	var sum fixedpoint.Qty
	count := 0
	tree.Scan(func(lvl *Level) bool {
		sum += lvl.Qty
		count++
		return count < n
	})
	return sum
}

// Depth returns up to n levels from the given side, ordered best-first.
func (b *Book) Depth(side Side, n int) []Level {
	tree := b.sideTree(side)
	out := make([]Level, 0, n)
	tree.Scan(func(lvl *Level) bool {
		out = append(out, *lvl)
		return len(out) < n
	})
	return out
}
