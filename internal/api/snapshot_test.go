package api

import (
	"testing"

	"github.com/0xtitan6/hft-marketmaker/internal/book"
	"github.com/0xtitan6/hft-marketmaker/internal/risk"
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

type fakeProvider struct {
	book   *book.Book
	pos    risk.Position
	rsnap  risk.Snapshot
	symbol string
}

func (f *fakeProvider) Book() *book.Book                   { return f.book }
func (f *fakeProvider) PositionSnapshot() risk.Position    { return f.pos }
func (f *fakeProvider) RiskSnapshot() risk.Snapshot         { return f.rsnap }
func (f *fakeProvider) Symbol() string                      { return f.symbol }

func px(s string) fixedpoint.Price { p, _ := fixedpoint.PriceFromDecimalString(s); return p }
func qty(s string) fixedpoint.Qty  { q, _ := fixedpoint.QtyFromDecimalString(s); return q }

func TestBuildSnapshotReflectsBookAndPosition(t *testing.T) {
	sym := fixedpoint.MustSymbol("BTC-USD")
	b := book.New(sym, false)
	b.ApplyL2Update(book.Bid, px("100.00"), qty("1.0"), 1, fixedpoint.Timestamp(1))
	b.ApplyL2Update(book.Ask, px("101.00"), qty("1.0"), 1, fixedpoint.Timestamp(2))

	provider := &fakeProvider{
		book:   b,
		symbol: "BTC-USD",
		pos:    risk.Position{Qty: qty("2.0"), AvgPrice: px("100.50")},
		rsnap: risk.Snapshot{
			KillSwitchActive: false,
			OpenOrders:       3,
			Limits:           risk.Limits{MaxPositionQty: qty("10.0")},
		},
	}

	snap := BuildSnapshot(provider, ConfigSummary{Variant: "baseline"})

	if snap.Symbol != "BTC-USD" {
		t.Errorf("Symbol = %q, want BTC-USD", snap.Symbol)
	}
	if !snap.Book.TwoSided {
		t.Error("expected a two-sided book")
	}
	if snap.Book.BestBid != 100.00 {
		t.Errorf("BestBid = %v, want 100.00", snap.Book.BestBid)
	}
	if snap.Book.BestAsk != 101.00 {
		t.Errorf("BestAsk = %v, want 101.00", snap.Book.BestAsk)
	}
	if snap.Position.Qty != 2.0 {
		t.Errorf("Position.Qty = %v, want 2.0", snap.Position.Qty)
	}
	if snap.Risk.OpenOrders != 3 {
		t.Errorf("Risk.OpenOrders = %d, want 3", snap.Risk.OpenOrders)
	}
	if snap.Risk.MaxPositionQty != 10.0 {
		t.Errorf("Risk.MaxPositionQty = %v, want 10.0", snap.Risk.MaxPositionQty)
	}
	if snap.Config.Variant != "baseline" {
		t.Errorf("Config.Variant = %q, want baseline", snap.Config.Variant)
	}
}
