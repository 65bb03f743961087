package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/0xtitan6/hft-marketmaker/internal/book"
	"github.com/0xtitan6/hft-marketmaker/internal/exchange"
	"github.com/0xtitan6/hft-marketmaker/internal/risk"
	"github.com/0xtitan6/hft-marketmaker/internal/strategy"
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testQuoterParams() strategy.Params {
	return strategy.Params{
		MinSpreadBps:     5,
		MaxSpreadBps:     100,
		TargetSpreadBps:  20,
		InventorySkew:    0.5,
		InventoryTarget:  0,
		MaxPosition:      oqty("100.0"),
		DefaultOrderSize: oqty("1.0"),
		MinOrderSize:     oqty("0.1"),
		MaxOrderSize:     oqty("5.0"),
		TickSize:         fixedpoint.PriceFromFloat(0.01),
		QuoteRefreshUs:   0,
		MinQuoteLifeUs:   0,
	}
}

func permissiveLimits() risk.Limits {
	return risk.Limits{
		MaxOrderQty:     oqty("10.0"),
		MaxOrderValue:   fixedpoint.Notional(1_000_000 * fixedpoint.Scale),
		MaxOrdersPerSec: 1_000,
		MaxOpenOrders:   1_000,
		MaxPositionQty:  oqty("1000.0"),
		MaxPositionVal:  fixedpoint.Notional(1_000_000 * fixedpoint.Scale),
		MaxDailyLoss:    fixedpoint.Notional(1_000_000 * fixedpoint.Scale),
		MaxDrawdown:     fixedpoint.Notional(1_000_000 * fixedpoint.Scale),
		MaxDeviationBps: 10_000,
		ErrorThreshold:  1_000,
		RejectThreshold: 1_000,
	}
}

func newTestEngine(t *testing.T) (*Engine, *exchange.PaperAdapter) {
	t.Helper()
	sym := fixedpoint.MustSymbol("BTC-USD")
	adapter := exchange.NewPaperAdapter(exchange.PaperConfig{
		StartBaseQty:  oqty("0"),
		StartQuoteQty: oqty("100000.0"),
	})
	quoter := strategy.NewBaseline(testQuoterParams())
	cfg := Config{Symbol: sym, RiskLimits: permissiveLimits()}
	e, err := New(cfg, adapter, quoter, fixedpoint.NewFakeClock(), testLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, adapter
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestEngineEndToEndTickToFill(t *testing.T) {
	e, adapter := newTestEngine(t)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	now := fixedpoint.Timestamp(time.Now().UnixNano())
	adapter.PushTick(exchange.Tick{Side: exchange.Buy, Price: fixedpoint.PriceFromFloat(100), Qty: oqty("10.0"), Sequence: 1, LocalTime: now})
	adapter.PushTick(exchange.Tick{Side: exchange.Sell, Price: fixedpoint.PriceFromFloat(101), Qty: oqty("10.0"), Sequence: 2, LocalTime: now})

	waitFor(t, 2*time.Second, func() bool {
		_, twoSided := e.Book().Mid()
		return twoSided
	})

	waitFor(t, 2*time.Second, func() bool {
		return e.PositionSnapshot().Qty != 0
	})

	pos := e.PositionSnapshot()
	if pos.Qty == 0 {
		t.Fatal("expected a non-zero position after a fill")
	}
}

func TestBuildSnapshotRejectsCrossedBook(t *testing.T) {
	e, _ := newTestEngine(t)
	now := fixedpoint.Timestamp(time.Now().UnixNano())

	e.book.ApplyL2Update(book.Bid, fixedpoint.PriceFromFloat(101), oqty("1.0"), 1, now)
	e.book.ApplyL2Update(book.Ask, fixedpoint.PriceFromFloat(100), oqty("1.0"), 2, now)

	if e.book.State() != book.CrossedTransient {
		t.Fatalf("expected book to be crossed, got state %v", e.book.State())
	}

	snap := e.buildSnapshot(now)
	if snap.Book.TwoSided {
		t.Error("expected TwoSided=false for a crossed book")
	}
}

func TestEngineRejectsZeroSymbol(t *testing.T) {
	adapter := exchange.NewPaperAdapter(exchange.PaperConfig{})
	quoter := strategy.NewBaseline(testQuoterParams())
	_, err := New(Config{RiskLimits: permissiveLimits()}, adapter, quoter, fixedpoint.NewFakeClock(), testLogger(), nil)
	if err == nil {
		t.Fatal("expected an error constructing an Engine with a zero Symbol")
	}
}

func TestEngineStartStopIsClean(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop()
}

func TestEngineKillSwitchSuppressesQuoting(t *testing.T) {
	e, adapter := newTestEngine(t)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	e.riskMgr.RestorePosition(risk.Position{})
	for i := int64(0); i < permissiveLimits().RejectThreshold+permissiveLimits().ErrorThreshold+10; i++ {
		e.riskMgr.RecordError()
	}
	if !e.riskMgr.IsKillSwitchActive() {
		t.Fatal("expected kill switch to activate after exceeding the error threshold")
	}

	now := fixedpoint.Timestamp(time.Now().UnixNano())
	adapter.PushTick(exchange.Tick{Side: exchange.Buy, Price: fixedpoint.PriceFromFloat(100), Qty: oqty("10.0"), Sequence: 1, LocalTime: now})
	adapter.PushTick(exchange.Tick{Side: exchange.Sell, Price: fixedpoint.PriceFromFloat(101), Qty: oqty("10.0"), Sequence: 2, LocalTime: now})

	time.Sleep(50 * time.Millisecond)
	if pos := e.PositionSnapshot(); pos.Qty != 0 {
		t.Fatalf("expected no fills while kill switch is active, got position %v", pos.Qty.ToFloat())
	}
}
