package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

func sym(s string) fixedpoint.Symbol { return fixedpoint.MustSymbol(s) }
func pxv(s string) fixedpoint.Price  { p, _ := fixedpoint.PriceFromDecimalString(s); return p }
func qtyv(s string) fixedpoint.Qty   { q, _ := fixedpoint.QtyFromDecimalString(s); return q }

func TestPaperAdapterConnectLifecycle(t *testing.T) {
	t.Parallel()
	a := NewPaperAdapter(PaperConfig{})
	if a.IsConnected() {
		t.Fatal("should not be connected before Connect")
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !a.IsConnected() {
		t.Fatal("expected connected after Connect")
	}
	if err := a.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if a.IsConnected() {
		t.Fatal("expected disconnected after Disconnect")
	}
}

func TestPaperAdapterSendOrderFillsImmediately(t *testing.T) {
	t.Parallel()
	a := NewPaperAdapter(PaperConfig{})
	_ = a.Connect(context.Background())

	var updates []OrderUpdate
	a.SetCallbacks(Callbacks{OnOrderUpdate: func(u OrderUpdate) { updates = append(updates, u) }})

	resp, err := a.SendOrder(context.Background(), OrderRequest{
		Symbol: sym("BTC-USD"), Side: Buy, Price: pxv("100.00"), Qty: qtyv("1.0"),
	})
	if err != nil {
		t.Fatalf("SendOrder: %v", err)
	}
	if !resp.Accepted {
		t.Fatal("expected order accepted")
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 order update, got %d", len(updates))
	}
	if updates[0].Status != StatusFilled {
		t.Errorf("expected StatusFilled, got %v", updates[0].Status)
	}
	if updates[0].FilledQty != qtyv("1.0") {
		t.Errorf("FilledQty = %v, want 1.0", updates[0].FilledQty.ToFloat())
	}
}

func TestPaperAdapterSendOrderRejectsWhenDisconnected(t *testing.T) {
	t.Parallel()
	a := NewPaperAdapter(PaperConfig{})
	_, err := a.SendOrder(context.Background(), OrderRequest{Symbol: sym("BTC-USD"), Side: Buy, Price: pxv("100"), Qty: qtyv("1")})
	if err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestPaperAdapterCancelBeforeFillPreventsFill(t *testing.T) {
	t.Parallel()
	a := NewPaperAdapter(PaperConfig{FillLatency: 50 * time.Millisecond})
	_ = a.Connect(context.Background())

	filled := make(chan struct{}, 1)
	a.SetCallbacks(Callbacks{OnOrderUpdate: func(u OrderUpdate) { filled <- struct{}{} }})

	resp, err := a.SendOrder(context.Background(), OrderRequest{Symbol: sym("BTC-USD"), Side: Buy, Price: pxv("100"), Qty: qtyv("1")})
	if err != nil {
		t.Fatal(err)
	}
	cancelResp, err := a.CancelOrder(context.Background(), CancelRequest{OrderID: resp.OrderID})
	if err != nil {
		t.Fatal(err)
	}
	if len(cancelResp.Cancelled) != 1 {
		t.Fatalf("expected order cancelled, got %+v", cancelResp)
	}

	select {
	case <-filled:
		t.Error("expected no fill after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPaperAdapterGetBalance(t *testing.T) {
	t.Parallel()
	a := NewPaperAdapter(PaperConfig{BaseAsset: "BTC", QuoteAsset: "USD", StartQuoteQty: qtyv("10000")})
	bal, err := a.GetBalance(context.Background(), "USD")
	if err != nil {
		t.Fatal(err)
	}
	if bal.Available != qtyv("10000") {
		t.Errorf("Available = %v, want 10000", bal.Available.ToFloat())
	}
}

func TestPaperAdapterCancelAllOrdersFiltersBySymbol(t *testing.T) {
	t.Parallel()
	a := NewPaperAdapter(PaperConfig{FillLatency: time.Hour})
	_ = a.Connect(context.Background())

	_, _ = a.SendOrder(context.Background(), OrderRequest{Symbol: sym("BTC-USD"), Side: Buy, Price: pxv("100"), Qty: qtyv("1")})
	_, _ = a.SendOrder(context.Background(), OrderRequest{Symbol: sym("ETH-USD"), Side: Buy, Price: pxv("10"), Qty: qtyv("1")})

	resp, err := a.CancelAllOrders(context.Background(), sym("BTC-USD"))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Cancelled) != 1 {
		t.Fatalf("expected 1 cancelled, got %d", len(resp.Cancelled))
	}

	open, err := a.GetOpenOrders(context.Background(), sym("ETH-USD"))
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Errorf("expected ETH-USD order still open, got %d", len(open))
	}
}
