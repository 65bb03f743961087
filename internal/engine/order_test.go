package engine

import (
	"testing"

	"github.com/0xtitan6/hft-marketmaker/internal/risk"
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

func oqty(s string) fixedpoint.Qty { q, _ := fixedpoint.QtyFromDecimalString(s); return q }

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusFilled, StatusCancelled, StatusRejected}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s: expected terminal", s)
		}
	}
	nonTerminal := []Status{StatusNew, StatusOpen, StatusPartiallyFilled}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s: expected non-terminal", s)
		}
	}
}

func TestOrderTransitionRejectsFromTerminal(t *testing.T) {
	o := &Order{Status: StatusFilled}
	if err := o.Transition(StatusOpen); err == nil {
		t.Fatal("expected error transitioning out of a terminal status")
	}
	if o.Status != StatusFilled {
		t.Fatalf("status must not change on a rejected transition, got %s", o.Status)
	}
}

func TestOrderTransitionHappyPath(t *testing.T) {
	o := &Order{Status: StatusNew}
	if err := o.Transition(StatusOpen); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusOpen {
		t.Fatalf("expected OPEN, got %s", o.Status)
	}
}

func TestOrderApplyFillPartialThenFull(t *testing.T) {
	o := &Order{Side: risk.Buy, Qty: oqty("10.0"), Status: StatusOpen}

	if err := o.ApplyFill(oqty("4.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusPartiallyFilled {
		t.Fatalf("expected PARTIALLY_FILLED, got %s", o.Status)
	}
	if o.FilledQty != oqty("4.0") {
		t.Fatalf("expected filled 4.0, got %v", o.FilledQty.ToFloat())
	}

	if err := o.ApplyFill(oqty("6.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusFilled {
		t.Fatalf("expected FILLED, got %s", o.Status)
	}
	if o.FilledQty != oqty("10.0") {
		t.Fatalf("expected filled 10.0, got %v", o.FilledQty.ToFloat())
	}
}

func TestOrderApplyFillRejectsOverfill(t *testing.T) {
	o := &Order{Qty: oqty("5.0"), Status: StatusOpen}
	if err := o.ApplyFill(oqty("6.0")); err == nil {
		t.Fatal("expected an error for a fill exceeding order quantity")
	}
	if o.FilledQty != 0 {
		t.Fatalf("FilledQty must be unchanged on a rejected fill, got %v", o.FilledQty.ToFloat())
	}
}

func TestOrderApplyFillRejectsOnTerminalOrder(t *testing.T) {
	o := &Order{Qty: oqty("5.0"), FilledQty: oqty("5.0"), Status: StatusFilled}
	if err := o.ApplyFill(oqty("1.0")); err == nil {
		t.Fatal("expected an error applying a fill to a terminal order")
	}
}

func TestOrderResetClearsAllFields(t *testing.T) {
	o := &Order{
		ID: "abc", ClientID: "xyz", Side: risk.Sell,
		Price: fixedpoint.PriceFromFloat(100), Qty: oqty("1.0"),
		FilledQty: oqty("1.0"), Status: StatusFilled,
	}
	o.Reset()
	if (*o != Order{}) {
		t.Fatalf("expected zero value after Reset, got %+v", o)
	}
}
