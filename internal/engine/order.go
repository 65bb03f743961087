package engine

import (
	"fmt"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
	"github.com/0xtitan6/hft-marketmaker/internal/risk"
)

// Status is an order's position in its state machine. Terminal statuses
// (Filled, Cancelled, Rejected) admit no further transition.
type Status int

const (
	StatusNew Status = iota
	StatusOpen
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusOpen:
		return "OPEN"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is the pooled allocation unit tracked by the order worker for
// every resting order. Instances come from a pool.Pool[Order]; Reset is
// called automatically when one is returned.
type Order struct {
	ID        string
	ClientID  string
	Symbol    fixedpoint.Symbol
	Side      risk.Side
	Price     fixedpoint.Price
	Qty       fixedpoint.Qty
	FilledQty fixedpoint.Qty
	Status    Status
	CreatedAt fixedpoint.Timestamp
}

// Reset clears every field so a previous order's data can't leak into the
// next checkout. Satisfies pool.Resettable.
func (o *Order) Reset() {
	*o = Order{}
}

// Transition moves the order to next, rejecting any move out of a terminal
// status — per the book/order invariant that no transition leaves a
// terminal state.
func (o *Order) Transition(next Status) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("engine: order %s is terminal (%s), cannot transition to %s", o.ID, o.Status, next)
	}
	o.Status = next
	return nil
}

// ApplyFill grows FilledQty by qty (monotonically, capped at Qty) and
// derives Status from the result. Returns an error if the fill would push
// FilledQty past Qty — a venue protocol violation, not a recoverable state.
func (o *Order) ApplyFill(qty fixedpoint.Qty) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("engine: order %s is terminal (%s), cannot apply fill", o.ID, o.Status)
	}
	newFilled := o.FilledQty + qty
	if newFilled > o.Qty {
		return fmt.Errorf("engine: order %s fill %v would exceed quantity %v", o.ID, newFilled.ToFloat(), o.Qty.ToFloat())
	}
	o.FilledQty = newFilled
	if newFilled == o.Qty {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return nil
}
