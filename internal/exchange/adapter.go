// Package exchange defines the boundary between the trading engine and a
// live venue: the Adapter contract, a generic REST+WebSocket implementation
// of it, and a PaperAdapter for dry runs and engine tests.
//
// Wire formats are explicitly out of scope here — whatever an Adapter talks
// to the wire with, it delivers only fully-parsed core structures (Tick,
// OrderUpdate, Trade) to the engine. This package is deliberately the
// thinnest one in the module: a real venue integration is swappable without
// touching book, risk, or strategy.
package exchange

import (
	"context"
	"fmt"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// Side mirrors risk.Side at the adapter boundary; kept distinct so this
// package has no dependency on internal/risk.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Tick is a fully-parsed book update delivered to on_tick. ExchangeTime is
// the venue's own timestamp, used only for analytics; LocalTime is set by
// the adapter on receipt and is what the engine orders events by.
type Tick struct {
	Symbol       fixedpoint.Symbol
	Side         Side
	Price        fixedpoint.Price
	Qty          fixedpoint.Qty
	Sequence     uint64
	ExchangeTime fixedpoint.Timestamp
	LocalTime    fixedpoint.Timestamp
}

// OrderStatus is the venue's report of an order's lifecycle state.
type OrderStatus int

const (
	StatusNew OrderStatus = iota
	StatusOpen
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

// OrderUpdate is delivered to on_order_update for every resting order state
// transition the venue reports, including fills.
type OrderUpdate struct {
	OrderID      string
	ClientID     string
	Symbol       fixedpoint.Symbol
	Status       OrderStatus
	FilledQty    fixedpoint.Qty
	FillPrice    fixedpoint.Price
	RejectReason string
	ExchangeTime fixedpoint.Timestamp
	LocalTime    fixedpoint.Timestamp
}

// Trade is a public tape print, delivered to on_trade.
type Trade struct {
	Symbol       fixedpoint.Symbol
	Price        fixedpoint.Price
	Qty          fixedpoint.Qty
	Side         Side
	ExchangeTime fixedpoint.Timestamp
	LocalTime    fixedpoint.Timestamp
}

// OrderRequest is what send_order takes: a client-assigned order to place.
type OrderRequest struct {
	ClientID string
	Symbol   fixedpoint.Symbol
	Side     Side
	Price    fixedpoint.Price
	Qty      fixedpoint.Qty
}

// OrderResponse acknowledges a send_order call. Accepted is false when the
// venue rejected the order synchronously (e.g. bad price/size); a later
// OrderUpdate with StatusRejected covers asynchronous rejects.
type OrderResponse struct {
	OrderID  string
	ClientID string
	Accepted bool
	Reason   string
}

// CancelRequest identifies an order to cancel.
type CancelRequest struct {
	OrderID  string
	ClientID string
	Symbol   fixedpoint.Symbol
}

// CancelResponse reports which orders were actually cancelled.
type CancelResponse struct {
	Cancelled []string
	Reason    string
}

// Balance is a single asset's available/total balance.
type Balance struct {
	Asset     string
	Available fixedpoint.Qty
	Total     fixedpoint.Qty
}

// OpenOrder is a single resting order as reported by get_open_orders.
type OpenOrder struct {
	OrderID   string
	ClientID  string
	Symbol    fixedpoint.Symbol
	Side      Side
	Price     fixedpoint.Price
	Qty       fixedpoint.Qty
	FilledQty fixedpoint.Qty
}

// Callbacks groups the handlers the engine registers with an Adapter before
// calling Connect. Any nil handler is treated as a no-op.
type Callbacks struct {
	OnTick         func(Tick)
	OnOrderUpdate  func(OrderUpdate)
	OnTrade        func(Trade)
	OnConnected    func()
	OnDisconnected func(reason string)
	OnError        func(message string)
}

// Adapter is the contract the engine depends on. Nothing in internal/engine,
// internal/book, internal/risk, or internal/strategy imports a concrete
// adapter type — only this interface.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	SetCallbacks(Callbacks)

	SubscribeTicker(symbol fixedpoint.Symbol) error
	SubscribeOrderBook(symbol fixedpoint.Symbol, depth int) error
	SubscribeTrades(symbol fixedpoint.Symbol) error
	Unsubscribe(symbol fixedpoint.Symbol) error

	SendOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
	CancelOrder(ctx context.Context, req CancelRequest) (CancelResponse, error)
	CancelAllOrders(ctx context.Context, symbol fixedpoint.Symbol) (CancelResponse, error)

	GetBalance(ctx context.Context, asset string) (Balance, error)
	GetOpenOrders(ctx context.Context, symbol fixedpoint.Symbol) ([]OpenOrder, error)
}

// AdapterConstructor builds an Adapter from a venue-specific config blob
// (RESTWSConfig or PaperConfig for the built-in adapters, passed as any to
// keep this package free of a config import).
type AdapterConstructor func(cfg any) (Adapter, error)

var registry = map[string]AdapterConstructor{}

// Register makes an adapter constructor available under name, for
// cmd/marketmaker to select at startup via the exchange.name config key.
// The built-in rest_ws and paper adapters are registered from this file's
// init() into a package-level map.
func Register(name string, ctor AdapterConstructor) {
	registry[name] = ctor
}

// New looks up a registered constructor by name and builds an Adapter.
func New(name string, cfg any) (Adapter, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("exchange: no adapter registered for %q", name)
	}
	return ctor(cfg)
}

func init() {
	Register("rest_ws", func(cfg any) (Adapter, error) {
		c, ok := cfg.(RESTWSConfig)
		if !ok {
			return nil, fmt.Errorf("exchange: rest_ws adapter requires a RESTWSConfig, got %T", cfg)
		}
		return NewRESTWSAdapter(c), nil
	})
	Register("paper", func(cfg any) (Adapter, error) {
		c, _ := cfg.(PaperConfig)
		return NewPaperAdapter(c), nil
	})
}
