package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// PaperConfig configures a PaperAdapter: the starting balance and the
// latency simulated between SendOrder and the resulting fill.
type PaperConfig struct {
	BaseAsset, QuoteAsset   string
	StartBaseQty            fixedpoint.Qty
	StartQuoteQty           fixedpoint.Qty
	FillLatency             time.Duration
}

// PaperAdapter implements Adapter entirely in-process: orders fill
// immediately (after a simulated latency) at their own limit price against
// a synthetic balance, with no network calls at all. Used for
// trading.paper_trading and as the fixture engine tests drive against,
// since it needs no live venue to exercise the full order lifecycle.
type PaperAdapter struct {
	cfg PaperConfig

	mu        sync.Mutex
	connected bool
	balances  map[string]fixedpoint.Qty
	openOrds  map[string]OpenOrder

	callbacksMu sync.RWMutex
	callbacks   Callbacks
}

func NewPaperAdapter(cfg PaperConfig) *PaperAdapter {
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = "BASE"
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "QUOTE"
	}
	return &PaperAdapter{
		cfg: cfg,
		balances: map[string]fixedpoint.Qty{
			cfg.BaseAsset:  cfg.StartBaseQty,
			cfg.QuoteAsset: cfg.StartQuoteQty,
		},
		openOrds: make(map[string]OpenOrder),
	}
}

func (p *PaperAdapter) SetCallbacks(cb Callbacks) {
	p.callbacksMu.Lock()
	defer p.callbacksMu.Unlock()
	p.callbacks = cb
}

func (p *PaperAdapter) cb() Callbacks {
	p.callbacksMu.RLock()
	defer p.callbacksMu.RUnlock()
	return p.callbacks
}

func (p *PaperAdapter) Connect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	if cb := p.cb().OnConnected; cb != nil {
		cb()
	}
	return nil
}

func (p *PaperAdapter) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	if cb := p.cb().OnDisconnected; cb != nil {
		cb("paper adapter disconnect")
	}
	return nil
}

func (p *PaperAdapter) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Subscriptions are no-ops: a PaperAdapter has no market data of its own.
// Callers that need ticks in paper mode feed them in via PushTick.
func (p *PaperAdapter) SubscribeTicker(symbol fixedpoint.Symbol) error      { return nil }
func (p *PaperAdapter) SubscribeOrderBook(symbol fixedpoint.Symbol, depth int) error { return nil }
func (p *PaperAdapter) SubscribeTrades(symbol fixedpoint.Symbol) error      { return nil }
func (p *PaperAdapter) Unsubscribe(symbol fixedpoint.Symbol) error          { return nil }

// PushTick lets a test or a driver feed a synthetic market data event
// through the same callback path a live venue would use.
func (p *PaperAdapter) PushTick(t Tick) {
	if cb := p.cb().OnTick; cb != nil {
		cb(t)
	}
}

func (p *PaperAdapter) SendOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if !p.IsConnected() {
		return OrderResponse{}, fmt.Errorf("paper adapter: not connected")
	}
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	orderID := "paper-" + req.ClientID

	p.mu.Lock()
	p.openOrds[orderID] = OpenOrder{
		OrderID: orderID, ClientID: req.ClientID, Symbol: req.Symbol,
		Side: req.Side, Price: req.Price, Qty: req.Qty,
	}
	p.mu.Unlock()

	fill := func() {
		if p.cfg.FillLatency > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.FillLatency):
			}
		}
		p.mu.Lock()
		_, stillOpen := p.openOrds[orderID]
		delete(p.openOrds, orderID)
		p.mu.Unlock()
		if !stillOpen {
			return
		}
		now := fixedpoint.Timestamp(time.Now().UnixNano())
		if cb := p.cb().OnOrderUpdate; cb != nil {
			cb(OrderUpdate{
				OrderID: orderID, ClientID: req.ClientID, Symbol: req.Symbol,
				Status: StatusFilled, FilledQty: req.Qty, FillPrice: req.Price,
				ExchangeTime: now, LocalTime: now,
			})
		}
	}
	if p.cfg.FillLatency > 0 {
		go fill()
	} else {
		fill()
	}

	return OrderResponse{OrderID: orderID, ClientID: req.ClientID, Accepted: true}, nil
}

func (p *PaperAdapter) CancelOrder(ctx context.Context, req CancelRequest) (CancelResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.openOrds[req.OrderID]; !ok {
		return CancelResponse{Reason: "unknown order"}, nil
	}
	delete(p.openOrds, req.OrderID)
	return CancelResponse{Cancelled: []string{req.OrderID}}, nil
}

func (p *PaperAdapter) CancelAllOrders(ctx context.Context, symbol fixedpoint.Symbol) (CancelResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var cancelled []string
	for id, o := range p.openOrds {
		if o.Symbol == symbol {
			cancelled = append(cancelled, id)
			delete(p.openOrds, id)
		}
	}
	return CancelResponse{Cancelled: cancelled}, nil
}

func (p *PaperAdapter) GetBalance(ctx context.Context, asset string) (Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	qty := p.balances[asset]
	return Balance{Asset: asset, Available: qty, Total: qty}, nil
}

func (p *PaperAdapter) GetOpenOrders(ctx context.Context, symbol fixedpoint.Symbol) ([]OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []OpenOrder
	for _, o := range p.openOrds {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}
