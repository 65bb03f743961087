package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// RESTWSConfig is the subset of config.Config.Exchange a RESTWSAdapter needs.
// Kept as a plain struct (not config.Config itself) so this package has no
// import-cycle risk with internal/config.
type RESTWSConfig struct {
	RESTBaseURL string
	WSURL       string
	APIKey      string
	APISecret   string
	DryRun      bool
	Limits      RateLimits
}

// RESTWSAdapter implements Adapter against a generic REST+WebSocket venue:
// order management over REST, market data and fill notifications over a
// single reconnecting WebSocket stream. The wire shapes below (wsEnvelope,
// wsBookLevel, ...) are a minimal but representative JSON protocol; a real
// venue integration replaces dispatchMessage's cases with its own, without
// the engine ever noticing.
type RESTWSAdapter struct {
	cfg    RESTWSConfig
	http   *resty.Client
	rl     *RateLimiter
	logger *slog.Logger

	connMu       sync.Mutex
	conn         *websocket.Conn
	connected    bool
	subscribedMu sync.RWMutex
	subscribed   map[fixedpoint.Symbol]bool

	callbacksMu sync.RWMutex
	callbacks   Callbacks

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRESTWSAdapter builds an adapter against cfg. Connect must be called
// before any subscription or order call will do anything.
func NewRESTWSAdapter(cfg RESTWSConfig) *RESTWSAdapter {
	limits := cfg.Limits
	if limits == (RateLimits{}) {
		limits = DefaultRateLimits()
	}
	httpClient := resty.New().
		SetBaseURL(cfg.RESTBaseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &RESTWSAdapter{
		cfg:        cfg,
		http:       httpClient,
		rl:         NewRateLimiter(limits),
		logger:     slog.Default().With("component", "exchange.rest_ws"),
		subscribed: make(map[fixedpoint.Symbol]bool),
	}
}

func (a *RESTWSAdapter) SetCallbacks(cb Callbacks) {
	a.callbacksMu.Lock()
	defer a.callbacksMu.Unlock()
	a.callbacks = cb
}

func (a *RESTWSAdapter) cb() Callbacks {
	a.callbacksMu.RLock()
	defer a.callbacksMu.RUnlock()
	return a.callbacks
}

// Connect dials the WebSocket stream and starts the reconnect-on-drop loop
// in the background; it returns once the first connection succeeds.
func (a *RESTWSAdapter) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	connected := make(chan error, 1)
	a.wg.Add(1)
	go a.run(runCtx, connected)

	select {
	case err := <-connected:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *RESTWSAdapter) Disconnect(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() { a.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	a.connMu.Lock()
	defer a.connMu.Unlock()
	a.connected = false
	return nil
}

func (a *RESTWSAdapter) IsConnected() bool {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	return a.connected
}

// run owns the reconnect loop: exponential backoff from 1s up to a 30s cap,
// same shape as the teacher's market-data feed.
func (a *RESTWSAdapter) run(ctx context.Context, firstConnect chan<- error) {
	defer a.wg.Done()
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	first := true

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := a.connectAndRead(ctx, func() {
			if first {
				firstConnect <- nil
				close(firstConnect)
				first = false
			}
		})
		if first {
			firstConnect <- err
			close(firstConnect)
			return
		}
		if ctx.Err() != nil {
			return
		}

		a.setConnected(false)
		if cb := a.cb().OnDisconnected; cb != nil {
			reason := "stream closed"
			if err != nil {
				reason = err.Error()
			}
			cb(reason)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (a *RESTWSAdapter) setConnected(v bool) {
	a.connMu.Lock()
	a.connected = v
	a.connMu.Unlock()
}

func (a *RESTWSAdapter) connectAndRead(ctx context.Context, onConnected func()) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	a.connMu.Lock()
	a.conn = conn
	a.connMu.Unlock()
	a.setConnected(true)

	a.resubscribeAll()

	if cb := a.cb().OnConnected; cb != nil {
		cb()
	}
	onConnected()

	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	pingDone := make(chan struct{})
	go a.pingLoop(ctx, conn, pingDone)
	defer close(pingDone)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		a.dispatchMessage(msg)
	}
}

func (a *RESTWSAdapter) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			a.connMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			a.connMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// wsEnvelope is the minimal generic event shape dispatched over the stream.
type wsEnvelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type wsTick struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Price    string  `json:"price"`
	Qty      string  `json:"qty"`
	Sequence uint64  `json:"sequence"`
	Time     float64 `json:"exchange_time"`
}

type wsOrderUpdate struct {
	OrderID   string  `json:"order_id"`
	ClientID  string  `json:"client_id"`
	Symbol    string  `json:"symbol"`
	Status    string  `json:"status"`
	FilledQty string  `json:"filled_qty"`
	FillPrice string  `json:"fill_price"`
	Reason    string  `json:"reason"`
	Time      float64 `json:"exchange_time"`
}

type wsTrade struct {
	Symbol string  `json:"symbol"`
	Price  string  `json:"price"`
	Qty    string  `json:"qty"`
	Side   string  `json:"side"`
	Time   float64 `json:"exchange_time"`
}

func (a *RESTWSAdapter) dispatchMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if cb := a.cb().OnError; cb != nil {
			cb(fmt.Sprintf("malformed message: %v", err))
		}
		return
	}

	now := fixedpoint.Timestamp(time.Now().UnixNano())

	switch env.EventType {
	case "tick":
		var t wsTick
		if err := json.Unmarshal(env.Data, &t); err != nil {
			a.reportProtocolError(err)
			return
		}
		if cb := a.cb().OnTick; cb != nil {
			sym, _ := fixedpoint.NewSymbol(t.Symbol)
			price, _ := fixedpoint.PriceFromDecimalString(t.Price)
			qty, _ := fixedpoint.QtyFromDecimalString(t.Qty)
			cb(Tick{
				Symbol:       sym,
				Side:         parseSide(t.Side),
				Price:        price,
				Qty:          qty,
				Sequence:     t.Sequence,
				ExchangeTime: fixedpoint.Timestamp(int64(t.Time * 1e9)),
				LocalTime:    now,
			})
		}
	case "order_update":
		var u wsOrderUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			a.reportProtocolError(err)
			return
		}
		if cb := a.cb().OnOrderUpdate; cb != nil {
			sym, _ := fixedpoint.NewSymbol(u.Symbol)
			filled, _ := fixedpoint.QtyFromDecimalString(u.FilledQty)
			fillPrice, _ := fixedpoint.PriceFromDecimalString(u.FillPrice)
			cb(OrderUpdate{
				OrderID:      u.OrderID,
				ClientID:     u.ClientID,
				Symbol:       sym,
				Status:       parseStatus(u.Status),
				FilledQty:    filled,
				FillPrice:    fillPrice,
				RejectReason: u.Reason,
				ExchangeTime: fixedpoint.Timestamp(int64(u.Time * 1e9)),
				LocalTime:    now,
			})
		}
	case "trade":
		var tr wsTrade
		if err := json.Unmarshal(env.Data, &tr); err != nil {
			a.reportProtocolError(err)
			return
		}
		if cb := a.cb().OnTrade; cb != nil {
			sym, _ := fixedpoint.NewSymbol(tr.Symbol)
			price, _ := fixedpoint.PriceFromDecimalString(tr.Price)
			qty, _ := fixedpoint.QtyFromDecimalString(tr.Qty)
			cb(Trade{
				Symbol:       sym,
				Price:        price,
				Qty:          qty,
				Side:         parseSide(tr.Side),
				ExchangeTime: fixedpoint.Timestamp(int64(tr.Time * 1e9)),
				LocalTime:    now,
			})
		}
	default:
		a.logger.Debug("unhandled event type", "event_type", env.EventType)
	}
}

func (a *RESTWSAdapter) reportProtocolError(err error) {
	if cb := a.cb().OnError; cb != nil {
		cb(fmt.Sprintf("protocol: %v", err))
	}
}

func parseSide(s string) Side {
	if s == "sell" || s == "SELL" {
		return Sell
	}
	return Buy
}

func parseStatus(s string) OrderStatus {
	switch s {
	case "open":
		return StatusOpen
	case "partially_filled":
		return StatusPartiallyFilled
	case "filled":
		return StatusFilled
	case "cancelled", "canceled":
		return StatusCancelled
	case "rejected":
		return StatusRejected
	default:
		return StatusNew
	}
}

func (a *RESTWSAdapter) writeJSON(v any) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.conn == nil {
		return fmt.Errorf("not connected")
	}
	return a.conn.WriteJSON(v)
}

func (a *RESTWSAdapter) resubscribeAll() {
	a.subscribedMu.RLock()
	symbols := make([]fixedpoint.Symbol, 0, len(a.subscribed))
	for s := range a.subscribed {
		symbols = append(symbols, s)
	}
	a.subscribedMu.RUnlock()
	for _, s := range symbols {
		_ = a.writeJSON(map[string]string{"op": "subscribe", "symbol": s.String()})
	}
}

func (a *RESTWSAdapter) SubscribeTicker(symbol fixedpoint.Symbol) error {
	a.markSubscribed(symbol)
	return a.writeJSON(map[string]string{"op": "subscribe", "channel": "ticker", "symbol": symbol.String()})
}

func (a *RESTWSAdapter) SubscribeOrderBook(symbol fixedpoint.Symbol, depth int) error {
	a.markSubscribed(symbol)
	return a.writeJSON(map[string]any{"op": "subscribe", "channel": "book", "symbol": symbol.String(), "depth": depth})
}

func (a *RESTWSAdapter) SubscribeTrades(symbol fixedpoint.Symbol) error {
	a.markSubscribed(symbol)
	return a.writeJSON(map[string]string{"op": "subscribe", "channel": "trades", "symbol": symbol.String()})
}

func (a *RESTWSAdapter) Unsubscribe(symbol fixedpoint.Symbol) error {
	a.subscribedMu.Lock()
	delete(a.subscribed, symbol)
	a.subscribedMu.Unlock()
	return a.writeJSON(map[string]string{"op": "unsubscribe", "symbol": symbol.String()})
}

func (a *RESTWSAdapter) markSubscribed(symbol fixedpoint.Symbol) {
	a.subscribedMu.Lock()
	a.subscribed[symbol] = true
	a.subscribedMu.Unlock()
}

type restOrderPayload struct {
	ClientID string `json:"client_id"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Qty      string `json:"qty"`
}

type restOrderResult struct {
	OrderID  string `json:"order_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

func (a *RESTWSAdapter) SendOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	if a.cfg.DryRun {
		a.logger.Info("dry-run: would send order", "client_id", req.ClientID, "side", req.Side, "price", req.Price.ToFloat(), "qty", req.Qty.ToFloat())
		return OrderResponse{OrderID: "dry-run-" + req.ClientID, ClientID: req.ClientID, Accepted: true}, nil
	}
	if err := a.rl.Order.Wait(ctx); err != nil {
		return OrderResponse{}, err
	}

	payload := restOrderPayload{
		ClientID: req.ClientID,
		Symbol:   req.Symbol.String(),
		Side:     req.Side.String(),
		Price:    req.Price.ToDecimalString(),
		Qty:      req.Qty.ToDecimalString(),
	}
	var result restOrderResult
	resp, err := a.http.R().SetContext(ctx).SetBody(payload).SetResult(&result).Post("/orders")
	if err != nil {
		return OrderResponse{}, fmt.Errorf("send order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return OrderResponse{}, fmt.Errorf("send order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return OrderResponse{OrderID: result.OrderID, ClientID: req.ClientID, Accepted: result.Accepted, Reason: result.Reason}, nil
}

func (a *RESTWSAdapter) CancelOrder(ctx context.Context, req CancelRequest) (CancelResponse, error) {
	if a.cfg.DryRun {
		return CancelResponse{Cancelled: []string{req.OrderID}}, nil
	}
	if err := a.rl.Cancel.Wait(ctx); err != nil {
		return CancelResponse{}, err
	}
	var result CancelResponse
	resp, err := a.http.R().SetContext(ctx).SetBody(map[string]string{"order_id": req.OrderID}).SetResult(&result).Delete("/orders")
	if err != nil {
		return CancelResponse{}, fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return CancelResponse{}, fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

func (a *RESTWSAdapter) CancelAllOrders(ctx context.Context, symbol fixedpoint.Symbol) (CancelResponse, error) {
	if a.cfg.DryRun {
		return CancelResponse{}, nil
	}
	if err := a.rl.Cancel.Wait(ctx); err != nil {
		return CancelResponse{}, err
	}
	var result CancelResponse
	resp, err := a.http.R().SetContext(ctx).SetBody(map[string]string{"symbol": symbol.String()}).SetResult(&result).Delete("/cancel-all")
	if err != nil {
		return CancelResponse{}, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return CancelResponse{}, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

func (a *RESTWSAdapter) GetBalance(ctx context.Context, asset string) (Balance, error) {
	if err := a.rl.Book.Wait(ctx); err != nil {
		return Balance{}, err
	}
	var result Balance
	resp, err := a.http.R().SetContext(ctx).SetQueryParam("asset", asset).SetResult(&result).Get("/balance")
	if err != nil {
		return Balance{}, fmt.Errorf("get balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Balance{}, fmt.Errorf("get balance: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

func (a *RESTWSAdapter) GetOpenOrders(ctx context.Context, symbol fixedpoint.Symbol) ([]OpenOrder, error) {
	if err := a.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	var result []OpenOrder
	resp, err := a.http.R().SetContext(ctx).SetQueryParam("symbol", symbol.String()).SetResult(&result).Get("/open-orders")
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get open orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}
