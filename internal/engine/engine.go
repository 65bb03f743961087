// Package engine is the trading engine's orchestrator: one goroutine per
// worker (tick, strategy, order, risk), wired together by internal/queue
// SPSC queues instead of shared mutable state. The book is the tick
// worker's sole property; the strategy worker only ever sees queued
// snapshots of it, and the order worker only ever sees queued quote
// decisions — matching the single-owner-state design the rest of this
// module follows.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xtitan6/hft-marketmaker/internal/book"
	"github.com/0xtitan6/hft-marketmaker/internal/exchange"
	"github.com/0xtitan6/hft-marketmaker/internal/pool"
	"github.com/0xtitan6/hft-marketmaker/internal/queue"
	"github.com/0xtitan6/hft-marketmaker/internal/risk"
	"github.com/0xtitan6/hft-marketmaker/internal/strategy"
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// Config is the subset of internal/config.Config one Engine needs; kept
// as a plain struct here rather than importing internal/config, which
// would otherwise own this package.
type Config struct {
	Symbol   fixedpoint.Symbol
	EnableL3 bool
	Depth    int

	RiskLimits risk.Limits

	OrderPoolCapacity int

	TickQueueCapacity     int
	SnapshotQueueCapacity int
	OrderQueueCapacity    int
	UpdateQueueCapacity   int
	TradeQueueCapacity    int
	ControlQueueCapacity  int

	DrainDeadline         time.Duration
	RiskRecomputeInterval time.Duration

	// Flow* tune the toxic-flow detector that widens quoted spreads after a
	// burst of one-sided fills. FlowMaxWidenBps of 0 disables the detector
	// entirely (ComputeQuotes always sees a zero Signal).
	FlowWindow            time.Duration
	FlowToxicityThreshold float64
	FlowCooldown          time.Duration
	FlowMaxWidenBps       float64
}

// DefaultConfig fills in the queue capacities and timing spec.md documents
// when the caller leaves them zero.
func DefaultConfig() Config {
	return Config{
		Depth:                 10,
		OrderPoolCapacity:     256,
		TickQueueCapacity:     65536,
		SnapshotQueueCapacity: 65536,
		OrderQueueCapacity:    8192,
		UpdateQueueCapacity:   8192,
		TradeQueueCapacity:    8192,
		ControlQueueCapacity:  4096,
		DrainDeadline:         500 * time.Millisecond,
		RiskRecomputeInterval: time.Second,
		FlowWindow:            60 * time.Second,
		FlowToxicityThreshold: 0.6,
		FlowCooldown:          120 * time.Second,
		FlowMaxWidenBps:       50,
	}
}

type tickSnapshot struct {
	Book strategy.BookSnapshot
	Now  fixedpoint.Timestamp
}

type orderIntent struct {
	Side           risk.Side
	Price          fixedpoint.Price
	Qty            fixedpoint.Qty
	ReferencePrice fixedpoint.Price
}

// Engine orchestrates book, risk, strategy, and the exchange adapter for
// one traded symbol.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	adapter exchange.Adapter
	clock   fixedpoint.Clock

	book        *book.Book
	riskMgr     *risk.Manager
	quoter      strategy.Quoter
	flowTracker *strategy.FlowTracker // nil when flow detection is disabled
	orders      *pool.Pool[Order, *Order]

	errorCounters ErrorCounters
	metrics       *metricsSet

	tickQueue     *queue.Queue[exchange.Tick]
	snapshotQueue *queue.Queue[tickSnapshot]
	orderQueue    *queue.Queue[orderIntent]
	updateQueue   *queue.Queue[exchange.OrderUpdate]
	tradeQueue    *queue.Queue[exchange.Trade]
	controlQueue  *queue.Queue[ErrorEvent]

	openOrdersMu sync.Mutex
	openOrders   map[string]*Order // keyed by exchange order ID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
	fatal        chan ErrorEvent
}

// New wires an Engine for one symbol. quoter is constructed by the caller
// (cmd/marketmaker, per the configured strategy variant) since the three
// Quoter implementations take distinct constructor parameters.
func New(cfg Config, adapter exchange.Adapter, quoter strategy.Quoter, clock fixedpoint.Clock, logger *slog.Logger, reg prometheus.Registerer) (*Engine, error) {
	if cfg.Symbol.IsZero() {
		return nil, fmt.Errorf("engine: symbol is required")
	}
	zero := DefaultConfig()
	if cfg.Depth == 0 {
		cfg.Depth = zero.Depth
	}
	if cfg.OrderPoolCapacity == 0 {
		cfg.OrderPoolCapacity = zero.OrderPoolCapacity
	}
	if cfg.TickQueueCapacity == 0 {
		cfg.TickQueueCapacity = zero.TickQueueCapacity
	}
	if cfg.SnapshotQueueCapacity == 0 {
		cfg.SnapshotQueueCapacity = zero.SnapshotQueueCapacity
	}
	if cfg.OrderQueueCapacity == 0 {
		cfg.OrderQueueCapacity = zero.OrderQueueCapacity
	}
	if cfg.UpdateQueueCapacity == 0 {
		cfg.UpdateQueueCapacity = zero.UpdateQueueCapacity
	}
	if cfg.TradeQueueCapacity == 0 {
		cfg.TradeQueueCapacity = zero.TradeQueueCapacity
	}
	if cfg.ControlQueueCapacity == 0 {
		cfg.ControlQueueCapacity = zero.ControlQueueCapacity
	}
	if cfg.DrainDeadline == 0 {
		cfg.DrainDeadline = zero.DrainDeadline
	}
	if cfg.RiskRecomputeInterval == 0 {
		cfg.RiskRecomputeInterval = zero.RiskRecomputeInterval
	}
	if cfg.FlowWindow == 0 {
		cfg.FlowWindow = zero.FlowWindow
	}
	if cfg.FlowToxicityThreshold == 0 {
		cfg.FlowToxicityThreshold = zero.FlowToxicityThreshold
	}
	if cfg.FlowCooldown == 0 {
		cfg.FlowCooldown = zero.FlowCooldown
	}

	e := &Engine{cfg: cfg, logger: logger.With("component", "engine"), adapter: adapter, quoter: quoter, clock: clock}

	e.book = book.New(cfg.Symbol, cfg.EnableL3)
	e.orders = pool.New[Order](cfg.OrderPoolCapacity)
	e.openOrders = make(map[string]*Order)
	e.metrics = newMetricsSet(reg)
	e.fatal = make(chan ErrorEvent, 1)
	if cfg.FlowMaxWidenBps > 0 {
		e.flowTracker = strategy.NewFlowTracker(
			fixedpoint.Timestamp(cfg.FlowWindow),
			cfg.FlowToxicityThreshold,
			fixedpoint.Timestamp(cfg.FlowCooldown),
			cfg.FlowMaxWidenBps,
		)
	}

	e.riskMgr = risk.New(cfg.RiskLimits, e.onKillSwitch, logger.With("symbol", cfg.Symbol.String()), reg)

	var err error
	if e.tickQueue, err = queue.New[exchange.Tick](cfg.TickQueueCapacity); err != nil {
		return nil, err
	}
	if e.snapshotQueue, err = queue.New[tickSnapshot](cfg.SnapshotQueueCapacity); err != nil {
		return nil, err
	}
	if e.orderQueue, err = queue.New[orderIntent](cfg.OrderQueueCapacity); err != nil {
		return nil, err
	}
	if e.updateQueue, err = queue.New[exchange.OrderUpdate](cfg.UpdateQueueCapacity); err != nil {
		return nil, err
	}
	if e.tradeQueue, err = queue.New[exchange.Trade](cfg.TradeQueueCapacity); err != nil {
		return nil, err
	}
	if e.controlQueue, err = queue.New[ErrorEvent](cfg.ControlQueueCapacity); err != nil {
		return nil, err
	}

	return e, nil
}

// RestorePosition seeds the risk manager's position from persisted state.
func (e *Engine) RestorePosition(p risk.Position) { e.riskMgr.RestorePosition(p) }

// PositionSnapshot exposes the current position, for persistence and the
// read-only API/dashboard endpoint.
func (e *Engine) PositionSnapshot() risk.Position { return e.riskMgr.PositionSnapshot() }

// Book exposes the book for the API snapshot endpoint.
func (e *Engine) Book() *book.Book { return e.book }

// RiskSnapshot exposes the risk gate's current state for the API snapshot
// endpoint.
func (e *Engine) RiskSnapshot() risk.Snapshot { return e.riskMgr.Snapshot() }

// Symbol returns the traded symbol's string form, for the API snapshot
// endpoint.
func (e *Engine) Symbol() string { return e.cfg.Symbol.String() }

// Start brings workers up in dependency order — book (tick worker), risk,
// strategy, order — then signals the adapter to connect and subscribe.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.adapter.SetCallbacks(exchange.Callbacks{
		OnTick:         e.onAdapterTick,
		OnOrderUpdate:  e.onAdapterOrderUpdate,
		OnTrade:        e.onAdapterTrade,
		OnConnected:    func() { e.logger.Info("adapter connected") },
		OnDisconnected: func(reason string) { e.pushError(KindConnection, reason) },
		OnError:        func(msg string) { e.pushError(KindProtocol, msg) },
	})

	e.wg.Add(4)
	go e.tickWorker()
	go e.riskWorker()
	go e.strategyWorker()
	go e.orderWorker()

	if err := e.adapter.Connect(e.ctx); err != nil {
		e.cancel()
		return fmt.Errorf("engine: adapter connect: %w", err)
	}
	if err := e.adapter.SubscribeOrderBook(e.cfg.Symbol, e.cfg.Depth); err != nil {
		return fmt.Errorf("engine: subscribe order book: %w", err)
	}
	if err := e.adapter.SubscribeTrades(e.cfg.Symbol); err != nil {
		return fmt.Errorf("engine: subscribe trades: %w", err)
	}
	return nil
}

// Stop cancels the engine context, which all four workers observe at the
// same time; they are not stopped in any particular order. Each worker
// drains its input queue up to DrainDeadline before exiting. Once all have
// exited, Stop cancels the symbol's resting orders and disconnects the
// adapter.
func (e *Engine) Stop() {
	e.logger.Info("shutting down")
	e.cancel()
	e.wg.Wait()

	cancelCtx, done := context.WithTimeout(context.Background(), e.cfg.DrainDeadline)
	defer done()
	if _, err := e.adapter.CancelAllOrders(cancelCtx, e.cfg.Symbol); err != nil {
		e.logger.Error("cancel-all on shutdown failed", "error", err)
	}
	if err := e.adapter.Disconnect(cancelCtx); err != nil {
		e.logger.Error("adapter disconnect failed", "error", err)
	}
	e.logger.Info("shutdown complete")
}

// Fatal returns a channel that receives the triggering ErrorEvent exactly
// once when an INTERNAL error forces shutdown; cmd/marketmaker selects on
// it to decide the process exit code.
func (e *Engine) Fatal() <-chan ErrorEvent { return e.fatal }

func (e *Engine) onKillSwitch(reason string) {
	e.logger.Error("kill switch activated, quoting disabled", "reason", reason)
}

// --- adapter callbacks: producer side of the SPSC queues ---

func (e *Engine) onAdapterTick(t exchange.Tick) {
	if !e.tickQueue.Push(t) {
		e.metrics.queueDropped.WithLabelValues("tick").Set(float64(e.tickQueue.Dropped()))
	}
}

func (e *Engine) onAdapterOrderUpdate(u exchange.OrderUpdate) {
	if !e.updateQueue.Push(u) {
		e.metrics.queueDropped.WithLabelValues("order_update").Set(float64(e.updateQueue.Dropped()))
	}
}

func (e *Engine) onAdapterTrade(t exchange.Trade) {
	if !e.tradeQueue.Push(t) {
		e.metrics.queueDropped.WithLabelValues("trade").Set(float64(e.tradeQueue.Dropped()))
	}
}

func (e *Engine) pushError(kind ErrorKind, msg string) {
	evt := ErrorEvent{Kind: kind, Message: msg, Time: e.clock.Now()}
	if !e.controlQueue.Push(evt) {
		e.logger.Error("control queue full, dropping error event", "kind", kind, "message", msg)
	}
}

// --- tick worker: sole owner of the book ---

func (e *Engine) tickWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			e.drainTicks()
			return
		default:
		}
		t, ok := e.tickQueue.Pop()
		if !ok {
			select {
			case <-e.ctx.Done():
				e.drainTicks()
				return
			case <-time.After(time.Microsecond):
			}
			continue
		}
		e.applyTick(t)
	}
}

func (e *Engine) drainTicks() {
	deadline := time.Now().Add(e.cfg.DrainDeadline)
	for time.Now().Before(deadline) {
		t, ok := e.tickQueue.Pop()
		if !ok {
			return
		}
		e.applyTick(t)
	}
}

func (e *Engine) applyTick(t exchange.Tick) {
	side := book.Bid
	if t.Side == exchange.Sell {
		side = book.Ask
	}
	applied := e.book.ApplyL2Update(side, t.Price, t.Qty, t.Sequence, t.LocalTime)
	if !applied {
		e.pushError(KindBookInconsistency, "sequence gap: update dropped")
	}
	e.metrics.ticksProcessed.Inc()

	snap := e.buildSnapshot(t.LocalTime)
	if !e.snapshotQueue.Push(snap) {
		e.metrics.queueDropped.WithLabelValues("snapshot").Set(float64(e.snapshotQueue.Dropped()))
	}
}

func (e *Engine) buildSnapshot(now fixedpoint.Timestamp) tickSnapshot {
	mid, _ := e.book.Mid()
	bid, _ := e.book.BestBid()
	ask, _ := e.book.BestAsk()
	// Mid() only checks that both sides are non-empty; a crossed book
	// (best_bid >= best_ask) must never reach a Quoter as quotable.
	twoSided := e.book.State() == book.TwoSided
	return tickSnapshot{
		Book: strategy.BookSnapshot{
			TwoSided: twoSided,
			BestBid:  bid.Price,
			BestAsk:  ask.Price,
			Mid:      mid,
		},
		Now: now,
	}
}

// --- strategy worker: reads queued snapshots, never touches the book ---

func (e *Engine) strategyWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			e.drainSnapshots()
			return
		default:
		}
		snap, ok := e.snapshotQueue.Pop()
		if !ok {
			select {
			case <-e.ctx.Done():
				e.drainSnapshots()
				return
			case <-time.After(time.Microsecond):
			}
			continue
		}
		e.computeAndEnqueue(snap)
	}
}

func (e *Engine) drainSnapshots() {
	deadline := time.Now().Add(e.cfg.DrainDeadline)
	for time.Now().Before(deadline) {
		snap, ok := e.snapshotQueue.Pop()
		if !ok {
			return
		}
		e.computeAndEnqueue(snap)
	}
}

func (e *Engine) computeAndEnqueue(snap tickSnapshot) {
	if e.riskMgr.IsKillSwitchActive() {
		return
	}
	pos := e.riskMgr.PositionSnapshot()
	signal := strategy.Signal{}
	if e.flowTracker != nil {
		signal.VolatilityAdjustmentBps = e.flowTracker.GetSpreadWideningBps(snap.Now)
	}
	decision := e.quoter.ComputeQuotes(snap.Book, pos.Qty, signal, snap.Now)
	if !decision.ShouldQuote {
		return
	}
	e.metrics.quotesEmitted.Inc()

	reference := snap.Book.Mid
	if decision.BidSize > 0 {
		e.enqueueOrder(orderIntent{Side: risk.Buy, Price: decision.BidPrice, Qty: decision.BidSize, ReferencePrice: reference})
	}
	if decision.AskSize > 0 {
		e.enqueueOrder(orderIntent{Side: risk.Sell, Price: decision.AskPrice, Qty: decision.AskSize, ReferencePrice: reference})
	}
}

func (e *Engine) enqueueOrder(intent orderIntent) {
	if !e.orderQueue.Push(intent) {
		e.metrics.queueDropped.WithLabelValues("order").Set(float64(e.orderQueue.Dropped()))
	}
}

// --- order worker: risk gate, pool allocation, adapter dispatch ---

func (e *Engine) orderWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			e.drainOrders()
			return
		default:
		}
		intent, ok := e.orderQueue.Pop()
		if !ok {
			select {
			case <-e.ctx.Done():
				e.drainOrders()
				return
			case <-time.After(time.Microsecond):
			}
			continue
		}
		e.dispatchOrder(intent)
	}
}

func (e *Engine) drainOrders() {
	deadline := time.Now().Add(e.cfg.DrainDeadline)
	for time.Now().Before(deadline) {
		intent, ok := e.orderQueue.Pop()
		if !ok {
			return
		}
		e.dispatchOrder(intent)
	}
}

func (e *Engine) dispatchOrder(intent orderIntent) {
	e.openOrdersMu.Lock()
	e.riskMgr.SetOpenOrders(int64(len(e.openOrders)))
	e.openOrdersMu.Unlock()

	verdict := e.riskMgr.CheckOrder(risk.OrderRequest{Side: intent.Side, Price: intent.Price, Qty: intent.Qty}, intent.ReferencePrice)
	if !verdict.Pass {
		e.pushError(KindRisk, string(verdict.Reason)+": "+verdict.Message)
		return
	}

	o, err := e.orders.Get()
	if err != nil {
		e.pushError(KindInternal, "order pool exhausted")
		e.triggerFatal(ErrorEvent{Kind: KindInternal, Message: "order pool exhausted", Time: e.clock.Now()})
		return
	}

	clientID := uuid.NewString()
	*o = Order{
		ID:        clientID,
		ClientID:  clientID,
		Symbol:    e.cfg.Symbol,
		Side:      intent.Side,
		Price:     intent.Price,
		Qty:       intent.Qty,
		Status:    StatusNew,
		CreatedAt: e.clock.Now(),
	}

	ctx, cancel := context.WithTimeout(e.ctx, 2*time.Second)
	resp, err := e.adapter.SendOrder(ctx, exchange.OrderRequest{
		ClientID: clientID, Symbol: e.cfg.Symbol,
		Side: exchangeSide(intent.Side), Price: intent.Price, Qty: intent.Qty,
	})
	cancel()
	if err != nil || !resp.Accepted {
		e.orders.Put(o)
		e.riskMgr.RecordReject()
		reason := "send_order failed"
		if err == nil {
			reason = resp.Reason
		}
		e.pushError(KindOrderReject, reason)
		return
	}

	_ = o.Transition(StatusOpen)
	e.openOrdersMu.Lock()
	e.openOrders[resp.OrderID] = o
	e.openOrdersMu.Unlock()
	e.riskMgr.ResetErrors()
	e.metrics.ordersSent.Inc()
}

func exchangeSide(s risk.Side) exchange.Side {
	if s == risk.Sell {
		return exchange.Sell
	}
	return exchange.Buy
}

// --- risk worker: periodic equity recompute, fills, trades, control events ---

func (e *Engine) riskWorker() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.RiskRecomputeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			e.drainRiskQueues()
			return
		case <-ticker.C:
			e.riskMgr.CheckDrawdown()
		default:
		}

		drained := false
		if u, ok := e.updateQueue.Pop(); ok {
			e.handleOrderUpdate(u)
			drained = true
		}
		if _, ok := e.tradeQueue.Pop(); ok {
			// market trade tape: available for a future volatility signal,
			// no direct action on the risk/order state today
			drained = true
		}
		if evt, ok := e.controlQueue.Pop(); ok {
			e.handleControlEvent(evt)
			drained = true
		}
		if !drained {
			select {
			case <-e.ctx.Done():
				e.drainRiskQueues()
				return
			case <-time.After(time.Microsecond):
			}
		}
	}
}

func (e *Engine) drainRiskQueues() {
	deadline := time.Now().Add(e.cfg.DrainDeadline)
	for time.Now().Before(deadline) {
		drained := false
		if u, ok := e.updateQueue.Pop(); ok {
			e.handleOrderUpdate(u)
			drained = true
		}
		if evt, ok := e.controlQueue.Pop(); ok {
			e.handleControlEvent(evt)
			drained = true
		}
		if _, ok := e.tradeQueue.Pop(); ok {
			drained = true
		}
		if !drained {
			return
		}
	}
}

func (e *Engine) handleOrderUpdate(u exchange.OrderUpdate) {
	e.openOrdersMu.Lock()
	o, ok := e.openOrders[u.OrderID]
	e.openOrdersMu.Unlock()
	if !ok {
		return
	}

	switch u.Status {
	case exchange.StatusPartiallyFilled, exchange.StatusFilled:
		deltaQty := u.FilledQty - o.FilledQty
		if deltaQty > 0 {
			if err := o.ApplyFill(deltaQty); err != nil {
				e.pushError(KindProtocol, err.Error())
				return
			}
			e.riskMgr.OnFill(risk.Fill{Side: o.Side, Price: u.FillPrice, Qty: deltaQty})
			e.quoter.OnFill(deltaQty)
			e.riskMgr.OnMarkPrice(u.FillPrice)
			if e.flowTracker != nil {
				e.flowTracker.AddFill(o.Side, e.clock.Now())
			}
			e.metrics.fills.Inc()
		}
		if o.Status.IsTerminal() {
			e.removeOpenOrder(u.OrderID)
		}
	case exchange.StatusCancelled:
		_ = o.Transition(StatusCancelled)
		e.quoter.OnCancel()
		e.removeOpenOrder(u.OrderID)
	case exchange.StatusRejected:
		_ = o.Transition(StatusRejected)
		e.riskMgr.RecordReject()
		e.pushError(KindOrderReject, u.RejectReason)
		e.removeOpenOrder(u.OrderID)
	}
}

func (e *Engine) removeOpenOrder(orderID string) {
	e.openOrdersMu.Lock()
	o, ok := e.openOrders[orderID]
	delete(e.openOrders, orderID)
	e.riskMgr.SetOpenOrders(int64(len(e.openOrders)))
	e.openOrdersMu.Unlock()
	if ok {
		e.orders.Put(o)
	}
}

func (e *Engine) handleControlEvent(evt ErrorEvent) {
	e.errorCounters.Record(evt.Kind)
	e.metrics.errorsByKind.WithLabelValues(evt.Kind.String()).Inc()

	switch evt.Kind {
	case KindRisk, KindOrderReject:
		e.riskMgr.RecordError()
	case KindInternal:
		e.triggerFatal(evt)
	}
	e.logger.Warn("error event", "kind", evt.Kind, "message", evt.Message)
}

func (e *Engine) triggerFatal(evt ErrorEvent) {
	e.shutdownOnce.Do(func() {
		select {
		case e.fatal <- evt:
		default:
		}
	})
}
