// Package risk implements the pre-trade risk gate and position/PnL
// tracking for the trading engine. CheckOrder is synchronous and
// lock-free on the fast path (atomics only) so the order worker can call
// it inline without blocking; the position mutex's critical section is
// bounded to a constant-time map lookup plus scalar updates.
package risk

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// Reason identifies why check_order failed.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonKillSwitchActive Reason = "KILL_SWITCH_ACTIVE"
	ReasonSymbolDisabled   Reason = "SYMBOL_DISABLED"
	ReasonOrderSize        Reason = "ORDER_SIZE"
	ReasonRateLimit        Reason = "RATE_LIMIT"
	ReasonOpenOrdersLimit  Reason = "OPEN_ORDERS_LIMIT"
	ReasonPositionLimit    Reason = "POSITION_LIMIT"
	ReasonDailyLoss        Reason = "DAILY_LOSS"
	ReasonPriceDeviation   Reason = "PRICE_DEVIATION"
)

// Verdict is the outcome of CheckOrder.
type Verdict struct {
	Pass    bool
	Reason  Reason
	Message string
}

func pass() Verdict { return Verdict{Pass: true} }

func fail(reason Reason, msg string) Verdict {
	return Verdict{Pass: false, Reason: reason, Message: msg}
}

// Side mirrors book.Side without importing internal/book, keeping risk
// independent of the book package.
type Side int

const (
	Buy Side = iota
	Sell
)

// OrderRequest is what the order worker passes into CheckOrder before
// dispatching to the adapter.
type OrderRequest struct {
	Side  Side
	Price fixedpoint.Price
	Qty   fixedpoint.Qty
}

// Limits is the configured risk envelope for one symbol.
type Limits struct {
	MaxOrderQty     fixedpoint.Qty
	MaxOrderValue   fixedpoint.Notional
	MaxOrdersPerSec int64
	MaxOpenOrders   int64
	MaxPositionQty  fixedpoint.Qty
	MaxPositionVal  fixedpoint.Notional
	MaxDailyLoss    fixedpoint.Notional
	MaxDrawdown     fixedpoint.Notional
	MaxDeviationBps int64

	ErrorThreshold  int64
	RejectThreshold int64
}

// Position tracks a single symbol's inventory and realized/unrealized PnL.
type Position struct {
	Qty           fixedpoint.Qty
	AvgPrice      fixedpoint.Price
	RealizedPnL   fixedpoint.Notional
	UnrealizedPnL fixedpoint.Notional
	MarkPrice     fixedpoint.Price
}

// Fill is a single execution report delivered from the adapter via the
// order worker.
type Fill struct {
	Side  Side
	Price fixedpoint.Price
	Qty   fixedpoint.Qty
}

// KillCallback is invoked exactly once when the kill switch transitions
// from inactive to active.
type KillCallback func(reason string)

// Manager is the risk gate. One Manager covers one symbol; the engine
// constructs one per traded symbol. CheckOrder and OnFill only take the
// position mutex; every counter is an atomic touched from any worker.
type Manager struct {
	logger *slog.Logger
	limits Limits

	symbolDisabled atomic.Bool
	killSwitch     atomic.Bool
	killOnce       sync.Once
	onKill         KillCallback

	consecutiveErrors atomic.Int64
	rejectCount       atomic.Int64
	ordersThisSecond  atomic.Int64
	currentSecond     atomic.Int64

	openOrders atomic.Int64

	posMu    sync.Mutex
	position Position

	peakEquity    atomic.Int64 // fixedpoint.Notional
	dailyRealized atomic.Int64 // fixedpoint.Notional

	metrics *metricsSet
}

// New constructs a Manager for one symbol with the given limits and kill
// callback. logger should already be scoped with the symbol.
func New(limits Limits, onKill KillCallback, logger *slog.Logger, reg prometheus.Registerer) *Manager {
	return &Manager{
		logger:  logger.With("component", "risk"),
		limits:  limits,
		onKill:  onKill,
		metrics: newMetricsSet(reg),
	}
}

// CheckOrder runs the ordered pre-trade checks and returns PASS or
// FAIL(reason, message). Called synchronously from the order worker before
// every dispatch; it does no I/O, but the position and loss checks take the
// position mutex.
func (m *Manager) CheckOrder(req OrderRequest, referencePrice fixedpoint.Price) Verdict {
	if m.killSwitch.Load() {
		m.metrics.checkFail.WithLabelValues(string(ReasonKillSwitchActive)).Inc()
		return fail(ReasonKillSwitchActive, "kill switch is active")
	}
	if m.symbolDisabled.Load() {
		m.metrics.checkFail.WithLabelValues(string(ReasonSymbolDisabled)).Inc()
		return fail(ReasonSymbolDisabled, "symbol is disabled")
	}

	notional := req.Price.Mul(req.Qty)
	if req.Qty.Abs() > m.limits.MaxOrderQty || notional.Abs() > m.limits.MaxOrderValue {
		m.metrics.checkFail.WithLabelValues(string(ReasonOrderSize)).Inc()
		return fail(ReasonOrderSize, "order exceeds max size or value")
	}

	if !m.admitRateLimit() {
		m.metrics.checkFail.WithLabelValues(string(ReasonRateLimit)).Inc()
		return fail(ReasonRateLimit, "outbound order rate limit exceeded")
	}

	if m.openOrders.Load() >= m.limits.MaxOpenOrders {
		m.metrics.checkFail.WithLabelValues(string(ReasonOpenOrdersLimit)).Inc()
		return fail(ReasonOpenOrdersLimit, "open order count at limit")
	}

	if !m.withinPositionLimit(req) {
		m.metrics.checkFail.WithLabelValues(string(ReasonPositionLimit)).Inc()
		return fail(ReasonPositionLimit, "projected position would exceed limit")
	}

	if !m.withinLossLimits() {
		m.metrics.checkFail.WithLabelValues(string(ReasonDailyLoss)).Inc()
		return fail(ReasonDailyLoss, "daily loss or drawdown limit breached")
	}

	if !m.withinPriceDeviation(req.Price, referencePrice) {
		m.metrics.checkFail.WithLabelValues(string(ReasonPriceDeviation)).Inc()
		return fail(ReasonPriceDeviation, "price deviates too far from reference")
	}

	m.metrics.checkPass.Inc()
	return pass()
}

// admitRateLimit implements the rolling one-second window via an atomic
// "current second" counter that resets on a wall-clock second boundary.
func (m *Manager) admitRateLimit() bool {
	sec := time.Now().Unix()
	if m.currentSecond.Swap(sec) != sec {
		m.ordersThisSecond.Store(0)
	}
	return m.ordersThisSecond.Add(1) <= m.limits.MaxOrdersPerSec
}

func (m *Manager) withinPositionLimit(req OrderRequest) bool {
	m.posMu.Lock()
	cur := m.position.Qty
	m.posMu.Unlock()

	delta := req.Qty
	if req.Side == Sell {
		delta = -delta
	}
	projectedQty := cur + delta
	projectedNotional := req.Price.Mul(projectedQty)

	return projectedQty.Abs() <= m.limits.MaxPositionQty &&
		projectedNotional.Abs() <= m.limits.MaxPositionVal
}

func (m *Manager) withinLossLimits() bool {
	realized := fixedpoint.Notional(m.dailyRealized.Load())
	if realized <= -m.limits.MaxDailyLoss {
		return false
	}
	equity := m.currentEquity()
	peak := fixedpoint.Notional(m.peakEquity.Load())
	return equity >= peak-m.limits.MaxDrawdown
}

func (m *Manager) withinPriceDeviation(price, reference fixedpoint.Price) bool {
	if reference == 0 {
		return true
	}
	diff := (price - reference).Abs()
	return diff.ToFloat()/reference.ToFloat()*10_000 <= float64(m.limits.MaxDeviationBps)
}

func (m *Manager) currentEquity() fixedpoint.Notional {
	m.posMu.Lock()
	defer m.posMu.Unlock()
	return m.position.RealizedPnL + m.position.UnrealizedPnL
}

// SetOpenOrders lets the order worker report its current open-order count
// ahead of CheckOrder; kept as a separate setter so the order worker's map
// remains the single source of truth for what's actually open.
func (m *Manager) SetOpenOrders(n int64) {
	m.openOrders.Store(n)
}

// OnFill applies a fill's position and PnL effect: same-signed fills
// average into the existing position by notional; opposite-signed fills
// close up to min(|pos|, fill_qty) at the existing avg_price, realizing
// PnL on the closed portion, with any residual opening a new position on
// the fill's side.
func (m *Manager) OnFill(f Fill) {
	m.posMu.Lock()
	defer m.posMu.Unlock()

	fillQty := f.Qty
	if f.Side == Sell {
		fillQty = -fillQty
	}

	pos := &m.position
	switch {
	case pos.Qty == 0 || sameSign(pos.Qty, fillQty):
		newQty := pos.Qty + fillQty
		if newQty != 0 {
			existingNotional := pos.AvgPrice.Mul(pos.Qty.Abs())
			addedNotional := f.Price.Mul(fillQty.Abs())
			pos.AvgPrice, _ = fixedpoint.VWAP(existingNotional+addedNotional, pos.Qty.Abs()+fillQty.Abs())
		}
		pos.Qty = newQty

	default:
		closedQty := minQty(pos.Qty.Abs(), fillQty.Abs())
		sign := fixedpoint.Notional(1)
		if pos.Qty < 0 {
			sign = -1
		}
		realized := (f.Price - pos.AvgPrice).Mul(closedQty) * sign
		pos.RealizedPnL += realized
		m.dailyRealized.Add(int64(realized))

		residual := fillQty.Abs() - closedQty
		remaining := pos.Qty.Abs() - closedQty
		switch {
		case remaining > 0:
			if pos.Qty < 0 {
				pos.Qty = -remaining
			} else {
				pos.Qty = remaining
			}
		case residual > 0:
			if fillQty < 0 {
				pos.Qty = -residual
			} else {
				pos.Qty = residual
			}
			pos.AvgPrice = f.Price
		default:
			pos.Qty = 0
		}
	}

	m.updateUnrealizedLocked()
	m.metrics.fills.Inc()
}

// OnMarkPrice recomputes unrealized PnL and tracks peak equity for
// drawdown checks. The engine calls it from the risk worker after each
// fill, using the fill price as the mark.
func (m *Manager) OnMarkPrice(mark fixedpoint.Price) {
	m.posMu.Lock()
	m.position.MarkPrice = mark
	m.updateUnrealizedLocked()
	equity := m.position.RealizedPnL + m.position.UnrealizedPnL
	m.posMu.Unlock()

	for {
		peak := fixedpoint.Notional(m.peakEquity.Load())
		if equity <= peak {
			return
		}
		if m.peakEquity.CompareAndSwap(int64(peak), int64(equity)) {
			return
		}
	}
}

func (m *Manager) updateUnrealizedLocked() {
	pos := &m.position
	if pos.Qty == 0 {
		pos.UnrealizedPnL = 0
		return
	}
	sign := fixedpoint.Notional(1)
	if pos.Qty < 0 {
		sign = -1
	}
	pos.UnrealizedPnL = (pos.MarkPrice - pos.AvgPrice).Mul(pos.Qty.Abs()) * sign
}

// RecordError increments the consecutive-error counter and fires the kill
// switch at threshold. A successful, error-free cycle should call
// ResetErrors.
func (m *Manager) RecordError() {
	n := m.consecutiveErrors.Add(1)
	if n >= m.limits.ErrorThreshold {
		m.activateKillSwitch("consecutive error threshold reached")
	}
}

func (m *Manager) ResetErrors() {
	m.consecutiveErrors.Store(0)
}

// RecordReject increments the reject counter and fires the kill switch at
// threshold.
func (m *Manager) RecordReject() {
	n := m.rejectCount.Add(1)
	if n >= m.limits.RejectThreshold {
		m.activateKillSwitch("reject threshold reached")
	}
}

// CheckDrawdown re-evaluates the loss/drawdown condition independent of
// order flow and fires the kill switch if breached. Called by the risk
// worker's periodic tick.
func (m *Manager) CheckDrawdown() {
	if !m.withinLossLimits() {
		m.activateKillSwitch("daily loss or drawdown limit breached")
	}
}

func (m *Manager) activateKillSwitch(reason string) {
	m.killOnce.Do(func() {
		m.killSwitch.Store(true)
		m.metrics.killSwitchEvents.Inc()
		m.logger.Error("kill switch activated", "reason", reason)
		if m.onKill != nil {
			m.onKill(reason)
		}
	})
}

// DeactivateKillSwitch is manual-only: no automatic recovery path exists.
// Resets the sync.Once so the switch can fire again later.
func (m *Manager) DeactivateKillSwitch() {
	m.killSwitch.Store(false)
	m.killOnce = sync.Once{}
	m.logger.Info("kill switch manually deactivated")
}

func (m *Manager) IsKillSwitchActive() bool { return m.killSwitch.Load() }

// SetSymbolDisabled toggles the symbol-disabled check independent of the
// kill switch — an operator pausing one symbol without a global halt.
func (m *Manager) SetSymbolDisabled(disabled bool) {
	m.symbolDisabled.Store(disabled)
}

// PositionSnapshot returns a copy of the current position for dashboard
// and persistence use.
func (m *Manager) PositionSnapshot() Position {
	m.posMu.Lock()
	defer m.posMu.Unlock()
	return m.position
}

// RestorePosition seeds the position from a persisted snapshot on startup.
func (m *Manager) RestorePosition(p Position) {
	m.posMu.Lock()
	defer m.posMu.Unlock()
	m.position = p
}

// Snapshot is a read-only view of the risk gate's state, for the
// dashboard/metrics endpoint.
type Snapshot struct {
	Position         Position
	KillSwitchActive bool
	SymbolDisabled   bool
	OpenOrders       int64
	ConsecutiveErrors int64
	RejectCount      int64
	Limits           Limits
}

// Snapshot returns the risk gate's current state for read-only reporting.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		Position:          m.PositionSnapshot(),
		KillSwitchActive:  m.killSwitch.Load(),
		SymbolDisabled:    m.symbolDisabled.Load(),
		OpenOrders:        m.openOrders.Load(),
		ConsecutiveErrors: m.consecutiveErrors.Load(),
		RejectCount:       m.rejectCount.Load(),
		Limits:            m.limits,
	}
}

func sameSign(a, b fixedpoint.Qty) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func minQty(a, b fixedpoint.Qty) fixedpoint.Qty {
	if a < b {
		return a
	}
	return b
}
