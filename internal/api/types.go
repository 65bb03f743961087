package api

import (
	"time"

	"github.com/0xtitan6/hft-marketmaker/internal/config"
)

// Snapshot is the read-only view of the engine's current state served at
// /api/snapshot: book, position, and risk state for the one traded symbol,
// plus a summary of the active configuration.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`

	Book     BookStatus       `json:"book"`
	Position PositionSnapshot `json:"position"`
	Risk     RiskSnapshot     `json:"risk"`
	Config   ConfigSummary    `json:"config"`
}

// BookStatus is the top-of-book view plus staleness/sequence bookkeeping.
type BookStatus struct {
	TwoSided       bool      `json:"two_sided"`
	BestBid        float64   `json:"best_bid"`
	BestAsk        float64   `json:"best_ask"`
	Mid            float64   `json:"mid"`
	SpreadBps      float64   `json:"spread_bps"`
	Sequence       uint64    `json:"sequence"`
	DroppedUpdates uint64    `json:"dropped_updates"`
	LastUpdated    time.Time `json:"last_updated"`
}

// PositionSnapshot is risk.Position flattened to float64 for JSON transport.
type PositionSnapshot struct {
	Qty           float64 `json:"qty"`
	AvgPrice      float64 `json:"avg_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	MarkPrice     float64 `json:"mark_price"`
}

// RiskSnapshot is risk.Snapshot flattened to float64 for JSON transport.
type RiskSnapshot struct {
	KillSwitchActive  bool    `json:"kill_switch_active"`
	SymbolDisabled    bool    `json:"symbol_disabled"`
	OpenOrders        int64   `json:"open_orders"`
	ConsecutiveErrors int64   `json:"consecutive_errors"`
	RejectCount       int64   `json:"reject_count"`
	MaxPositionQty    float64 `json:"max_position_qty"`
	MaxOrderQty       float64 `json:"max_order_qty"`
	MaxDailyLoss      float64 `json:"max_daily_loss"`
	MaxDrawdown       float64 `json:"max_drawdown"`
}

// ConfigSummary exposes the strategy/risk/timing knobs currently in
// effect, for operators comparing the running process against the file
// on disk.
type ConfigSummary struct {
	Variant          string  `json:"variant"`
	MinSpreadBps     float64 `json:"min_spread_bps"`
	MaxSpreadBps     float64 `json:"max_spread_bps"`
	TargetSpreadBps  float64 `json:"target_spread_bps"`
	InventorySkew    float64 `json:"inventory_skew"`
	DefaultOrderSize float64 `json:"default_order_size"`

	QuoteRefreshUs int64 `json:"quote_refresh_us"`
	MinQuoteLifeUs int64 `json:"min_quote_life_us"`

	PaperTrading bool `json:"paper_trading"`
}

// NewConfigSummary builds a ConfigSummary from the loaded config.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		Variant:          cfg.Strategy.Variant,
		MinSpreadBps:     cfg.Strategy.MinSpreadBps,
		MaxSpreadBps:     cfg.Strategy.MaxSpreadBps,
		TargetSpreadBps:  cfg.Strategy.TargetSpreadBps,
		InventorySkew:    cfg.Strategy.InventorySkew,
		DefaultOrderSize: cfg.Strategy.DefaultOrderSize,
		QuoteRefreshUs:   cfg.Timing.QuoteRefreshUs,
		MinQuoteLifeUs:   cfg.Timing.MinQuoteLifeUs,
		PaperTrading:     cfg.Trading.PaperTrading,
	}
}
