package api

import (
	"time"

	"github.com/0xtitan6/hft-marketmaker/internal/book"
	"github.com/0xtitan6/hft-marketmaker/internal/risk"
)

// EngineProvider is the subset of *engine.Engine the dashboard reads from.
// Kept as a narrow interface so this package never imports internal/engine
// directly, matching the teacher's provider-interface convention.
type EngineProvider interface {
	Book() *book.Book
	PositionSnapshot() risk.Position
	RiskSnapshot() risk.Snapshot
	Symbol() string
}

// BuildSnapshot aggregates book, position, and risk state into a Snapshot.
func BuildSnapshot(provider EngineProvider, cfg ConfigSummary) Snapshot {
	b := provider.Book()
	mid, twoSided := b.Mid()
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	spreadBps, _ := b.SpreadBps()

	return Snapshot{
		Timestamp: time.Now(),
		Symbol:    provider.Symbol(),
		Book: BookStatus{
			TwoSided:       twoSided,
			BestBid:        bid.Price.ToFloat(),
			BestAsk:        ask.Price.ToFloat(),
			Mid:            mid.ToFloat(),
			SpreadBps:      spreadBps,
			Sequence:       b.Sequence(),
			DroppedUpdates: b.DroppedUpdates(),
			LastUpdated:    lastUpdatedTime(b),
		},
		Position: convertPosition(provider.PositionSnapshot()),
		Risk:     convertRiskSnapshot(provider.RiskSnapshot()),
		Config:   cfg,
	}
}

func lastUpdatedTime(b *book.Book) time.Time {
	ns := int64(b.LastUpdate())
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func convertPosition(p risk.Position) PositionSnapshot {
	return PositionSnapshot{
		Qty:           p.Qty.ToFloat(),
		AvgPrice:      p.AvgPrice.ToFloat(),
		RealizedPnL:   p.RealizedPnL.ToFloat(),
		UnrealizedPnL: p.UnrealizedPnL.ToFloat(),
		MarkPrice:     p.MarkPrice.ToFloat(),
	}
}

func convertRiskSnapshot(s risk.Snapshot) RiskSnapshot {
	return RiskSnapshot{
		KillSwitchActive:  s.KillSwitchActive,
		SymbolDisabled:    s.SymbolDisabled,
		OpenOrders:        s.OpenOrders,
		ConsecutiveErrors: s.ConsecutiveErrors,
		RejectCount:       s.RejectCount,
		MaxPositionQty:    s.Limits.MaxPositionQty.ToFloat(),
		MaxOrderQty:       s.Limits.MaxOrderQty.ToFloat(),
		MaxDailyLoss:      s.Limits.MaxDailyLoss.ToFloat(),
		MaxDrawdown:       s.Limits.MaxDrawdown.ToFloat(),
	}
}
