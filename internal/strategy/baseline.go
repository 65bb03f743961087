package strategy

import "github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"

// Baseline quotes symmetrically around the book's mid price, widening the
// spread with volatility and skewing both sides with instantaneous
// inventory. It is the reference variant the other two build on.
type Baseline struct {
	params Params
	gate   quoteGate
}

func NewBaseline(p Params) *Baseline {
	return &Baseline{params: p}
}

func (b *Baseline) ComputeQuotes(book BookSnapshot, position fixedpoint.Qty, signal Signal, now fixedpoint.Timestamp) QuoteDecision {
	nowUs := tsToUs(now)
	if !book.TwoSided {
		return disabled("book is not two-sided")
	}
	if !b.gate.allowCompute(nowUs, b.params.QuoteRefreshUs) {
		return disabled("refresh gating")
	}
	b.gate.recordCompute(nowUs)
	if !b.gate.allowReplace(nowUs, b.params.MinQuoteLifeUs) {
		return disabled("existing quotes still within min_quote_life_us")
	}

	fairValue := book.Mid
	spreadBps := clampF(b.params.TargetSpreadBps+signal.VolatilityAdjustmentBps, b.params.MinSpreadBps, b.params.MaxSpreadBps)
	// half_spread = fair_value * spread_bps / 20_000
	halfSpread := fixedpoint.Price(int64(float64(fairValue) * spreadBps / 20_000))

	target := inventoryTargetFixed(b.params.InventoryTarget)
	invDelta := position - target
	maxPos := b.params.MaxPosition
	skew := 0.0
	if maxPos > 0 {
		skew = b.params.InventorySkew * invDelta.ToFloat() / maxPos.ToFloat()
		skew = clampF(skew, -1, 1)
	}
	skewShift := fixedpoint.Price(int64(float64(fairValue) * skew * spreadBps / 20_000))

	bidPrice := roundToTick(fairValue-halfSpread-skewShift, b.params.TickSize)
	askPrice := roundToTick(fairValue+halfSpread-skewShift, b.params.TickSize)

	bidSize, askSize, reason := sizeQuotes(b.params, position)
	if reason != "" {
		return disabled(reason)
	}

	b.gate.recordQuote(nowUs)
	return QuoteDecision{
		ShouldQuote: true,
		BidPrice:    bidPrice,
		AskPrice:    askPrice,
		BidSize:     bidSize,
		AskSize:     askSize,
	}
}

// sizeQuotes scales DefaultOrderSize down linearly as |position|/max_position
// approaches 1, clamping to [MinOrderSize, MaxOrderSize]. If scaling would
// drop below MinOrderSize, the side whose direction worsens inventory is
// disabled instead of quoted undersized.
func sizeQuotes(p Params, position fixedpoint.Qty) (bid, ask fixedpoint.Qty, reason string) {
	if p.MaxPosition == 0 {
		return p.DefaultOrderSize, p.DefaultOrderSize, ""
	}
	utilization := position.Abs().ToFloat() / p.MaxPosition.ToFloat()
	scale := clampF(1-utilization, 0, 1)
	sized := fixedpoint.QtyFromFloat(p.DefaultOrderSize.ToFloat() * scale)

	if sized < p.MinOrderSize {
		// Disable the side that would worsen inventory; keep the other at
		// the floor size so the book still gets one-sided liquidity.
		if position > 0 {
			return 0, p.MinOrderSize, ""
		}
		if position < 0 {
			return p.MinOrderSize, 0, ""
		}
		return p.MinOrderSize, p.MinOrderSize, ""
	}
	if sized > p.MaxOrderSize {
		sized = p.MaxOrderSize
	}
	return sized, sized, ""
}

func (b *Baseline) OnFill(qty fixedpoint.Qty) {}
func (b *Baseline) OnCancel()                 {}
