package strategy

import "github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"

const inventoryEWMAAlpha = 0.1

// InventoryAdjusted behaves like Baseline but skews off an
// exponentially-weighted moving average of position (alpha=0.1) instead
// of the instantaneous position, damping oscillation from single fills.
type InventoryAdjusted struct {
	params Params
	gate   quoteGate

	emaPosition float64
	hasEMA      bool
}

func NewInventoryAdjusted(p Params) *InventoryAdjusted {
	return &InventoryAdjusted{params: p}
}

func (ia *InventoryAdjusted) ComputeQuotes(book BookSnapshot, position fixedpoint.Qty, signal Signal, now fixedpoint.Timestamp) QuoteDecision {
	nowUs := tsToUs(now)
	if !book.TwoSided {
		return disabled("book is not two-sided")
	}
	if !ia.gate.allowCompute(nowUs, ia.params.QuoteRefreshUs) {
		return disabled("refresh gating")
	}
	ia.gate.recordCompute(nowUs)
	if !ia.gate.allowReplace(nowUs, ia.params.MinQuoteLifeUs) {
		return disabled("existing quotes still within min_quote_life_us")
	}

	ia.updateEMA(position)
	smoothedPosition := fixedpoint.QtyFromFloat(ia.emaPosition)

	fairValue := book.Mid
	spreadBps := clampF(ia.params.TargetSpreadBps+signal.VolatilityAdjustmentBps, ia.params.MinSpreadBps, ia.params.MaxSpreadBps)
	halfSpread := fixedpoint.Price(int64(float64(fairValue) * spreadBps / 20_000))

	target := inventoryTargetFixed(ia.params.InventoryTarget)
	invDelta := smoothedPosition - target
	skew := 0.0
	if ia.params.MaxPosition > 0 {
		skew = ia.params.InventorySkew * invDelta.ToFloat() / ia.params.MaxPosition.ToFloat()
		skew = clampF(skew, -1, 1)
	}
	skewShift := fixedpoint.Price(int64(float64(fairValue) * skew * spreadBps / 20_000))

	bidPrice := roundToTick(fairValue-halfSpread-skewShift, ia.params.TickSize)
	askPrice := roundToTick(fairValue+halfSpread-skewShift, ia.params.TickSize)

	bidSize, askSize, _ := sizeQuotes(ia.params, position)

	ia.gate.recordQuote(nowUs)
	return QuoteDecision{
		ShouldQuote: true,
		BidPrice:    bidPrice,
		AskPrice:    askPrice,
		BidSize:     bidSize,
		AskSize:     askSize,
	}
}

func (ia *InventoryAdjusted) updateEMA(position fixedpoint.Qty) {
	v := position.ToFloat()
	if !ia.hasEMA {
		ia.emaPosition = v
		ia.hasEMA = true
		return
	}
	ia.emaPosition = inventoryEWMAAlpha*v + (1-inventoryEWMAAlpha)*ia.emaPosition
}

func (ia *InventoryAdjusted) OnFill(qty fixedpoint.Qty) {}
func (ia *InventoryAdjusted) OnCancel()                 {}
