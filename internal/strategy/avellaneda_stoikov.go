package strategy

import (
	"math"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// ASParams holds the Avellaneda-Stoikov model parameters. T and start_time
// are session-relative seconds: T is the planning horizon in seconds
// (typically a few hundred to a few thousand), start_time is the engine's
// monotonic start instant.
type ASParams struct {
	Gamma     float64 // risk aversion
	Sigma     float64 // volatility
	Kappa     float64 // order arrival intensity
	Horizon   float64 // T, in seconds
	StartTime fixedpoint.Timestamp
}

// AvellanedaStoikov quotes around a reservation price that shifts away
// from mid with inventory, and a spread whose inventory-risk term narrows
// as the session's horizon is consumed.
type AvellanedaStoikov struct {
	params   Params
	as       ASParams
	gate     quoteGate
	tickSize fixedpoint.Price
}

func NewAvellanedaStoikov(p Params, as ASParams) *AvellanedaStoikov {
	return &AvellanedaStoikov{params: p, as: as, tickSize: p.TickSize}
}

func (as *AvellanedaStoikov) ComputeQuotes(book BookSnapshot, position fixedpoint.Qty, signal Signal, now fixedpoint.Timestamp) QuoteDecision {
	nowUs := tsToUs(now)
	if !book.TwoSided {
		return disabled("book is not two-sided")
	}
	if !as.gate.allowCompute(nowUs, as.params.QuoteRefreshUs) {
		return disabled("refresh gating")
	}
	as.gate.recordCompute(nowUs)
	if !as.gate.allowReplace(nowUs, as.params.MinQuoteLifeUs) {
		return disabled("existing quotes still within min_quote_life_us")
	}

	elapsedSec := now.Sub(as.as.StartTime).Seconds()
	tRemaining := as.as.Horizon - elapsedSec
	if tRemaining < 0 {
		tRemaining = 0
	}

	mid := book.Mid.ToFloat()
	q := position.ToFloat()
	gamma, sigma2, kappa := as.as.Gamma, as.as.Sigma*as.as.Sigma, as.as.Kappa

	reservation := mid - q*gamma*sigma2*tRemaining
	optimalSpread := gamma*sigma2*tRemaining + (2/gamma)*math.Log(1+gamma/kappa)
	// Toxic-flow widening arrives in bps of mid; fold it into the spread in
	// the same absolute price units as the AS formula above.
	optimalSpread += mid * signal.VolatilityAdjustmentBps / 10_000

	bid := reservation - optimalSpread/2
	ask := reservation + optimalSpread/2

	bidPrice := roundToTick(fixedpoint.PriceFromFloat(bid), as.tickSize)
	askPrice := roundToTick(fixedpoint.PriceFromFloat(ask), as.tickSize)

	bidPrice, askPrice = clampToSpreadBand(bidPrice, askPrice, book.Mid, as.params.MinSpreadBps, as.params.MaxSpreadBps)

	bidSize, askSize, _ := sizeQuotes(as.params, position)

	as.gate.recordQuote(nowUs)
	return QuoteDecision{
		ShouldQuote: true,
		BidPrice:    bidPrice,
		AskPrice:    askPrice,
		BidSize:     bidSize,
		AskSize:     askSize,
	}
}

// clampToSpreadBand widens or narrows a candidate bid/ask pair so the
// resulting spread (in bps of mid) stays within [minBps, maxBps], keeping
// the pair centered on its own midpoint rather than re-centering on the
// book mid.
func clampToSpreadBand(bid, ask, mid fixedpoint.Price, minBps, maxBps float64) (fixedpoint.Price, fixedpoint.Price) {
	if mid == 0 {
		return bid, ask
	}
	spreadBps := (ask - bid).ToFloat() / mid.ToFloat() * 10_000
	clamped := clampF(spreadBps, minBps, maxBps)
	if clamped == spreadBps {
		return bid, ask
	}
	center := (bid.ToFloat() + ask.ToFloat()) / 2
	halfSpread := mid.ToFloat() * clamped / 20_000
	return fixedpoint.PriceFromFloat(center - halfSpread), fixedpoint.PriceFromFloat(center + halfSpread)
}

func (as *AvellanedaStoikov) OnFill(qty fixedpoint.Qty) {}
func (as *AvellanedaStoikov) OnCancel()                 {}
