package strategy

import "github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"

// quoteGate enforces quote_refresh_us and min_quote_life_us: a strategy
// that would like to replace its quotes more often than quote_refresh_us,
// or whose current quotes are younger than min_quote_life_us, is told to
// keep its existing quotes instead. Embedded by value in each Quoter
// variant — it carries no exported API of its own.
type quoteGate struct {
	lastComputeUs int64
	lastQuoteUs   int64
	hasCompute    bool
	hasQuote      bool
}

// allowCompute reports whether enough time has passed since the last
// compute_quotes invocation to run the strategy math again at all.
func (g *quoteGate) allowCompute(nowUs, refreshUs int64) bool {
	if !g.hasCompute {
		return true
	}
	return nowUs-g.lastComputeUs >= refreshUs
}

// allowReplace reports whether the resting quotes are old enough to be
// replaced.
func (g *quoteGate) allowReplace(nowUs, minLifeUs int64) bool {
	if !g.hasQuote {
		return true
	}
	return nowUs-g.lastQuoteUs >= minLifeUs
}

func (g *quoteGate) recordCompute(nowUs int64) {
	g.lastComputeUs = nowUs
	g.hasCompute = true
}

func (g *quoteGate) recordQuote(nowUs int64) {
	g.lastQuoteUs = nowUs
	g.hasQuote = true
}

func tsToUs(ts fixedpoint.Timestamp) int64 {
	return int64(ts) / 1000
}
