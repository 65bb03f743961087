package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/0xtitan6/hft-marketmaker/internal/risk"
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// ToxicityMetrics are the adverse-selection indicators computed from the
// fills in the tracker's rolling window.
type ToxicityMetrics struct {
	DirectionalImbalance float64 // [0, 1]: share of fills in the dominant direction
	FillVelocity         float64 // fills per second
	ToxicityScore        float64 // [0, 1]: composite score
	IsToxic              bool
}

// FlowTracker watches recent fills for signs of adverse selection: a run of
// fills that lean heavily one direction, in a short burst, suggests a
// better-informed counterparty is picking off quotes just ahead of a move.
// When detected, GetSpreadWideningBps returns a positive adjustment the
// quoter folds into Signal.VolatilityAdjustmentBps; the widening decays
// back to zero over the cooldown period once the flow turns clean again.
type FlowTracker struct {
	mu sync.Mutex

	window            fixedpoint.Timestamp // how far back to look
	toxicityThreshold float64
	cooldown          fixedpoint.Timestamp
	maxWidenBps       float64

	fills         []flowFill
	lastToxicTime fixedpoint.Timestamp
	everToxic     bool
}

type flowFill struct {
	side risk.Side
	at   fixedpoint.Timestamp
}

// NewFlowTracker builds a tracker over the given window, widening the
// spread by up to maxWidenBps once the toxicity score clears threshold,
// decaying the widening linearly to zero over cooldown after the last
// toxic observation.
func NewFlowTracker(window fixedpoint.Timestamp, toxicityThreshold float64, cooldown fixedpoint.Timestamp, maxWidenBps float64) *FlowTracker {
	return &FlowTracker{
		window:            window,
		toxicityThreshold: toxicityThreshold,
		cooldown:          cooldown,
		maxWidenBps:       maxWidenBps,
		fills:             make([]flowFill, 0, 64),
	}
}

func tsSeconds(d fixedpoint.Timestamp) float64 {
	return time.Duration(d).Seconds()
}

// AddFill records a fill on the given side at time now.
func (ft *FlowTracker) AddFill(side risk.Side, now fixedpoint.Timestamp) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.fills = append(ft.fills, flowFill{side: side, at: now})
	ft.evictStaleLocked(now)
}

func (ft *FlowTracker) evictStaleLocked(now fixedpoint.Timestamp) {
	cutoff := now - ft.window
	i := 0
	for i < len(ft.fills) && ft.fills[i].at < cutoff {
		i++
	}
	if i > 0 {
		ft.fills = ft.fills[i:]
	}
}

// Toxicity computes the current window's metrics as of now.
func (ft *FlowTracker) Toxicity(now fixedpoint.Timestamp) ToxicityMetrics {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.evictStaleLocked(now)
	return ft.toxicityLocked()
}

func (ft *FlowTracker) toxicityLocked() ToxicityMetrics {
	n := len(ft.fills)
	if n == 0 {
		return ToxicityMetrics{}
	}

	var buys int
	for _, f := range ft.fills {
		if f.side == risk.Buy {
			buys++
		}
	}
	sells := n - buys
	dominant := math.Max(float64(buys), float64(sells))
	imbalance := dominant / float64(n)

	if n < 2 {
		return ToxicityMetrics{
			DirectionalImbalance: imbalance,
			ToxicityScore:        imbalance * 0.6,
			IsToxic:              imbalance*0.6 > ft.toxicityThreshold,
		}
	}

	span := tsSeconds(ft.fills[n-1].at - ft.fills[0].at)
	if span <= 0 {
		span = 1
	}
	velocity := float64(n) / span
	// Normalize: 3 fills/sec or more is as toxic as velocity gets.
	velocityFactor := math.Min(velocity/3.0, 1.0)

	score := 0.6*imbalance + 0.4*velocityFactor
	return ToxicityMetrics{
		DirectionalImbalance: imbalance,
		FillVelocity:         velocity,
		ToxicityScore:        score,
		IsToxic:              score > ft.toxicityThreshold,
	}
}

// GetSpreadWideningBps returns the additive spread widening (in bps) to
// apply given the flow observed as of now: zero under clean flow, rising
// toward maxWidenBps as toxicity increases, decaying linearly back to zero
// over cooldown once the flow clears.
func (ft *FlowTracker) GetSpreadWideningBps(now fixedpoint.Timestamp) float64 {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.evictStaleLocked(now)
	metrics := ft.toxicityLocked()

	if metrics.IsToxic {
		ft.lastToxicTime = now
		ft.everToxic = true
	}
	if !ft.everToxic {
		return 0
	}

	sinceToxic := now - ft.lastToxicTime
	if !metrics.IsToxic && sinceToxic >= ft.cooldown {
		return 0
	}

	if metrics.ToxicityScore <= ft.toxicityThreshold {
		// In cooldown, not currently toxic: decay back toward zero.
		progress := clampF(tsSeconds(sinceToxic)/tsSeconds(ft.cooldown), 0, 1)
		return ft.maxWidenBps * (1 - progress)
	}

	// Actively toxic: scale toward maxWidenBps as the score climbs from
	// threshold to 1.0.
	normalized := (metrics.ToxicityScore - ft.toxicityThreshold) / (1.0 - ft.toxicityThreshold)
	return ft.maxWidenBps * clampF(normalized*2.0, 0, 1)
}
