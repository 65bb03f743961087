package strategy

import (
	"testing"
	"time"

	"github.com/0xtitan6/hft-marketmaker/internal/risk"
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

func sec(n int) fixedpoint.Timestamp { return fixedpoint.Timestamp(time.Duration(n) * time.Second) }
func ms(n int) fixedpoint.Timestamp  { return fixedpoint.Timestamp(time.Duration(n) * time.Millisecond) }

func TestFlowTrackerNoFillsIsClean(t *testing.T) {
	ft := NewFlowTracker(sec(60), 0.6, sec(120), 3.0)

	metrics := ft.Toxicity(sec(0))
	if metrics.ToxicityScore != 0 || metrics.IsToxic {
		t.Errorf("expected zero score and not toxic with no fills, got %+v", metrics)
	}
	if widen := ft.GetSpreadWideningBps(sec(0)); widen != 0 {
		t.Errorf("expected 0 widening with no fills, got %f", widen)
	}
}

func TestFlowTrackerDirectionalImbalance(t *testing.T) {
	ft := NewFlowTracker(sec(60), 0.6, sec(120), 3.0)

	for i := 0; i < 5; i++ {
		ft.AddFill(risk.Buy, sec(i))
	}

	metrics := ft.Toxicity(sec(5))
	if metrics.DirectionalImbalance != 1.0 {
		t.Errorf("DirectionalImbalance = %f, want 1.0", metrics.DirectionalImbalance)
	}
	if !metrics.IsToxic {
		t.Error("expected IsToxic with 100% one-sided flow")
	}
}

func TestFlowTrackerBalancedFillsLowerImbalance(t *testing.T) {
	ft := NewFlowTracker(sec(60), 0.6, sec(120), 3.0)

	for i := 0; i < 10; i++ {
		side := risk.Buy
		if i%2 == 1 {
			side = risk.Sell
		}
		ft.AddFill(side, sec(i))
	}

	metrics := ft.Toxicity(sec(10))
	if metrics.DirectionalImbalance != 0.5 {
		t.Errorf("DirectionalImbalance = %f, want 0.5", metrics.DirectionalImbalance)
	}
}

func TestFlowTrackerVelocityContributesToScore(t *testing.T) {
	ft := NewFlowTracker(sec(60), 0.6, sec(120), 3.0)

	for i := 0; i < 10; i++ {
		ft.AddFill(risk.Buy, ms(i*500))
	}

	metrics := ft.Toxicity(ms(4500))
	if metrics.FillVelocity <= 0 {
		t.Errorf("expected positive fill velocity, got %f", metrics.FillVelocity)
	}
	if !metrics.IsToxic {
		t.Errorf("expected high toxicity with rapid one-sided fills, got %+v", metrics)
	}
}

func TestFlowTrackerSpreadWideningBounded(t *testing.T) {
	ft := NewFlowTracker(sec(60), 0.6, sec(120), 3.0)

	if w := ft.GetSpreadWideningBps(sec(0)); w != 0 {
		t.Errorf("expected 0 widening before any fills, got %f", w)
	}

	for i := 0; i < 5; i++ {
		ft.AddFill(risk.Sell, sec(i))
	}

	w := ft.GetSpreadWideningBps(sec(5))
	if w <= 0 {
		t.Errorf("expected positive widening after toxic fills, got %f", w)
	}
	if w > 3.0 {
		t.Errorf("expected widening capped at maxWidenBps 3.0, got %f", w)
	}
}

func TestFlowTrackerWideningDecaysThenClearsAfterCooldown(t *testing.T) {
	ft := NewFlowTracker(sec(1), 0.6, sec(2), 3.0)

	for i := 0; i < 5; i++ {
		ft.AddFill(risk.Buy, ms(i*100))
	}

	if !ft.Toxicity(ms(400)).IsToxic {
		t.Fatal("expected toxic flow immediately after the burst")
	}
	w1 := ft.GetSpreadWideningBps(ms(400))
	if w1 <= 0 {
		t.Fatalf("expected widening during toxicity, got %f", w1)
	}

	// Window has expired (fills now stale) but cooldown has not: some
	// widening should remain, decaying toward zero.
	w2 := ft.GetSpreadWideningBps(ms(1900))
	if w2 <= 0 || w2 >= w1 {
		t.Errorf("expected decayed widening in (0, %f), got %f", w1, w2)
	}

	// Cooldown has fully elapsed: widening returns to zero.
	w3 := ft.GetSpreadWideningBps(sec(3))
	if w3 != 0 {
		t.Errorf("expected 0 widening after cooldown elapses, got %f", w3)
	}
}

func TestFlowTrackerWindowEvictsStaleFills(t *testing.T) {
	ft := NewFlowTracker(sec(2), 0.6, sec(5), 3.0)

	ft.AddFill(risk.Buy, sec(0))
	ft.AddFill(risk.Buy, ms(100))
	ft.AddFill(risk.Buy, ms(200))

	// Past the 2s window: the first three fills should be evicted.
	metrics := ft.Toxicity(sec(10))
	if metrics.DirectionalImbalance != 0 {
		t.Errorf("expected stale fills evicted, got metrics %+v", metrics)
	}

	ft.AddFill(risk.Sell, sec(10))
	metrics = ft.Toxicity(sec(10))
	if metrics.DirectionalImbalance != 1.0 {
		t.Errorf("expected only the fresh fill counted, got %+v", metrics)
	}
}

func TestFlowTrackerHighThresholdStaysClean(t *testing.T) {
	ft := NewFlowTracker(sec(60), 0.99, sec(120), 3.0)

	for i := 0; i < 4; i++ {
		ft.AddFill(risk.Buy, sec(i*2))
	}
	ft.AddFill(risk.Sell, sec(10))

	metrics := ft.Toxicity(sec(10))
	if metrics.DirectionalImbalance != 0.8 {
		t.Errorf("DirectionalImbalance = %f, want 0.8", metrics.DirectionalImbalance)
	}
	if metrics.IsToxic {
		t.Errorf("expected not toxic under a 0.99 threshold, got score %f", metrics.ToxicityScore)
	}
	if w := ft.GetSpreadWideningBps(sec(10)); w != 0 {
		t.Errorf("expected 0 widening when not toxic, got %f", w)
	}
}
