package store

import (
	"testing"

	"github.com/0xtitan6/hft-marketmaker/internal/risk"
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

func TestSaveAndLoadPosition(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pos := risk.Position{
		Qty:         fixedpoint.QtyFromFloat(10.5),
		AvgPrice:    fixedpoint.PriceFromFloat(0.55),
		RealizedPnL: fixedpoint.Notional(123 * fixedpoint.Scale / 100),
	}

	if err := s.SavePosition("BTC-USD", pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	loaded, err := s.LoadPosition("BTC-USD")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadPosition returned nil")
	}

	if loaded.Qty != pos.Qty {
		t.Errorf("Qty = %v, want %v", loaded.Qty.ToFloat(), pos.Qty.ToFloat())
	}
	if loaded.AvgPrice != pos.AvgPrice {
		t.Errorf("AvgPrice = %v, want %v", loaded.AvgPrice.ToFloat(), pos.AvgPrice.ToFloat())
	}
	if loaded.RealizedPnL != pos.RealizedPnL {
		t.Errorf("RealizedPnL = %v, want %v", loaded.RealizedPnL.ToFloat(), pos.RealizedPnL.ToFloat())
	}
}

func TestLoadPositionMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadPosition("nonexistent")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing position, got %+v", loaded)
	}
}

func TestSavePositionOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pos1 := risk.Position{Qty: fixedpoint.QtyFromFloat(10)}
	pos2 := risk.Position{Qty: fixedpoint.QtyFromFloat(20)}

	_ = s.SavePosition("BTC-USD", pos1)
	_ = s.SavePosition("BTC-USD", pos2)

	loaded, err := s.LoadPosition("BTC-USD")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded.Qty.ToFloat() != 20 {
		t.Errorf("Qty = %v, want 20 (latest save)", loaded.Qty.ToFloat())
	}
}
