package store

import (
	"testing"
	"time"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

func TestSaveAndLoadRiskParams(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	params := types.DefaultRiskParams()
	params.KellyFraction = 0.30
	params.MinEdgePct = 1.8

	if err := s.SaveRiskParams(params); err != nil {
		t.Fatalf("SaveRiskParams: %v", err)
	}

	loaded, err := s.LoadRiskParams()
	if err != nil {
		t.Fatalf("LoadRiskParams: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadRiskParams returned nil")
	}
	if loaded.KellyFraction != 0.30 {
		t.Errorf("KellyFraction = %v, want 0.30", loaded.KellyFraction)
	}
	if loaded.MinEdgePct != 1.8 {
		t.Errorf("MinEdgePct = %v, want 1.8", loaded.MinEdgePct)
	}
}

func TestLoadRiskParamsFreshStart(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	loaded, err := s.LoadRiskParams()
	if err != nil {
		t.Fatalf("LoadRiskParams: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil params on fresh start, got %+v", loaded)
	}
}

func TestAuditLogAppendAndRead(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	outcomes := []types.TradeOutcome{
		{Ticker: "A", Strategy: types.StrategyArbitrage, Side: types.SideYes, Edge: 3, RealizedPnL: 120, LatencyMS: 40, SlippagePct: 0.5, Timestamp: time.Unix(1_700_000_000, 0).UTC()},
		{Ticker: "B", Strategy: types.StrategyValue, Side: types.SideNo, Edge: 2, RealizedPnL: -60, LatencyMS: 55, SlippagePct: -0.2, Timestamp: time.Unix(1_700_000_100, 0).UTC()},
	}
	for _, o := range outcomes {
		if err := s.AppendOutcome(o); err != nil {
			t.Fatalf("AppendOutcome: %v", err)
		}
	}

	got, err := s.ReadOutcomes()
	if err != nil {
		t.Fatalf("ReadOutcomes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(got))
	}
	if got[0].Ticker != "A" || got[1].Ticker != "B" {
		t.Errorf("order not preserved: %v, %v", got[0].Ticker, got[1].Ticker)
	}
	if got[1].RealizedPnL != -60 {
		t.Errorf("RealizedPnL = %d, want -60", got[1].RealizedPnL)
	}
}

func TestReadOutcomesFreshStart(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.ReadOutcomes()
	if err != nil {
		t.Fatalf("ReadOutcomes: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on fresh start, got %v", got)
	}
}
