package risk

import (
	"math/big"
	"testing"
)

func TestMemoryStateReturnsNilForMissingEntries(t *testing.T) {
	s := NewMemoryState()
	market, err := s.GetMarket("XTK")
	if err != nil || market != nil {
		t.Fatalf("expected nil market, got %v / %v", market, err)
	}
	position, err := s.GetPosition("alice")
	if err != nil || position != nil {
		t.Fatalf("expected nil position, got %v / %v", position, err)
	}
	debt, err := s.GetBadDebt("alice", "XTK")
	if err != nil || debt.Sign() != 0 {
		t.Fatalf("expected zero bad debt, got %v / %v", debt, err)
	}
}

func TestMemoryStateApplyIsVisibleAfterCommit(t *testing.T) {
	s := NewMemoryState()
	cs := NewChangeset()
	cs.PutMarket(NewMarket("XTK", 1000))
	position := NewPosition("alice")
	position.asset("XTK").CollateralScaled = big.NewInt(42)
	cs.PutPosition(position)
	cs.PutBadDebt(&BadDebtRecord{Account: "alice", Asset: "XTK", Amount: big.NewInt(7)})
	if err := s.Apply(cs); err != nil {
		t.Fatalf("apply: %v", err)
	}

	market, err := s.GetMarket("XTK")
	if err != nil || market == nil {
		t.Fatalf("market not stored: %v / %v", market, err)
	}
	stored, err := s.GetPosition("alice")
	if err != nil || stored == nil {
		t.Fatalf("position not stored: %v / %v", stored, err)
	}
	if stored.asset("XTK").CollateralScaled.Int64() != 42 {
		t.Fatalf("stored collateral %s", stored.asset("XTK").CollateralScaled)
	}
	debt, err := s.GetBadDebt("alice", "XTK")
	if err != nil || debt.Int64() != 7 {
		t.Fatalf("stored bad debt %v / %v", debt, err)
	}
}

func TestMemoryStateClonesOnRead(t *testing.T) {
	s := NewMemoryState()
	cs := NewChangeset()
	position := NewPosition("alice")
	position.asset("XTK").CollateralScaled = big.NewInt(10)
	cs.PutPosition(position)
	if err := s.Apply(cs); err != nil {
		t.Fatalf("apply: %v", err)
	}

	read, _ := s.GetPosition("alice")
	read.asset("XTK").CollateralScaled.SetInt64(999)

	fresh, _ := s.GetPosition("alice")
	if fresh.asset("XTK").CollateralScaled.Int64() != 10 {
		t.Fatalf("read mutation leaked into state: %s", fresh.asset("XTK").CollateralScaled)
	}
}

func TestMemoryStateZeroBadDebtDeletesKey(t *testing.T) {
	s := NewMemoryState()
	cs := NewChangeset()
	cs.PutBadDebt(&BadDebtRecord{Account: "alice", Asset: "XTK", Amount: big.NewInt(7)})
	if err := s.Apply(cs); err != nil {
		t.Fatalf("apply: %v", err)
	}
	clear := NewChangeset()
	clear.PutBadDebt(&BadDebtRecord{Account: "alice", Asset: "XTK", Amount: big.NewInt(0)})
	if err := s.Apply(clear); err != nil {
		t.Fatalf("clear: %v", err)
	}
	debt, err := s.GetBadDebt("alice", "XTK")
	if err != nil || debt.Sign() != 0 {
		t.Fatalf("bad debt not cleared: %v / %v", debt, err)
	}
}

func TestChangesetSkipsNilEntries(t *testing.T) {
	cs := NewChangeset()
	cs.PutMarket(nil)
	cs.PutPosition(nil)
	cs.PutBadDebt(nil)
	if len(cs.Markets)+len(cs.Positions)+len(cs.BadDebt) != 0 {
		t.Fatalf("nil entries staged")
	}
}
