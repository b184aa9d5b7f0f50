package risk

import (
	"math/big"
	"testing"
)

func ratFloat(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}

func TestBorrowRateAtZeroUtilizationIsBase(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	rate := model.BorrowRate(new(big.Rat))
	if got := ratFloat(rate); got != 0.02 {
		t.Fatalf("expected base rate 0.02, got %v", got)
	}
}

func TestBorrowRateAtKinkIsBasePlusSlope1(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	kink := new(big.Rat).SetFloat64(0.8)
	rate := model.BorrowRate(kink)
	if got, want := ratFloat(rate), 0.02+0.15; got < want-1e-12 || got > want+1e-12 {
		t.Fatalf("expected %v at kink, got %v", want, got)
	}
}

func TestBorrowRateBeyondKinkAppliesSlope2(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	// Utilization 0.9 is halfway through the post-kink span.
	rate := model.BorrowRate(new(big.Rat).SetFloat64(0.9))
	want := 0.02 + 0.15 + 0.6*0.5
	if got := ratFloat(rate); got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("expected %v beyond kink, got %v", want, got)
	}
}

func TestBorrowRateBelowKinkNormalizesUtilization(t *testing.T) {
	model := NewInterestModel(0.0, 0.1, 0.0, 0.8)
	// Half the kink means half of slope1.
	rate := model.BorrowRate(new(big.Rat).SetFloat64(0.4))
	if got, want := ratFloat(rate), 0.05; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestUtilizationZeroSupply(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	if u := model.Utilization(big.NewInt(10), big.NewInt(0)); u.Sign() != 0 {
		t.Fatalf("expected zero utilization with no supply, got %v", u)
	}
	if u := model.Utilization(nil, big.NewInt(100)); u.Sign() != 0 {
		t.Fatalf("expected zero utilization with no borrows, got %v", u)
	}
}

func TestSupplyRateAppliesReserveFactor(t *testing.T) {
	model := NewInterestModel(1.0, 0, 0, 0.8)
	utilization := new(big.Rat).SetFloat64(0.5)
	rate := model.SupplyRate(utilization, 2000)
	// borrow 1.0 x utilization 0.5 x (1 - 0.2) = 0.4
	if got, want := ratFloat(rate), 0.4; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("expected supply rate %v, got %v", want, got)
	}
}
