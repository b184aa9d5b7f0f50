package risk

import (
	"errors"
	"testing"
)

func validAsset(symbol string) AssetParams {
	return AssetParams{
		Symbol:                  symbol,
		Decimals:                18,
		IsCollateral:            true,
		CollateralFactorBps:     7500,
		LiquidationThresholdBps: 8000,
		LiquidationIncentiveBps: 500,
		ReserveFactorBps:        1000,
		Curve:                   DefaultInterestCurve,
	}
}

func TestRegisterAndGetAsset(t *testing.T) {
	store := NewParamStore()
	if err := store.RegisterAsset(validAsset("ABC")); err != nil {
		t.Fatalf("register: %v", err)
	}
	params, err := store.GetAssetParameters("ABC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if params.CollateralFactorBps != 7500 {
		t.Fatalf("unexpected collateral factor %d", params.CollateralFactorBps)
	}
}

func TestGetUnknownAsset(t *testing.T) {
	store := NewParamStore()
	if _, err := store.GetAssetParameters("NOPE"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestSetParametersUnknownAsset(t *testing.T) {
	store := NewParamStore()
	if err := store.SetAssetParameters("NOPE", validAsset("NOPE")); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestRegisterRejectsEmptySymbol(t *testing.T) {
	store := NewParamStore()
	params := validAsset("  ")
	if err := store.RegisterAsset(params); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestValidationRejectsBpsOverHundredPercent(t *testing.T) {
	store := NewParamStore()
	cases := []func(*AssetParams){
		func(p *AssetParams) { p.CollateralFactorBps = 10_001 },
		func(p *AssetParams) { p.LiquidationThresholdBps = 12_000 },
		func(p *AssetParams) { p.LiquidationIncentiveBps = 10_001 },
		func(p *AssetParams) { p.ReserveFactorBps = 20_000 },
	}
	for i, mutate := range cases {
		params := validAsset("ABC")
		mutate(&params)
		if err := store.RegisterAsset(params); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("case %d: expected ErrInvalidParameter, got %v", i, err)
		}
	}
}

func TestValidationRejectsThresholdBelowCollateralFactor(t *testing.T) {
	store := NewParamStore()
	params := validAsset("ABC")
	params.LiquidationThresholdBps = 7000
	if err := store.RegisterAsset(params); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	// Non-collateral assets skip the ordering rule.
	params.IsCollateral = false
	if err := store.RegisterAsset(params); err != nil {
		t.Fatalf("non-collateral register: %v", err)
	}
}

func TestValidationRejectsBadCurve(t *testing.T) {
	store := NewParamStore()
	params := validAsset("ABC")
	params.Curve.Kink = 1.5
	if err := store.RegisterAsset(params); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected kink rejection, got %v", err)
	}
	params = validAsset("ABC")
	params.Curve.Slope2 = -0.1
	if err := store.RegisterAsset(params); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected negative slope rejection, got %v", err)
	}
}

func TestUpdateTakesEffectImmediately(t *testing.T) {
	store := NewParamStore()
	if err := store.RegisterAsset(validAsset("ABC")); err != nil {
		t.Fatalf("register: %v", err)
	}
	updated := validAsset("ABC")
	updated.CollateralFactorBps = 5000
	if err := store.SetAssetParameters("ABC", updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	params, err := store.GetAssetParameters("ABC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if params.CollateralFactorBps != 5000 {
		t.Fatalf("update not visible: %d", params.CollateralFactorBps)
	}
}

func TestAssetsSorted(t *testing.T) {
	store := NewParamStore()
	for _, symbol := range []string{"ZZZ", "AAA", "MMM"} {
		if err := store.RegisterAsset(validAsset(symbol)); err != nil {
			t.Fatalf("register %s: %v", symbol, err)
		}
	}
	got := store.Assets()
	want := []string{"AAA", "MMM", "ZZZ"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v", got)
		}
	}
}
