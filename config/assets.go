package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lendcore/native/risk"
)

// assetSpec mirrors risk.AssetParams for the YAML registry. Caps are decimal
// strings because the underlying amounts exceed what YAML integers hold.
type assetSpec struct {
	Symbol                  string             `yaml:"symbol"`
	Decimals                uint8              `yaml:"decimals"`
	IsCollateral            bool               `yaml:"isCollateral"`
	CollateralFactorBps     uint64             `yaml:"collateralFactorBps"`
	LiquidationThresholdBps uint64             `yaml:"liquidationThresholdBps"`
	LiquidationIncentiveBps uint64             `yaml:"liquidationIncentiveBps"`
	ReserveFactorBps        uint64             `yaml:"reserveFactorBps"`
	BorrowCap               string             `yaml:"borrowCap,omitempty"`
	SupplyCap               string             `yaml:"supplyCap,omitempty"`
	Curve                   risk.InterestCurve `yaml:"curve"`
}

type assetsFile struct {
	Assets []assetSpec `yaml:"assets"`
}

// LoadAssets reads the YAML asset registry. Full parameter validation happens
// on registration with the parameter store.
func LoadAssets(path string) ([]risk.AssetParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets file: %w", err)
	}
	var file assetsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse assets file: %w", err)
	}
	if len(file.Assets) == 0 {
		return nil, fmt.Errorf("assets file %s lists no assets", path)
	}

	out := make([]risk.AssetParams, 0, len(file.Assets))
	for _, spec := range file.Assets {
		params := risk.AssetParams{
			Symbol:                  spec.Symbol,
			Decimals:                spec.Decimals,
			IsCollateral:            spec.IsCollateral,
			CollateralFactorBps:     spec.CollateralFactorBps,
			LiquidationThresholdBps: spec.LiquidationThresholdBps,
			LiquidationIncentiveBps: spec.LiquidationIncentiveBps,
			ReserveFactorBps:        spec.ReserveFactorBps,
			Curve:                   spec.Curve,
		}
		if params.BorrowCap, err = parseCap(spec.Symbol, "borrowCap", spec.BorrowCap); err != nil {
			return nil, err
		}
		if params.SupplyCap, err = parseCap(spec.Symbol, "supplyCap", spec.SupplyCap); err != nil {
			return nil, err
		}
		out = append(out, params)
	}
	return out, nil
}

func parseCap(symbol, field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("asset %s: invalid %s %q", symbol, field, raw)
	}
	return value, nil
}
