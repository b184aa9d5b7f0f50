package risk

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ParamStore is the registry of per-asset risk parameters. Parameter updates
// take effect immediately for subsequent health and accrual computations; past
// interest is never recomputed.
type ParamStore struct {
	mu     sync.RWMutex
	assets map[string]AssetParams
}

// NewParamStore constructs an empty parameter store.
func NewParamStore() *ParamStore {
	return &ParamStore{assets: make(map[string]AssetParams)}
}

// RegisterAsset introduces a new asset into the registry. Registration shares
// the validation rules of SetAssetParameters.
func (s *ParamStore) RegisterAsset(params AssetParams) error {
	symbol := strings.TrimSpace(params.Symbol)
	if symbol == "" {
		return fmt.Errorf("%w: empty asset symbol", ErrInvalidParameter)
	}
	if err := validateParams(params); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	params.Symbol = symbol
	s.assets[symbol] = params.Clone()
	return nil
}

// SetAssetParameters replaces the parameters of a known asset.
func (s *ParamStore) SetAssetParameters(asset string, params AssetParams) error {
	asset = strings.TrimSpace(asset)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset]; !ok {
		return fmt.Errorf("%w: unknown asset %q", ErrInvalidParameter, asset)
	}
	if err := validateParams(params); err != nil {
		return err
	}
	params.Symbol = asset
	s.assets[asset] = params.Clone()
	return nil
}

// GetAssetParameters returns the parameters for the asset.
func (s *ParamStore) GetAssetParameters(asset string) (AssetParams, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	params, ok := s.assets[strings.TrimSpace(asset)]
	if !ok {
		return AssetParams{}, fmt.Errorf("%w: %q", ErrAssetNotFound, asset)
	}
	return params.Clone(), nil
}

// Assets returns the registered asset symbols in stable order.
func (s *ParamStore) Assets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbols := make([]string, 0, len(s.assets))
	for symbol := range s.assets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func validateParams(params AssetParams) error {
	for name, bps := range map[string]uint64{
		"collateralFactor":     params.CollateralFactorBps,
		"liquidationThreshold": params.LiquidationThresholdBps,
		"liquidationIncentive": params.LiquidationIncentiveBps,
		"reserveFactor":        params.ReserveFactorBps,
	} {
		if bps > 10_000 {
			return fmt.Errorf("%w: %s %d bps exceeds 100%%", ErrInvalidParameter, name, bps)
		}
	}
	if params.IsCollateral && params.LiquidationThresholdBps < params.CollateralFactorBps {
		return fmt.Errorf("%w: liquidation threshold %d below collateral factor %d",
			ErrInvalidParameter, params.LiquidationThresholdBps, params.CollateralFactorBps)
	}
	if params.Curve.Kink < 0 || params.Curve.Kink > 1 {
		return fmt.Errorf("%w: kink %f outside [0,1]", ErrInvalidParameter, params.Curve.Kink)
	}
	if params.Curve.BaseRate < 0 || params.Curve.Slope1 < 0 || params.Curve.Slope2 < 0 {
		return fmt.Errorf("%w: negative rate parameter", ErrInvalidParameter)
	}
	return nil
}
