package risk

import (
	"fmt"
	"math/big"
	"time"
)

// healthMode selects the fail-safe posture for stale prices. A stale price
// must never certify a risk-increasing action as safe, but it may still be
// used, conservatively, to flag a position as unhealthy.
type healthMode int

const (
	// modeCertify guards borrow/withdraw: stale quotes abort with ErrStalePrice.
	modeCertify healthMode = iota
	// modeFlag guards liquidation eligibility: stale quotes are tolerated.
	modeFlag
)

// marketLookup resolves the accrued market and parameters for an asset.
type marketLookup func(asset string) (*Market, AssetParams, error)

// computeHealth derives the solvency snapshot of a position. Collateral is
// valued at price times collateral factor; the liquidation value applies the
// liquidation threshold instead. Debt is valued raw.
func computeHealth(position *Position, lookup marketLookup, feed PriceFeed, now time.Time, staleTolerance time.Duration, mode healthMode) (*HealthSnapshot, error) {
	snapshot := &HealthSnapshot{
		CollateralValue:  big.NewInt(0),
		LiquidationValue: big.NewInt(0),
		DebtValue:        big.NewInt(0),
	}
	if position == nil {
		snapshot.HealthFactor = new(big.Int).Set(MaxHealthFactor)
		return snapshot, nil
	}
	snapshot.Account = position.Account

	for asset, ap := range position.Assets {
		if ap == nil || ap.zero() {
			continue
		}
		market, params, err := lookup(asset)
		if err != nil {
			return nil, err
		}

		quote, err := feed.GetPrice(asset)
		if err != nil {
			return nil, err
		}
		stale := quote.Stale
		if !stale && staleTolerance > 0 && now.Sub(quote.Timestamp) > staleTolerance {
			stale = true
		}
		if stale {
			if mode == modeCertify {
				return nil, fmt.Errorf("%w: %s quote from %s", ErrStalePrice, asset, quote.Timestamp.UTC().Format(time.RFC3339))
			}
			snapshot.UsedStalePrice = true
		}

		if params.IsCollateral && ap.CollateralScaled != nil && ap.CollateralScaled.Sign() > 0 {
			amount := amountFromScaled(ap.CollateralScaled, market.SupplyIndex)
			value := assetValue(amount, quote.Price, params.Decimals)
			snapshot.CollateralValue.Add(snapshot.CollateralValue, bpsShare(value, params.CollateralFactorBps))
			snapshot.LiquidationValue.Add(snapshot.LiquidationValue, bpsShare(value, params.LiquidationThresholdBps))
		}
		if ap.DebtScaled != nil && ap.DebtScaled.Sign() > 0 {
			amount := amountFromScaled(ap.DebtScaled, market.BorrowIndex)
			snapshot.DebtValue.Add(snapshot.DebtValue, assetValue(amount, quote.Price, params.Decimals))
		}
	}

	if snapshot.DebtValue.Sign() == 0 {
		snapshot.HealthFactor = new(big.Int).Set(MaxHealthFactor)
		return snapshot, nil
	}
	factor := new(big.Int).Mul(snapshot.CollateralValue, wad)
	factor.Quo(factor, snapshot.DebtValue)
	if factor.Cmp(MaxHealthFactor) > 0 {
		factor = new(big.Int).Set(MaxHealthFactor)
	}
	snapshot.HealthFactor = factor
	return snapshot, nil
}

// healthy reports whether the snapshot certifies a borrow or withdrawal: the
// collateral-factor adjusted value must cover the debt in full.
func (s *HealthSnapshot) healthy() bool {
	if s == nil {
		return false
	}
	if s.DebtValue == nil || s.DebtValue.Sign() == 0 {
		return true
	}
	return s.CollateralValue.Cmp(s.DebtValue) >= 0
}

// liquidatable reports whether the position crossed the liquidation threshold.
// The threshold sits at or above the collateral factor, so a position always
// stops certifying new risk before it becomes seizable.
func (s *HealthSnapshot) liquidatable() bool {
	if s == nil {
		return false
	}
	if s.DebtValue == nil || s.DebtValue.Sign() == 0 {
		return false
	}
	return s.LiquidationValue.Cmp(s.DebtValue) < 0
}

// assetValue converts an underlying amount into wad value given a wad price
// per whole unit.
func assetValue(amount, price *big.Int, decimals uint8) *big.Int {
	if amount == nil || amount.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(amount, price)
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return value.Quo(value, unit)
}
