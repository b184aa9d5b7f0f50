package risk

import "math/big"

// InterestModel encapsulates the kinked borrow-rate curve for one market.
// Rates are annual and converted to per-second terms at accrual time.
type InterestModel struct {
	// BaseRate is the minimum borrow rate applied when utilization is zero.
	BaseRate *big.Rat
	// Slope1 is the rate increase per unit of normalized utilization up to
	// the kink point.
	Slope1 *big.Rat
	// Slope2 governs the additional increase applied once utilization exceeds
	// the kink point.
	Slope2 *big.Rat
	// Kink is the utilization ratio where the slope changes to defend
	// liquidity.
	Kink *big.Rat
}

// NewInterestModel constructs an interest model from decimal inputs, e.g. a
// 2% base rate is 0.02 and an 80% kink utilization is 0.8.
func NewInterestModel(baseRate, slope1, slope2, kink float64) *InterestModel {
	model := &InterestModel{
		BaseRate: new(big.Rat),
		Slope1:   new(big.Rat),
		Slope2:   new(big.Rat),
		Kink:     new(big.Rat),
	}
	model.BaseRate.SetFloat64(baseRate)
	model.Slope1.SetFloat64(slope1)
	model.Slope2.SetFloat64(slope2)
	model.Kink.SetFloat64(kink)
	return model
}

// ModelFromCurve builds the interest model configured for an asset.
func ModelFromCurve(curve InterestCurve) *InterestModel {
	return NewInterestModel(curve.BaseRate, curve.Slope1, curve.Slope2, curve.Kink)
}

// Clone returns a deep copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	return &InterestModel{
		BaseRate: cloneRat(m.BaseRate),
		Slope1:   cloneRat(m.Slope1),
		Slope2:   cloneRat(m.Slope2),
		Kink:     cloneRat(m.Kink),
	}
}

// Utilization computes U = totalBorrowed / totalSupplied. When no liquidity
// exists the utilization is defined as zero.
func (m *InterestModel) Utilization(totalBorrowed, totalSupplied *big.Int) *big.Rat {
	if totalBorrowed == nil || totalBorrowed.Sign() == 0 {
		return new(big.Rat)
	}
	if totalSupplied == nil || totalSupplied.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(totalBorrowed, totalSupplied)
}

// BorrowRate derives the annual borrow rate for the given utilization.
//
// Below the kink the rate rises linearly from the base by slope1 scaled to the
// kink; past the kink slope2 applies to the normalized excess.
func (m *InterestModel) BorrowRate(utilization *big.Rat) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := cloneRat(m.BaseRate)
	if utilization == nil || utilization.Sign() == 0 {
		return rate
	}

	kink := cloneRat(m.Kink)
	slope1 := cloneRat(m.Slope1)
	slope2 := cloneRat(m.Slope2)
	if kink.Sign() == 0 || utilization.Cmp(kink) <= 0 {
		normalized := cloneRat(utilization)
		if kink.Sign() > 0 {
			normalized.Quo(normalized, kink)
		}
		return rate.Add(rate, new(big.Rat).Mul(slope1, normalized))
	}

	// Rate at the kink, then slope2 over the normalized excess.
	rate.Add(rate, slope1)
	excess := new(big.Rat).Sub(utilization, kink)
	if excess.Sign() < 0 {
		excess.SetInt64(0)
	}
	span := new(big.Rat).Sub(big.NewRat(1, 1), kink)
	if span.Sign() > 0 {
		excess.Quo(excess, span)
	}
	return rate.Add(rate, new(big.Rat).Mul(slope2, excess))
}

// SupplyRate derives the annual supply rate: borrowRate x utilization x
// (1 - reserveFactor). The reserve factor is expressed in basis points.
func (m *InterestModel) SupplyRate(utilization *big.Rat, reserveFactorBps uint64) *big.Rat {
	if m == nil || utilization == nil || utilization.Sign() == 0 {
		return new(big.Rat)
	}
	borrowRate := m.BorrowRate(utilization)
	if borrowRate.Sign() == 0 {
		return new(big.Rat)
	}
	reserve := new(big.Rat).SetFrac(new(big.Int).SetUint64(reserveFactorBps), basisPoints)
	oneMinus := new(big.Rat).Sub(big.NewRat(1, 1), reserve)
	if oneMinus.Sign() < 0 {
		oneMinus.SetInt64(0)
	}
	rate := new(big.Rat).Mul(borrowRate, utilization)
	return rate.Mul(rate, oneMinus)
}

// PerSecond converts an annual rate into a per-second rate.
func PerSecond(annual *big.Rat) *big.Rat {
	if annual == nil || annual.Sign() == 0 {
		return new(big.Rat)
	}
	out := new(big.Rat).Set(annual)
	return out.Quo(out, new(big.Rat).SetUint64(secondsPerYear))
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

// DefaultInterestCurve is a reasonable starting configuration with a modest
// base rate and a steep post-kink slope.
var DefaultInterestCurve = InterestCurve{BaseRate: 0.02, Slope1: 0.15, Slope2: 0.6, Kink: 0.8}
