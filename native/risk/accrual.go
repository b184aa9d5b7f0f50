package risk

import (
	"math/big"
)

// accrueMarket compounds interest into the market's borrow and supply indexes
// covering the time elapsed since the previous accrual. The update is lazy and
// idempotent: calling it twice at the same timestamp is a no-op, and it must
// run before any read or write of balances so every observation sees fully
// compounded interest.
//
// On overflow of the index representation the market is flagged halted and
// ErrAccrualOverflow is returned; indexes are left untouched rather than
// silently truncated.
func accrueMarket(market *Market, params AssetParams, model *InterestModel, now int64) error {
	if market == nil {
		return ErrNilState
	}
	market.ensureDefaults()

	if now <= market.LastAccrual {
		return nil
	}
	elapsed := uint64(now - market.LastAccrual)

	totalBorrowed := market.TotalBorrowed()
	if totalBorrowed.Sign() == 0 {
		market.LastAccrual = now
		return nil
	}
	totalSupplied := market.TotalSupplied()

	utilization := model.Utilization(totalBorrowed, totalSupplied)
	borrowRate := model.BorrowRate(utilization)
	if borrowRate.Sign() == 0 {
		market.LastAccrual = now
		return nil
	}
	supplyRate := model.SupplyRate(utilization, params.ReserveFactorBps)

	borrowIndex := rayMul(market.BorrowIndex, rateFactor(borrowRate, elapsed))
	supplyIndex := rayMul(market.SupplyIndex, rateFactor(supplyRate, elapsed))
	if borrowIndex.BitLen() > maxIndexBits || supplyIndex.BitLen() > maxIndexBits {
		market.Halted = true
		return ErrAccrualOverflow
	}

	// Monotonicity: the factors are >= 1 ray by construction, so the indexes
	// never decrease.
	market.BorrowIndex = borrowIndex
	market.SupplyIndex = supplyIndex

	if params.ReserveFactorBps > 0 {
		interest := accruedInterest(totalBorrowed, borrowRate, elapsed)
		if interest.Sign() > 0 {
			market.Reserves = new(big.Int).Add(market.Reserves, bpsShare(interest, params.ReserveFactorBps))
		}
	}

	market.LastAccrual = now
	return nil
}

// accruedInterest computes the underlying interest generated by the borrow
// side over the elapsed window.
func accruedInterest(totalBorrowed *big.Int, rate *big.Rat, elapsed uint64) *big.Int {
	if totalBorrowed == nil || totalBorrowed.Sign() == 0 || rate == nil || rate.Sign() == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	perWindow := new(big.Rat).Set(rate)
	perWindow.Quo(perWindow, new(big.Rat).SetUint64(secondsPerYear))
	perWindow.Mul(perWindow, new(big.Rat).SetUint64(elapsed))
	interest := new(big.Rat).Mul(perWindow, new(big.Rat).SetInt(totalBorrowed))
	return ratToInt(interest)
}
