package risk

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"lendcore/native/common"
)

// LiquidationResult summarizes a completed liquidation call.
type LiquidationResult struct {
	// RepaidAmount is the debt actually cleared, after the close-factor cap.
	RepaidAmount *big.Int
	// SeizedAmount is the collateral transferred to the liquidator.
	SeizedAmount *big.Int
	// BadDebtIncurred is the uncovered debt socialized to the protocol. Zero
	// when the collateral fully covered repay plus incentive.
	BadDebtIncurred *big.Int
	// Event is the emitted audit record.
	Event LiquidationEvent
}

// Liquidate executes a single atomic seizure against an undercollateralized
// account. Every precondition failure aborts with no state change; retries are
// the liquidator's concern, first call in the serialized order wins.
func (e *Engine) Liquidate(liquidator, account, repayAsset string, repayAmount *big.Int, seizeAsset string) (*LiquidationResult, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := common.Guard(e.gate, common.ActionLiquidate); err != nil {
		return nil, err
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	repayParams, err := e.params.GetAssetParameters(repayAsset)
	if err != nil {
		return nil, err
	}
	seizeParams, err := e.params.GetAssetParameters(seizeAsset)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	op := e.newOp(now)

	repayMarket, err := op.accruedMarket(repayAsset)
	if err != nil {
		return nil, err
	}
	seizeMarket, err := op.accruedMarket(seizeAsset)
	if err != nil {
		return nil, err
	}

	position, err := op.position(account)
	if err != nil {
		return nil, err
	}

	// Eligibility re-check on the accrued view. Stale quotes may still flag
	// the position as unhealthy; they never unblock a liquidation of a
	// healthy one.
	snapshot, err := computeHealth(position, op.lookup, e.feed, now, e.cfg.StaleTolerance, modeFlag)
	if err != nil {
		return nil, err
	}
	if !snapshot.liquidatable() {
		return nil, ErrNotLiquidatable
	}

	debtPos := position.asset(repayAsset)
	debt := amountFromScaled(debtPos.DebtScaled, repayMarket.BorrowIndex)
	if debt.Sign() == 0 {
		return nil, ErrNoDebtToRepay
	}

	// Close-factor cap: partial liquidation is the default policy.
	repay := new(big.Int).Set(repayAmount)
	if maxRepay := bpsShare(debt, e.cfg.CloseFactorBps); repay.Cmp(maxRepay) > 0 {
		repay = maxRepay
	}
	if repay.Sign() == 0 {
		return nil, ErrInvalidAmount
	}

	collateralPos := position.asset(seizeAsset)
	available := amountFromScaled(collateralPos.CollateralScaled, seizeMarket.SupplyIndex)
	if available.Sign() == 0 || !seizeParams.IsCollateral {
		return nil, fmt.Errorf("%w: account holds no %s collateral", ErrSeizeAmountExceedsCollateral, seizeAsset)
	}

	repayQuote, err := e.feed.GetPrice(repayAsset)
	if err != nil {
		return nil, err
	}
	seizeQuote, err := e.feed.GetPrice(seizeAsset)
	if err != nil {
		return nil, err
	}

	incentiveBps := seizeParams.LiquidationIncentiveBps
	seize := seizeAmountFor(repay, repayQuote.Price, repayParams.Decimals, seizeQuote.Price, seizeParams.Decimals, incentiveBps)

	badDebt := big.NewInt(0)
	if seize.Cmp(available) > 0 {
		// Collateral cannot cover repay plus incentive. The liquidator takes
		// everything available, the debt still shrinks by the full repay, and
		// the uncovered remainder is socialized as protocol bad debt.
		covered := coveredRepayFor(available, seizeQuote.Price, seizeParams.Decimals, repayQuote.Price, repayParams.Decimals, incentiveBps)
		if covered.Cmp(repay) < 0 {
			badDebt = new(big.Int).Sub(repay, covered)
		}
		seize = new(big.Int).Set(available)
	}

	if err := e.transfers.TransferIn(liquidator, repayAsset, repay); err != nil {
		return nil, fmt.Errorf("transfer in: %w", err)
	}
	if err := e.transfers.TransferOut(liquidator, seizeAsset, seize); err != nil {
		return nil, fmt.Errorf("transfer out: %w", err)
	}

	scaledRepay := scaledFromAmount(repay, repayMarket.BorrowIndex)
	if scaledRepay.Cmp(debtPos.DebtScaled) > 0 {
		scaledRepay = new(big.Int).Set(debtPos.DebtScaled)
	}
	debtPos.DebtScaled = new(big.Int).Sub(debtPos.DebtScaled, scaledRepay)
	repayMarket.TotalScaledBorrow = new(big.Int).Sub(repayMarket.TotalScaledBorrow, scaledRepay)

	scaledSeize := scaledFromAmount(seize, seizeMarket.SupplyIndex)
	if scaledSeize.Cmp(collateralPos.CollateralScaled) > 0 {
		scaledSeize = new(big.Int).Set(collateralPos.CollateralScaled)
	}
	collateralPos.CollateralScaled = new(big.Int).Sub(collateralPos.CollateralScaled, scaledSeize)
	seizeMarket.TotalScaledSupply = new(big.Int).Sub(seizeMarket.TotalScaledSupply, scaledSeize)

	op.cs.PutPosition(position)
	if badDebt.Sign() > 0 {
		existing, err := e.state.GetBadDebt(account, repayAsset)
		if err != nil {
			return nil, err
		}
		op.cs.PutBadDebt(&BadDebtRecord{
			Account: account,
			Asset:   repayAsset,
			Amount:  new(big.Int).Add(existing, badDebt),
		})
	}

	if err := e.state.Apply(op.cs); err != nil {
		return nil, err
	}

	event := LiquidationEvent{
		ID:           uuid.NewString(),
		Account:      account,
		Liquidator:   liquidator,
		RepaidAsset:  repayAsset,
		RepaidAmount: new(big.Int).Set(repay),
		SeizedAsset:  seizeAsset,
		SeizedAmount: new(big.Int).Set(seize),
		IncentiveBps: incentiveBps,
		BadDebt:      new(big.Int).Set(badDebt),
		Timestamp:    now,
	}
	e.emitLiquidation(event)

	e.log.Info("liquidation executed",
		"account", account,
		"liquidator", liquidator,
		"repay_asset", repayAsset,
		"repaid", repay.String(),
		"seize_asset", seizeAsset,
		"seized", seize.String(),
		"bad_debt", badDebt.String(),
	)

	return &LiquidationResult{
		RepaidAmount:    repay,
		SeizedAmount:    seize,
		BadDebtIncurred: badDebt,
		Event:           event,
	}, nil
}

func (e *Engine) emitLiquidation(event LiquidationEvent) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.RecordLiquidation(event); err != nil {
		e.log.Error("record liquidation event", "id", event.ID, "err", err)
	}
	if event.BadDebt != nil && event.BadDebt.Sign() > 0 {
		record := BadDebtRecord{Account: event.Account, Asset: event.RepaidAsset, Amount: event.BadDebt}
		if err := e.auditor.RecordBadDebt(record); err != nil {
			e.log.Error("record bad debt", "account", event.Account, "err", err)
		}
	}
}

// seizeAmountFor converts a repay amount into seize-asset units including the
// liquidation incentive: repay x priceR / priceS x (1 + incentive).
func seizeAmountFor(repay, repayPrice *big.Int, repayDecimals uint8, seizePrice *big.Int, seizeDecimals uint8, incentiveBps uint64) *big.Int {
	if repay == nil || repay.Sign() <= 0 || repayPrice == nil || repayPrice.Sign() <= 0 || seizePrice == nil || seizePrice.Sign() <= 0 {
		return big.NewInt(0)
	}
	repayValue := assetValue(repay, repayPrice, repayDecimals)
	target := new(big.Int).Mul(repayValue, new(big.Int).SetUint64(10_000+incentiveBps))
	target.Quo(target, basisPoints)
	return amountForValue(target, seizePrice, seizeDecimals)
}

// coveredRepayFor inverts seizeAmountFor: the repay amount a given collateral
// amount covers once the incentive is peeled off.
func coveredRepayFor(collateral, seizePrice *big.Int, seizeDecimals uint8, repayPrice *big.Int, repayDecimals uint8, incentiveBps uint64) *big.Int {
	if collateral == nil || collateral.Sign() <= 0 || seizePrice == nil || seizePrice.Sign() <= 0 || repayPrice == nil || repayPrice.Sign() <= 0 {
		return big.NewInt(0)
	}
	value := assetValue(collateral, seizePrice, seizeDecimals)
	stripped := new(big.Int).Mul(value, basisPoints)
	stripped.Quo(stripped, new(big.Int).SetUint64(10_000+incentiveBps))
	return amountForValue(stripped, repayPrice, repayDecimals)
}

// amountForValue converts a wad value into underlying units of an asset.
func amountForValue(value, price *big.Int, decimals uint8) *big.Int {
	if value == nil || value.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	amount := new(big.Int).Mul(value, unit)
	return amount.Quo(amount, price)
}
