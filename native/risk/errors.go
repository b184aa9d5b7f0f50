package risk

import "errors"

// Validation errors reject an operation before any state is touched.
var (
	ErrAssetNotFound    = errors.New("risk engine: asset not found")
	ErrInvalidParameter = errors.New("risk engine: invalid parameter")
	ErrInvalidAmount    = errors.New("risk engine: amount must not be negative")
	ErrNilState         = errors.New("risk engine: state not configured")
)

// Solvency errors reject the triggering operation only; the ledger remains at
// its pre-call state.
var (
	ErrInsufficientCollateral = errors.New("risk engine: health factor below 1 after operation")
	ErrInsufficientBalance    = errors.New("risk engine: insufficient balance")
	ErrBorrowCapExceeded      = errors.New("risk engine: borrow cap exceeded")
	ErrSupplyCapExceeded      = errors.New("risk engine: supply cap exceeded")
)

// Liquidation precondition errors leave the target position untouched.
var (
	ErrNotLiquidatable              = errors.New("risk engine: position not eligible for liquidation")
	ErrSeizeAmountExceedsCollateral = errors.New("risk engine: seize amount exceeds available collateral")
	ErrNoDebtToRepay                = errors.New("risk engine: no outstanding debt to repay")
)

// Arithmetic and data-freshness errors.
var (
	// ErrAccrualOverflow marks an index update that left the fixed-point
	// representation. The affected market is halted rather than truncated.
	ErrAccrualOverflow = errors.New("risk engine: accrual index overflow")
	ErrMarketHalted    = errors.New("risk engine: market halted")
	ErrStalePrice      = errors.New("risk engine: stale price")
	ErrNoBadDebt       = errors.New("risk engine: no bad debt recorded")
)
