package risk

import (
	"math/big"
	"time"
)

// InterestCurve holds the kinked borrow-rate parameters for one market. Rates
// are annual decimals, e.g. a 2% base rate is 0.02 and an 80% kink is 0.8.
type InterestCurve struct {
	BaseRate float64 `yaml:"baseRate" json:"baseRate"`
	Slope1   float64 `yaml:"slope1" json:"slope1"`
	Slope2   float64 `yaml:"slope2" json:"slope2"`
	Kink     float64 `yaml:"kink" json:"kink"`
}

// AssetParams groups the governance controlled risk limits for a single asset.
// Factors, thresholds and incentives are expressed in basis points.
type AssetParams struct {
	Symbol                  string        `yaml:"symbol" json:"symbol"`
	Decimals                uint8         `yaml:"decimals" json:"decimals"`
	IsCollateral            bool          `yaml:"isCollateral" json:"isCollateral"`
	CollateralFactorBps     uint64        `yaml:"collateralFactorBps" json:"collateralFactorBps"`
	LiquidationThresholdBps uint64        `yaml:"liquidationThresholdBps" json:"liquidationThresholdBps"`
	LiquidationIncentiveBps uint64        `yaml:"liquidationIncentiveBps" json:"liquidationIncentiveBps"`
	ReserveFactorBps        uint64        `yaml:"reserveFactorBps" json:"reserveFactorBps"`
	BorrowCap               *big.Int      `yaml:"-" json:"borrowCap,omitempty"`
	SupplyCap               *big.Int      `yaml:"-" json:"supplyCap,omitempty"`
	Curve                   InterestCurve `yaml:"curve" json:"curve"`
}

// Clone returns a deep copy of the asset parameters.
func (p AssetParams) Clone() AssetParams {
	clone := p
	if p.BorrowCap != nil {
		clone.BorrowCap = new(big.Int).Set(p.BorrowCap)
	}
	if p.SupplyCap != nil {
		clone.SupplyCap = new(big.Int).Set(p.SupplyCap)
	}
	return clone
}

// Market captures the global accounting state for one asset. Aggregate amounts
// are kept as index-normalized principal so lazy accrual stays O(1); underlying
// totals are always principal multiplied by the current index.
type Market struct {
	Asset string
	// TotalScaledSupply aggregates supplier principal across all accounts.
	TotalScaledSupply *big.Int
	// TotalScaledBorrow aggregates borrower principal across all accounts.
	TotalScaledBorrow *big.Int
	// SupplyIndex is the cumulative interest index applied to supplier balances.
	SupplyIndex *big.Int
	// BorrowIndex is the cumulative interest index applied to borrower debt.
	BorrowIndex *big.Int
	// LastAccrual records the unix timestamp when indexes were last refreshed.
	LastAccrual int64
	// Reserves accumulates the reserve-factor share of accrued interest in
	// underlying units.
	Reserves *big.Int
	// Halted disables all mutations of this market. Set when accrual detects a
	// representation overflow (protocol-design fault).
	Halted bool
}

// NewMarket initialises an empty market with unit indexes.
func NewMarket(asset string, now int64) *Market {
	return &Market{
		Asset:             asset,
		TotalScaledSupply: big.NewInt(0),
		TotalScaledBorrow: big.NewInt(0),
		SupplyIndex:       new(big.Int).Set(ray),
		BorrowIndex:       new(big.Int).Set(ray),
		LastAccrual:       now,
		Reserves:          big.NewInt(0),
	}
}

// TotalSupplied returns the current underlying supply of the market.
func (m *Market) TotalSupplied() *big.Int {
	if m == nil {
		return big.NewInt(0)
	}
	return amountFromScaled(m.TotalScaledSupply, m.SupplyIndex)
}

// TotalBorrowed returns the current underlying debt of the market.
func (m *Market) TotalBorrowed() *big.Int {
	if m == nil {
		return big.NewInt(0)
	}
	return amountFromScaled(m.TotalScaledBorrow, m.BorrowIndex)
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := &Market{Asset: m.Asset, LastAccrual: m.LastAccrual, Halted: m.Halted}
	if m.TotalScaledSupply != nil {
		clone.TotalScaledSupply = new(big.Int).Set(m.TotalScaledSupply)
	}
	if m.TotalScaledBorrow != nil {
		clone.TotalScaledBorrow = new(big.Int).Set(m.TotalScaledBorrow)
	}
	if m.SupplyIndex != nil {
		clone.SupplyIndex = new(big.Int).Set(m.SupplyIndex)
	}
	if m.BorrowIndex != nil {
		clone.BorrowIndex = new(big.Int).Set(m.BorrowIndex)
	}
	if m.Reserves != nil {
		clone.Reserves = new(big.Int).Set(m.Reserves)
	}
	return clone
}

func (m *Market) ensureDefaults() {
	if m.TotalScaledSupply == nil {
		m.TotalScaledSupply = big.NewInt(0)
	}
	if m.TotalScaledBorrow == nil {
		m.TotalScaledBorrow = big.NewInt(0)
	}
	if m.SupplyIndex == nil || m.SupplyIndex.Sign() == 0 {
		m.SupplyIndex = new(big.Int).Set(ray)
	}
	if m.BorrowIndex == nil || m.BorrowIndex.Sign() == 0 {
		m.BorrowIndex = new(big.Int).Set(ray)
	}
	if m.Reserves == nil {
		m.Reserves = big.NewInt(0)
	}
}

// AssetPosition holds one account's principal in a single market.
type AssetPosition struct {
	CollateralScaled *big.Int
	DebtScaled       *big.Int
}

func (p *AssetPosition) zero() bool {
	return (p.CollateralScaled == nil || p.CollateralScaled.Sign() == 0) &&
		(p.DebtScaled == nil || p.DebtScaled.Sign() == 0)
}

// Clone returns a deep copy of the asset position.
func (p *AssetPosition) Clone() *AssetPosition {
	if p == nil {
		return nil
	}
	clone := &AssetPosition{}
	if p.CollateralScaled != nil {
		clone.CollateralScaled = new(big.Int).Set(p.CollateralScaled)
	}
	if p.DebtScaled != nil {
		clone.DebtScaled = new(big.Int).Set(p.DebtScaled)
	}
	return clone
}

// Position maintains all markets an account participates in. Positions are
// created implicitly on first deposit and only ever zeroed, never deleted.
type Position struct {
	Account string
	Assets  map[string]*AssetPosition
}

// NewPosition initialises an empty position for the account.
func NewPosition(account string) *Position {
	return &Position{Account: account, Assets: make(map[string]*AssetPosition)}
}

func (p *Position) asset(symbol string) *AssetPosition {
	if p.Assets == nil {
		p.Assets = make(map[string]*AssetPosition)
	}
	ap, ok := p.Assets[symbol]
	if !ok || ap == nil {
		ap = &AssetPosition{CollateralScaled: big.NewInt(0), DebtScaled: big.NewInt(0)}
		p.Assets[symbol] = ap
	}
	if ap.CollateralScaled == nil {
		ap.CollateralScaled = big.NewInt(0)
	}
	if ap.DebtScaled == nil {
		ap.DebtScaled = big.NewInt(0)
	}
	return ap
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := NewPosition(p.Account)
	for symbol, ap := range p.Assets {
		clone.Assets[symbol] = ap.Clone()
	}
	return clone
}

// HealthSnapshot is the derived solvency view of one account at a point in
// time. Values are wad-scaled.
type HealthSnapshot struct {
	Account string
	// CollateralValue is the risk-adjusted collateral value (price times
	// collateral factor).
	CollateralValue *big.Int
	// LiquidationValue is the collateral value adjusted by the liquidation
	// threshold instead of the collateral factor.
	LiquidationValue *big.Int
	// DebtValue is the raw debt value.
	DebtValue *big.Int
	// HealthFactor is CollateralValue / DebtValue, wad-scaled. MaxHealthFactor
	// when the account has no debt.
	HealthFactor *big.Int
	// UsedStalePrice flags that at least one stale quote fed the computation.
	UsedStalePrice bool
}

// MaxHealthFactor is the sentinel health factor reported for debt-free
// accounts.
var MaxHealthFactor = new(big.Int).Mul(wad, big.NewInt(1_000_000_000))

// LiquidationEvent is the audit record emitted after a successful liquidation.
type LiquidationEvent struct {
	ID           string
	Account      string
	Liquidator   string
	RepaidAsset  string
	RepaidAmount *big.Int
	SeizedAsset  string
	SeizedAmount *big.Int
	IncentiveBps uint64
	BadDebt      *big.Int
	Timestamp    time.Time
}

// BadDebtRecord tracks debt that liquidation could not recover. Written only
// by the liquidation path, cleared only by an explicit governance write-off.
type BadDebtRecord struct {
	Account string
	Asset   string
	Amount  *big.Int
}

// Rates is the observable output of the interest model for one market.
type Rates struct {
	Asset string
	// BorrowRate and SupplyRate are per-second rates, wad-scaled.
	BorrowRate *big.Int
	SupplyRate *big.Int
	// Utilization is wad-scaled.
	Utilization *big.Int
}
