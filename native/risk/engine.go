package risk

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"lendcore/native/common"
	"lendcore/observability/metrics"
)

// Transfers is the external custody collaborator. The engine never holds its
// own notion of token balances beyond the ledger of record; actual asset
// movement happens here. Implementations must be synchronous: a returned error
// aborts the whole operation before any ledger write.
type Transfers interface {
	TransferIn(account, asset string, amount *big.Int) error
	TransferOut(recipient, asset string, amount *big.Int) error
}

// Auditor receives the ephemeral audit records the engine emits. Failures are
// logged, not propagated: the ledger commit already happened and audit is a
// side channel.
type Auditor interface {
	RecordLiquidation(event LiquidationEvent) error
	RecordBadDebt(record BadDebtRecord) error
}

type noopTransfers struct{}

func (noopTransfers) TransferIn(string, string, *big.Int) error  { return nil }
func (noopTransfers) TransferOut(string, string, *big.Int) error { return nil }

// Config carries the engine-wide policy knobs.
type Config struct {
	// CloseFactorBps caps the fraction of an account's per-asset debt a
	// single liquidation may repay. 10000 permits full liquidation.
	CloseFactorBps uint64
	// StaleTolerance bounds the accepted age of price quotes for
	// risk-increasing checks.
	StaleTolerance time.Duration
	// Quota throttles per-account action throughput. Zero values disable it.
	Quota common.Quota
}

// Engine orchestrates every state transition of the risk ledger. All mutating
// operations serialize on a single write lock, reproducing the one-at-a-time
// execution model the accounting invariants assume; read-only queries share a
// read lock and observe committed state only.
type Engine struct {
	mu        sync.RWMutex
	state     State
	params    *ParamStore
	feed      PriceFeed
	gate      *common.Gate
	transfers Transfers
	auditor   Auditor
	cfg       Config
	quotaMu   sync.Mutex
	usage     map[string]common.QuotaNow
	clock     func() time.Time
	log       *slog.Logger
	telemetry *metrics.RiskMetrics
}

// NewEngine constructs a risk engine over the given ledger state, parameter
// store and price feed.
func NewEngine(state State, params *ParamStore, feed PriceFeed, cfg Config) *Engine {
	if cfg.CloseFactorBps == 0 || cfg.CloseFactorBps > 10_000 {
		cfg.CloseFactorBps = 5_000
	}
	return &Engine{
		state:     state,
		params:    params,
		feed:      feed,
		gate:      common.NewGate(),
		transfers: noopTransfers{},
		cfg:       cfg,
		usage:     make(map[string]common.QuotaNow),
		clock:     time.Now,
		log:       slog.Default(),
		telemetry: metrics.Risk(),
	}
}

// Gate exposes the emergency gate for the governance surface.
func (e *Engine) Gate() *common.Gate { return e.gate }

// Params exposes the parameter store for the governance surface.
func (e *Engine) Params() *ParamStore { return e.params }

// SetTransfers wires the external custody collaborator.
func (e *Engine) SetTransfers(t Transfers) {
	if e == nil || t == nil {
		return
	}
	e.transfers = t
}

// SetAuditor wires the audit sink for liquidation and bad-debt records.
func (e *Engine) SetAuditor(a Auditor) {
	if e == nil {
		return
	}
	e.auditor = a
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(log *slog.Logger) {
	if e == nil || log == nil {
		return
	}
	e.log = log
}

// SetClock overrides the time source. Tests drive accrual through this.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// Deposit locks collateral for the account. Deposits monotonically improve
// health, so no post-check runs.
func (e *Engine) Deposit(account, asset string, amount *big.Int) error {
	if err := e.checkMutate(common.ActionDeposit, account, asset, amount); err != nil || isZero(amount) {
		return err
	}
	params, err := e.params.GetAssetParameters(asset)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	op := e.newOp(now)
	market, err := op.accruedMarket(asset)
	if err != nil {
		return err
	}

	if params.SupplyCap != nil && params.SupplyCap.Sign() > 0 {
		projected := new(big.Int).Add(market.TotalSupplied(), amount)
		if projected.Cmp(params.SupplyCap) > 0 {
			return fmt.Errorf("%w: %s supply %s over cap %s", ErrSupplyCapExceeded, asset, projected, params.SupplyCap)
		}
	}

	position, err := op.position(account)
	if err != nil {
		return err
	}
	ap := position.asset(asset)

	if err := e.transfers.TransferIn(account, asset, amount); err != nil {
		return fmt.Errorf("transfer in: %w", err)
	}

	scaled := scaledFromAmount(amount, market.SupplyIndex)
	ap.CollateralScaled = new(big.Int).Add(ap.CollateralScaled, scaled)
	market.TotalScaledSupply = new(big.Int).Add(market.TotalScaledSupply, scaled)

	op.cs.PutPosition(position)
	if err := e.state.Apply(op.cs); err != nil {
		return err
	}
	e.log.Debug("deposit applied", "account", account, "asset", asset, "amount", amount.String())
	return nil
}

// Withdraw releases collateral back to the account, provided the remaining
// position keeps a health factor at or above one.
func (e *Engine) Withdraw(account, asset string, amount *big.Int) error {
	if err := e.checkMutate(common.ActionWithdraw, account, asset, amount); err != nil || isZero(amount) {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	op := e.newOp(now)
	market, err := op.accruedMarket(asset)
	if err != nil {
		return err
	}

	position, err := op.position(account)
	if err != nil {
		return err
	}
	ap := position.asset(asset)

	available := amountFromScaled(ap.CollateralScaled, market.SupplyIndex)
	if available.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s collateral %s below %s", ErrInsufficientBalance, asset, available, amount)
	}

	scaled := scaledFromAmount(amount, market.SupplyIndex)
	if scaled.Cmp(ap.CollateralScaled) > 0 {
		scaled = new(big.Int).Set(ap.CollateralScaled)
	}
	ap.CollateralScaled = new(big.Int).Sub(ap.CollateralScaled, scaled)
	market.TotalScaledSupply = new(big.Int).Sub(market.TotalScaledSupply, scaled)

	snapshot, err := computeHealth(position, op.lookup, e.feed, now, e.cfg.StaleTolerance, modeCertify)
	if err != nil {
		return err
	}
	if !snapshot.healthy() {
		return ErrInsufficientCollateral
	}

	if err := e.transfers.TransferOut(account, asset, amount); err != nil {
		return fmt.Errorf("transfer out: %w", err)
	}

	op.cs.PutPosition(position)
	if err := e.state.Apply(op.cs); err != nil {
		return err
	}
	e.log.Debug("withdraw applied", "account", account, "asset", asset, "amount", amount.String())
	return nil
}

// Borrow draws debt against the account's collateral.
func (e *Engine) Borrow(account, asset string, amount *big.Int) error {
	if err := e.checkMutate(common.ActionBorrow, account, asset, amount); err != nil || isZero(amount) {
		return err
	}
	params, err := e.params.GetAssetParameters(asset)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	op := e.newOp(now)
	market, err := op.accruedMarket(asset)
	if err != nil {
		return err
	}

	if params.BorrowCap != nil && params.BorrowCap.Sign() > 0 {
		projected := new(big.Int).Add(market.TotalBorrowed(), amount)
		if projected.Cmp(params.BorrowCap) > 0 {
			return fmt.Errorf("%w: %s borrow %s over cap %s", ErrBorrowCapExceeded, asset, projected, params.BorrowCap)
		}
	}
	liquidity := new(big.Int).Sub(market.TotalSupplied(), market.TotalBorrowed())
	if liquidity.Cmp(amount) < 0 {
		return fmt.Errorf("%w: pool liquidity %s below %s", ErrInsufficientBalance, liquidity, amount)
	}

	position, err := op.position(account)
	if err != nil {
		return err
	}
	ap := position.asset(asset)

	scaled := scaledFromAmount(amount, market.BorrowIndex)
	ap.DebtScaled = new(big.Int).Add(ap.DebtScaled, scaled)
	market.TotalScaledBorrow = new(big.Int).Add(market.TotalScaledBorrow, scaled)

	snapshot, err := computeHealth(position, op.lookup, e.feed, now, e.cfg.StaleTolerance, modeCertify)
	if err != nil {
		return err
	}
	if !snapshot.healthy() {
		return ErrInsufficientCollateral
	}

	if err := e.transfers.TransferOut(account, asset, amount); err != nil {
		return fmt.Errorf("transfer out: %w", err)
	}

	op.cs.PutPosition(position)
	if err := e.state.Apply(op.cs); err != nil {
		return err
	}
	e.log.Debug("borrow applied", "account", account, "asset", asset, "amount", amount.String())
	return nil
}

// Repay pays down the account's debt. Amounts above the outstanding debt are
// clamped; the repaid principal is returned.
func (e *Engine) Repay(account, asset string, amount *big.Int) (*big.Int, error) {
	if err := e.checkMutate(common.ActionRepay, account, asset, amount); err != nil {
		return nil, err
	}
	if isZero(amount) {
		return big.NewInt(0), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	op := e.newOp(now)
	market, err := op.accruedMarket(asset)
	if err != nil {
		return nil, err
	}

	position, err := op.position(account)
	if err != nil {
		return nil, err
	}
	ap := position.asset(asset)

	debt := amountFromScaled(ap.DebtScaled, market.BorrowIndex)
	if debt.Sign() == 0 {
		return nil, ErrNoDebtToRepay
	}
	repay := new(big.Int).Set(amount)
	if repay.Cmp(debt) > 0 {
		repay = new(big.Int).Set(debt)
	}

	if err := e.transfers.TransferIn(account, asset, repay); err != nil {
		return nil, fmt.Errorf("transfer in: %w", err)
	}

	scaled := scaledFromAmount(repay, market.BorrowIndex)
	if scaled.Cmp(ap.DebtScaled) > 0 {
		scaled = new(big.Int).Set(ap.DebtScaled)
	}
	ap.DebtScaled = new(big.Int).Sub(ap.DebtScaled, scaled)
	market.TotalScaledBorrow = new(big.Int).Sub(market.TotalScaledBorrow, scaled)

	op.cs.PutPosition(position)
	if err := e.state.Apply(op.cs); err != nil {
		return nil, err
	}
	e.log.Debug("repay applied", "account", account, "asset", asset, "amount", repay.String())
	return repay, nil
}

// HealthFactor reports the account's current solvency snapshot. Stale quotes
// do not fail the query; they are surfaced through UsedStalePrice.
func (e *Engine) HealthFactor(account string) (*HealthSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock()
	op := e.newOp(now)
	position, err := op.position(account)
	if err != nil {
		return nil, err
	}
	return computeHealth(position, op.lookup, e.feed, now, e.cfg.StaleTolerance, modeFlag)
}

// IsLiquidatable reports whether the account crossed the liquidation
// threshold.
func (e *Engine) IsLiquidatable(account string) (bool, error) {
	snapshot, err := e.HealthFactor(account)
	if err != nil {
		return false, err
	}
	return snapshot.liquidatable(), nil
}

// AccountPosition returns the account's current collateral and debt balances
// for the asset, interest included.
func (e *Engine) AccountPosition(account, asset string) (collateral, debt *big.Int, err error) {
	if _, err := e.params.GetAssetParameters(asset); err != nil {
		return nil, nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	op := e.newOp(e.clock())
	market, err := op.accruedMarket(asset)
	if err != nil {
		return nil, nil, err
	}
	position, err := op.position(account)
	if err != nil {
		return nil, nil, err
	}
	ap := position.asset(asset)
	return amountFromScaled(ap.CollateralScaled, market.SupplyIndex),
		amountFromScaled(ap.DebtScaled, market.BorrowIndex), nil
}

// CurrentRates reports the market's per-second borrow and supply rates along
// with its utilization, all wad-scaled.
func (e *Engine) CurrentRates(asset string) (*Rates, error) {
	params, err := e.params.GetAssetParameters(asset)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	op := e.newOp(e.clock())
	market, err := op.accruedMarket(asset)
	if err != nil {
		return nil, err
	}
	model := ModelFromCurve(params.Curve)
	utilization := model.Utilization(market.TotalBorrowed(), market.TotalSupplied())
	return &Rates{
		Asset:       asset,
		BorrowRate:  ratToWad(PerSecond(model.BorrowRate(utilization))),
		SupplyRate:  ratToWad(PerSecond(model.SupplyRate(utilization, params.ReserveFactorBps))),
		Utilization: ratToWad(utilization),
	}, nil
}

// BadDebt returns the recorded unrecovered debt for the account and asset.
func (e *Engine) BadDebt(account, asset string) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.GetBadDebt(account, asset)
}

// Reserves returns the accumulated protocol reserves of the market.
func (e *Engine) Reserves(asset string) (*big.Int, error) {
	if _, err := e.params.GetAssetParameters(asset); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	market, err := e.state.GetMarket(asset)
	if err != nil {
		return nil, err
	}
	if market == nil || market.Reserves == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(market.Reserves), nil
}

// WriteOffBadDebt clears the bad-debt record for the account and asset. This
// is the governance-driven socialization step; the written-off amount is
// returned.
func (e *Engine) WriteOffBadDebt(account, asset string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	amount, err := e.state.GetBadDebt(account, asset)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrNoBadDebt
	}

	cs := NewChangeset()
	cs.PutBadDebt(&BadDebtRecord{Account: account, Asset: asset, Amount: big.NewInt(0)})
	if err := e.state.Apply(cs); err != nil {
		return nil, err
	}
	e.log.Info("bad debt written off", "account", account, "asset", asset, "amount", amount.String())
	return amount, nil
}

// WithdrawReserves releases accumulated protocol reserves to the recipient
// through the external transfer collaborator.
func (e *Engine) WithdrawReserves(asset, recipient string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := e.params.GetAssetParameters(asset); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	op := e.newOp(e.clock())
	market, err := op.accruedMarket(asset)
	if err != nil {
		return err
	}
	if market.Reserves.Cmp(amount) < 0 {
		return fmt.Errorf("%w: reserves %s below %s", ErrInsufficientBalance, market.Reserves, amount)
	}
	if err := e.transfers.TransferOut(recipient, asset, amount); err != nil {
		return fmt.Errorf("transfer out: %w", err)
	}
	market.Reserves = new(big.Int).Sub(market.Reserves, amount)
	return e.state.Apply(op.cs)
}

// checkMutate runs the shared entry guards: state wiring, gate, amount shape,
// asset existence and the per-account quota. The asset check runs before the
// quota debit so a rejected request never consumes the account's budget.
func (e *Engine) checkMutate(action common.Action, account, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := common.Guard(e.gate, action); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, err := e.params.GetAssetParameters(asset); err != nil {
		return err
	}
	if !e.cfg.Quota.Enabled() || amount.Sign() == 0 {
		return nil
	}

	e.quotaMu.Lock()
	defer e.quotaMu.Unlock()
	epoch := e.cfg.Quota.Epoch(e.clock().Unix())
	notional := uint64(0)
	if amount.IsUint64() {
		notional = amount.Uint64()
	} else {
		notional = ^uint64(0)
	}
	next, err := common.CheckQuota(e.cfg.Quota, epoch, e.usage[account], 1, notional)
	if err != nil {
		return err
	}
	e.usage[account] = next
	return nil
}

// operation bundles the staged view of one engine call. Markets and positions
// loaded through it are private clones; nothing reaches the state until the
// changeset is applied.
type operation struct {
	engine *Engine
	now    time.Time
	cs     *Changeset
}

func (e *Engine) newOp(now time.Time) *operation {
	return &operation{engine: e, now: now, cs: NewChangeset()}
}

// accruedMarket loads the market, accrues interest up to the operation
// timestamp and stages the result. Repeated calls for the same asset return
// the staged clone. On accrual overflow the halted market is committed so the
// gate outlives the failed call.
func (op *operation) accruedMarket(asset string) (*Market, error) {
	if staged, ok := op.cs.Markets[asset]; ok {
		return staged, nil
	}
	params, err := op.engine.params.GetAssetParameters(asset)
	if err != nil {
		return nil, err
	}
	market, err := op.engine.state.GetMarket(asset)
	if err != nil {
		return nil, err
	}
	if market == nil {
		market = NewMarket(asset, op.now.Unix())
	}
	if market.Halted {
		return nil, fmt.Errorf("%w: %s", ErrMarketHalted, asset)
	}
	if err := accrueMarket(market, params, ModelFromCurve(params.Curve), op.now.Unix()); err != nil {
		if market.Halted {
			halt := NewChangeset()
			halt.PutMarket(market)
			if applyErr := op.engine.state.Apply(halt); applyErr != nil {
				op.engine.log.Error("persist market halt", "asset", asset, "err", applyErr)
			}
			op.engine.telemetry.SetHalted(asset, true)
			op.engine.log.Error("market halted on accrual overflow", "asset", asset)
		}
		return nil, err
	}
	op.cs.PutMarket(market)
	return market, nil
}

func (op *operation) position(account string) (*Position, error) {
	if staged, ok := op.cs.Positions[account]; ok {
		return staged, nil
	}
	position, err := op.engine.state.GetPosition(account)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = NewPosition(account)
	}
	op.cs.Positions[account] = position
	return position, nil
}

// lookup adapts the operation into the health engine's market resolver.
func (op *operation) lookup(asset string) (*Market, AssetParams, error) {
	params, err := op.engine.params.GetAssetParameters(asset)
	if err != nil {
		return nil, AssetParams{}, err
	}
	market, err := op.accruedMarket(asset)
	if err != nil {
		return nil, AssetParams{}, err
	}
	return market, params, nil
}

func isZero(amount *big.Int) bool {
	return amount == nil || amount.Sign() == 0
}
