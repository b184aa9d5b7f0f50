package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"lendcore/native/common"
	"lendcore/native/risk"
	"lendcore/observability/metrics"
	"lendcore/storage/audit"
)

const requestLimit = 1 << 20 // 1 MiB

// riskRoutes wires HTTP handlers to the risk engine.
type riskRoutes struct {
	engine *risk.Engine
	audit  *audit.Store
	feed   *risk.StaticFeed
}

func newRiskRoutes(engine *risk.Engine, auditStore *audit.Store, feed *risk.StaticFeed) *riskRoutes {
	return &riskRoutes{engine: engine, audit: auditStore, feed: feed}
}

func (rr *riskRoutes) mount(r chi.Router) {
	r.Post("/deposit", rr.deposit)
	r.Post("/withdraw", rr.withdraw)
	r.Post("/borrow", rr.borrow)
	r.Post("/repay", rr.repay)
	r.Post("/liquidate", rr.liquidate)
	r.Get("/assets", rr.listAssets)
	r.Get("/positions/{account}/{asset}", rr.position)
	r.Get("/health/{account}", rr.health)
	r.Get("/rates/{asset}", rr.rates)
	r.Get("/reserves/{asset}", rr.reserves)
	r.Get("/baddebt/{account}/{asset}", rr.badDebt)
	r.Get("/liquidations", rr.liquidations)
}

// mountAdmin registers the privileged governance handlers. Callers must
// guard the subtree with authentication before mounting.
func (rr *riskRoutes) mountAdmin(r chi.Router) {
	r.Post("/pause", rr.pause)
	r.Post("/prices", rr.setPrice)
	r.Post("/writeoff", rr.writeOff)
	r.Post("/reserves/withdraw", rr.withdrawReserves)
}

type ledgerRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (req ledgerRequest) parse() (string, string, *big.Int, error) {
	account := strings.TrimSpace(req.Account)
	if account == "" {
		return "", "", nil, errors.New("account is required")
	}
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		return "", "", nil, errors.New("asset is required")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return "", "", nil, err
	}
	return account, asset, amount, nil
}

func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("amount is required")
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func (rr *riskRoutes) deposit(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, asset, amount, err := req.parse()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = rr.engine.Deposit(account, asset, amount)
	metrics.Risk().RecordOperation("deposit", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rr *riskRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, asset, amount, err := req.parse()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = rr.engine.Withdraw(account, asset, amount)
	metrics.Risk().RecordOperation("withdraw", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rr *riskRoutes) borrow(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, asset, amount, err := req.parse()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = rr.engine.Borrow(account, asset, amount)
	metrics.Risk().RecordOperation("borrow", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rr *riskRoutes) repay(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, asset, amount, err := req.parse()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	repaid, err := rr.engine.Repay(account, asset, amount)
	metrics.Risk().RecordOperation("repay", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repaid": repaid.String()})
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Account     string `json:"account"`
	RepayAsset  string `json:"repayAsset"`
	RepayAmount string `json:"repayAmount"`
	SeizeAsset  string `json:"seizeAsset"`
}

func (rr *riskRoutes) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	liquidator := strings.TrimSpace(req.Liquidator)
	account := strings.TrimSpace(req.Account)
	if liquidator == "" || account == "" {
		writeBadRequest(w, errors.New("liquidator and account are required"))
		return
	}
	amount, err := parseAmount(req.RepayAmount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := rr.engine.Liquidate(liquidator, account, strings.TrimSpace(req.RepayAsset), amount, strings.TrimSpace(req.SeizeAsset))
	metrics.Risk().RecordOperation("liquidate", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Risk().RecordLiquidation(result.Event.RepaidAsset)
	writeJSON(w, http.StatusOK, map[string]string{
		"eventId": result.Event.ID,
		"repaid":  result.RepaidAmount.String(),
		"seized":  result.SeizedAmount.String(),
		"badDebt": result.BadDebtIncurred.String(),
	})
}

func (rr *riskRoutes) listAssets(w http.ResponseWriter, r *http.Request) {
	store := rr.engine.Params()
	symbols := store.Assets()
	assets := make([]risk.AssetParams, 0, len(symbols))
	for _, symbol := range symbols {
		params, err := store.GetAssetParameters(symbol)
		if err != nil {
			continue
		}
		assets = append(assets, params)
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (rr *riskRoutes) position(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	asset := chi.URLParam(r, "asset")
	collateral, debt, err := rr.engine.AccountPosition(account, asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account":    account,
		"asset":      asset,
		"collateral": collateral.String(),
		"debt":       debt.String(),
	})
}

func (rr *riskRoutes) health(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	snapshot, err := rr.engine.HealthFactor(account)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":          account,
		"collateralValue":  snapshot.CollateralValue.String(),
		"liquidationValue": snapshot.LiquidationValue.String(),
		"debtValue":        snapshot.DebtValue.String(),
		"healthFactor":     snapshot.HealthFactor.String(),
		"usedStalePrice":   snapshot.UsedStalePrice,
		"liquidatable":     snapshot.LiquidationValue.Cmp(snapshot.DebtValue) < 0 && snapshot.DebtValue.Sign() > 0,
	})
}

func (rr *riskRoutes) rates(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	rates, err := rr.engine.CurrentRates(asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Risk().SetUtilization(asset, rates.Utilization)
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":       rates.Asset,
		"borrowRate":  rates.BorrowRate.String(),
		"supplyRate":  rates.SupplyRate.String(),
		"utilization": rates.Utilization.String(),
	})
}

func (rr *riskRoutes) reserves(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	amount, err := rr.engine.Reserves(asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset, "reserves": amount.String()})
}

func (rr *riskRoutes) badDebt(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	asset := chi.URLParam(r, "asset")
	amount, err := rr.engine.BadDebt(account, asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Risk().SetBadDebt(asset, amount)
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"asset":   asset,
		"amount":  amount.String(),
	})
}

func (rr *riskRoutes) liquidations(w http.ResponseWriter, r *http.Request) {
	if rr.audit == nil {
		writeJSONError(w, http.StatusNotImplemented, errors.New("audit store not configured"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	rows, err := rr.audit.Liquidations(r.URL.Query().Get("account"), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liquidations": rows})
}

type pauseRequest struct {
	Level string `json:"level"`
}

func (rr *riskRoutes) pause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	var level common.PauseLevel
	switch strings.ToLower(strings.TrimSpace(req.Level)) {
	case "none":
		level = common.PauseNone
	case "risk-increasing":
		level = common.PauseRiskIncreasing
	case "all":
		level = common.PauseAll
	default:
		writeBadRequest(w, fmt.Errorf("unknown pause level %q", req.Level))
		return
	}
	rr.engine.Gate().SetLevel(level)
	writeJSON(w, http.StatusOK, map[string]string{"level": strings.ToLower(strings.TrimSpace(req.Level))})
}

type priceRequest struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
	Stale bool   `json:"stale"`
}

func (rr *riskRoutes) setPrice(w http.ResponseWriter, r *http.Request) {
	if rr.feed == nil {
		writeJSONError(w, http.StatusNotImplemented, errors.New("price feed is externally managed"))
		return
	}
	var req priceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		writeBadRequest(w, errors.New("asset is required"))
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if price.Sign() <= 0 {
		writeBadRequest(w, errors.New("price must be positive"))
		return
	}
	rr.feed.SetPrice(asset, price, time.Now())
	if req.Stale {
		rr.feed.MarkStale(asset)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type writeOffRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

func (rr *riskRoutes) writeOff(w http.ResponseWriter, r *http.Request) {
	var req writeOffRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := rr.engine.WriteOffBadDebt(strings.TrimSpace(req.Account), strings.TrimSpace(req.Asset))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"writtenOff": amount.String()})
}

type reservesWithdrawRequest struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

func (rr *riskRoutes) withdrawReserves(w http.ResponseWriter, r *http.Request) {
	var req reservesWithdrawRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := rr.engine.WithdrawReserves(strings.TrimSpace(req.Asset), strings.TrimSpace(req.Recipient), amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeRequest(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		writeInternalError(w, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusInternalServerError, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		payload = []byte(`{"error":"internal error"}`)
	}
	_, _ = w.Write(payload)
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	writeJSONError(w, engineStatus(err), err)
}

func engineStatus(err error) int {
	switch {
	case errors.Is(err, risk.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, risk.ErrInvalidAmount), errors.Is(err, risk.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, risk.ErrInsufficientCollateral),
		errors.Is(err, risk.ErrInsufficientBalance),
		errors.Is(err, risk.ErrBorrowCapExceeded),
		errors.Is(err, risk.ErrSupplyCapExceeded),
		errors.Is(err, risk.ErrNotLiquidatable),
		errors.Is(err, risk.ErrSeizeAmountExceedsCollateral),
		errors.Is(err, risk.ErrNoDebtToRepay),
		errors.Is(err, risk.ErrNoBadDebt),
		errors.Is(err, risk.ErrStalePrice):
		return http.StatusConflict
	case errors.Is(err, common.ErrQuotaRequestsExceeded), errors.Is(err, common.ErrQuotaNotionalExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, common.ErrOperationPaused), errors.Is(err, risk.ErrMarketHalted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
