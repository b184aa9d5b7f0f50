package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RiskMetrics tracks the lending risk engine's operational counters.
type RiskMetrics struct {
	operations   *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	badDebt      *prometheus.GaugeVec
	utilization  *prometheus.GaugeVec
	haltedMarket *prometheus.GaugeVec
}

var (
	riskOnce     sync.Once
	riskRegistry *RiskMetrics
)

// Risk returns the lazily-initialised risk engine metrics registry.
func Risk() *RiskMetrics {
	riskOnce.Do(func() {
		riskRegistry = &RiskMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "risk_operations_total",
				Help: "Count of ledger operations by kind and outcome.",
			}, []string{"op", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "risk_liquidations_total",
				Help: "Count of executed liquidations by repaid asset.",
			}, []string{"asset"}),
			badDebt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "risk_bad_debt",
				Help: "Last observed socialized bad debt per asset, in underlying units.",
			}, []string{"asset"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "risk_market_utilization",
				Help: "Last observed market utilization, scaled to 1e18.",
			}, []string{"asset"}),
			haltedMarket: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "risk_market_halted",
				Help: "1 when the market is halted after an accrual overflow.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			riskRegistry.operations,
			riskRegistry.liquidations,
			riskRegistry.badDebt,
			riskRegistry.utilization,
			riskRegistry.haltedMarket,
		)
	})
	return riskRegistry
}

// RecordOperation counts one ledger operation with its outcome.
func (m *RiskMetrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(strings.ToLower(op), outcome).Inc()
}

// RecordLiquidation counts one executed liquidation.
func (m *RiskMetrics) RecordLiquidation(repaidAsset string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(normalizeAsset(repaidAsset)).Inc()
}

// SetBadDebt publishes the cumulative bad debt observed for the asset.
func (m *RiskMetrics) SetBadDebt(asset string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.badDebt.WithLabelValues(normalizeAsset(asset)).Set(value)
}

// SetUtilization publishes the wad-scaled utilization of the market.
func (m *RiskMetrics) SetUtilization(asset string, utilization *big.Int) {
	if m == nil || utilization == nil {
		return
	}
	value, _ := new(big.Float).SetInt(utilization).Float64()
	m.utilization.WithLabelValues(normalizeAsset(asset)).Set(value)
}

// SetHalted publishes the halt flag of the market.
func (m *RiskMetrics) SetHalted(asset string, halted bool) {
	if m == nil {
		return
	}
	value := 0.0
	if halted {
		value = 1.0
	}
	m.haltedMarket.WithLabelValues(normalizeAsset(asset)).Set(value)
}

func normalizeAsset(asset string) string {
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	return normalized
}
