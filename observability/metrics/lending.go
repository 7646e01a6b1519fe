package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ReserveBalances is the snapshot of a reserve exported as gauges.
type ReserveBalances struct {
	LiquidityAvailable  uint64
	LiquidityBorrowed   uint64
	CollateralAvailable uint64
	CollateralClaimable uint64
	Staked              uint64
}

type LendingMetrics struct {
	operations   *prometheus.CounterVec
	reserve      *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	events       *prometheus.CounterVec
	crankLatency prometheus.Histogram
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the lazily registered lending metrics.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "srl",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Lending instructions processed by operation and outcome.",
			}, []string{"operation", "outcome"}),
			reserve: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "srl",
				Subsystem: "lending",
				Name:      "reserve_lamports",
				Help:      "Reserve balances in lamports by reserve and bucket.",
			}, []string{"reserve", "bucket"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "srl",
				Subsystem: "lending",
				Name:      "tranche_transitions_total",
				Help:      "Stake tranche transitions applied during epoch reconciliation.",
			}, []string{"transition"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "srl",
				Subsystem: "lending",
				Name:      "events_total",
				Help:      "Lending events emitted by type.",
			}, []string{"type"}),
			crankLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "srl",
				Subsystem: "cranker",
				Name:      "round_duration_seconds",
				Help:      "Time spent refreshing every reserve in one crank round.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.reserve,
			lendingRegistry.transitions,
			lendingRegistry.events,
			lendingRegistry.crankLatency,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *LendingMetrics) SetReserve(reserve string, b ReserveBalances) {
	if m == nil {
		return
	}
	m.reserve.WithLabelValues(reserve, "liquidity_available").Set(float64(b.LiquidityAvailable))
	m.reserve.WithLabelValues(reserve, "liquidity_borrowed").Set(float64(b.LiquidityBorrowed))
	m.reserve.WithLabelValues(reserve, "collateral_available").Set(float64(b.CollateralAvailable))
	m.reserve.WithLabelValues(reserve, "collateral_claimable").Set(float64(b.CollateralClaimable))
	m.reserve.WithLabelValues(reserve, "staked").Set(float64(b.Staked))
}

func (m *LendingMetrics) ObserveReconcile(merged, withdrawn int, activated, deactivated bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues("merge").Add(float64(merged))
	m.transitions.WithLabelValues("withdraw").Add(float64(withdrawn))
	if activated {
		m.transitions.WithLabelValues("activate").Inc()
	}
	if deactivated {
		m.transitions.WithLabelValues("deactivate").Inc()
	}
}

func (m *LendingMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *LendingMetrics) ObserveCrankRound(seconds float64) {
	if m == nil {
		return
	}
	m.crankLatency.Observe(seconds)
}
