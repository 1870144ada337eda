package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LendMetrics struct {
	poolsCreated    prometheus.Counter
	deposits        *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	claims          *prometheus.CounterVec
	withdrawals     *prometheus.CounterVec
	refusedRequests *prometheus.CounterVec
	openPools       prometheus.Gauge
}

var (
	lendOnce     sync.Once
	lendRegistry *LendMetrics
)

func Lend() *LendMetrics {
	lendOnce.Do(func() {
		lendRegistry = &LendMetrics{
			poolsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lend_pools_created_total",
				Help: "Count of lending pools created.",
			}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lend_deposits_total",
				Help: "Count of accepted deposits by side.",
			}, []string{"side"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lend_settlements_total",
				Help: "Count of pool settlements by outcome state.",
			}, []string{"state"}),
			resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lend_resolutions_total",
				Help: "Count of pool resolutions by outcome state.",
			}, []string{"state"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lend_claims_total",
				Help: "Count of share claims by side.",
			}, []string{"side"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lend_withdrawals_total",
				Help: "Count of withdrawals by side and kind.",
			}, []string{"side", "kind"}),
			refusedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lend_refused_requests_total",
				Help: "Count of refused API requests by reason.",
			}, []string{"reason"}),
			openPools: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lend_open_pools",
				Help: "Number of pools currently accepting deposits.",
			}),
		}
		prometheus.MustRegister(
			lendRegistry.poolsCreated,
			lendRegistry.deposits,
			lendRegistry.settlements,
			lendRegistry.resolutions,
			lendRegistry.claims,
			lendRegistry.withdrawals,
			lendRegistry.refusedRequests,
			lendRegistry.openPools,
		)
	})
	return lendRegistry
}

func (m *LendMetrics) ObservePoolCreated() {
	if m == nil {
		return
	}
	m.poolsCreated.Inc()
	m.openPools.Inc()
}

func (m *LendMetrics) ObserveDeposit(side string) {
	if m == nil {
		return
	}
	if side == "" {
		side = "unknown"
	}
	m.deposits.WithLabelValues(side).Inc()
}

func (m *LendMetrics) ObserveSettlement(state string) {
	if m == nil {
		return
	}
	if state == "" {
		state = "unknown"
	}
	m.settlements.WithLabelValues(state).Inc()
	m.openPools.Dec()
}

func (m *LendMetrics) ObserveResolution(state string) {
	if m == nil {
		return
	}
	if state == "" {
		state = "unknown"
	}
	m.resolutions.WithLabelValues(state).Inc()
}

func (m *LendMetrics) ObserveClaim(side string) {
	if m == nil {
		return
	}
	if side == "" {
		side = "unknown"
	}
	m.claims.WithLabelValues(side).Inc()
}

func (m *LendMetrics) ObserveWithdrawal(side, kind string) {
	if m == nil {
		return
	}
	if side == "" {
		side = "unknown"
	}
	if kind == "" {
		kind = "final"
	}
	m.withdrawals.WithLabelValues(side, kind).Inc()
}

func (m *LendMetrics) ObserveRefusedRequest(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.refusedRequests.WithLabelValues(reason).Inc()
}
