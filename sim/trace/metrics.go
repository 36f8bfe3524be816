package trace

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for ledger query counters.
const (
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
)

// LedgerMetrics exports ledger decisions as Prometheus collectors. Unlike
// LedgerTrace it keeps no per-query records, so it stays cheap on long runs.
type LedgerMetrics struct {
	queriesTotal *prometheus.CounterVec
	spentEpsilon *prometheus.GaugeVec
	spentDelta   *prometheus.GaugeVec
}

// NewLedgerMetrics creates the collectors and registers them with reg.
func NewLedgerMetrics(reg prometheus.Registerer) (*LedgerMetrics, error) {
	m := &LedgerMetrics{
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fedsim",
				Subsystem: "ledger",
				Name:      "queries_total",
				Help:      "Private query attempts by node, property and outcome",
			},
			[]string{"node", "property", "outcome"},
		),
		spentEpsilon: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fedsim",
				Subsystem: "ledger",
				Name:      "spent_epsilon",
				Help:      "Epsilon charged to a property under basic composition",
			},
			[]string{"node", "property"},
		),
		spentDelta: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fedsim",
				Subsystem: "ledger",
				Name:      "spent_delta",
				Help:      "Delta charged to a property under basic composition",
			},
			[]string{"node", "property"},
		),
	}
	for _, c := range []prometheus.Collector{m.queriesTotal, m.spentEpsilon, m.spentDelta} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe counts one decision. Safe on a nil receiver.
func (m *LedgerMetrics) Observe(r QueryRecord) {
	if m == nil {
		return
	}
	outcome := OutcomeDenied
	if r.Granted {
		outcome = OutcomeGranted
	}
	m.queriesTotal.WithLabelValues(r.NodeID, r.Property, outcome).Inc()
	m.spentEpsilon.WithLabelValues(r.NodeID, r.Property).Set(r.SpentEpsilon)
	m.spentDelta.WithLabelValues(r.NodeID, r.Property).Set(r.SpentDelta)
}
