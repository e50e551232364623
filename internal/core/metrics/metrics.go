package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine's prometheus collector set. One instance is created
// at wiring time and injected into the usecases and the gateway client.
type Metrics struct {
	transactionsCreated *prometheus.CounterVec
	transitionsApplied  *prometheus.CounterVec
	effectsApplied      *prometheus.CounterVec
	duplicateEffects    prometheus.Counter
	gatewayRequests     *prometheus.CounterVec
	gatewayLatency      prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		transactionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_created_total",
			Help: "Transactions created, by type and initial status.",
		}, []string{"type", "status"}),
		transitionsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transitions_applied_total",
			Help: "Committed status transitions, by target status.",
		}, []string{"status"}),
		effectsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_effects_applied_total",
			Help: "Wallet deltas committed, by direction.",
		}, []string{"direction"}),
		duplicateEffects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_duplicate_effects_total",
			Help: "Mutations rejected by the idempotency guard.",
		}),
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_gateway_requests_total",
			Help: "Outbound gateway calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		gatewayLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_gateway_request_seconds",
			Help:    "Latency of outbound gateway calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) TransactionCreated(txType, status string) {
	m.transactionsCreated.WithLabelValues(txType, status).Inc()
}

func (m *Metrics) TransitionApplied(status string) {
	m.transitionsApplied.WithLabelValues(status).Inc()
}

func (m *Metrics) EffectApplied(direction string) {
	m.effectsApplied.WithLabelValues(direction).Inc()
}

func (m *Metrics) DuplicateEffect() {
	m.duplicateEffects.Inc()
}

func (m *Metrics) GatewayRequest(operation, outcome string, elapsed time.Duration) {
	m.gatewayRequests.WithLabelValues(operation, outcome).Inc()
	m.gatewayLatency.Observe(elapsed.Seconds())
}
