package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry engine.
type Metrics struct {
	// Operation outcomes by operation and result code ("ok" or the error code).
	Operations *prometheus.CounterVec

	// Operation latency by operation.
	OperationLatency *prometheus.HistogramVec

	// Votes cast by direction and resulting customer status.
	VotesCast *prometheus.CounterVec

	// Current federation size.
	BanksTotal prometheus.Gauge

	// Banks pushed over the complaint threshold.
	EligibilityRevocations prometheus.Counter
}

// New creates a new Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycnet_registry_operations_total",
			Help: "Total registry operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycnet_registry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),

		VotesCast: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycnet_registry_votes_total",
			Help: "Votes cast by direction and resulting KYC status",
		}, []string{"direction", "status"}),

		BanksTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kycnet_registry_banks_total",
			Help: "Current number of registered banks",
		}),

		EligibilityRevocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycnet_registry_eligibility_revocations_total",
			Help: "Times a complaint pushed a bank over the voting threshold",
		}),
	}
}

// ObserveOperation records one engine operation's outcome and latency.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// IncrementVote records a cast vote and the status it produced.
func (m *Metrics) IncrementVote(direction string, approved bool) {
	if m != nil {
		status := "rejected"
		if approved {
			status = "approved"
		}
		m.VotesCast.WithLabelValues(direction, status).Inc()
	}
}

// SetBanksTotal tracks the federation size.
func (m *Metrics) SetBanksTotal(total int) {
	if m != nil {
		m.BanksTotal.Set(float64(total))
	}
}

// IncrementEligibilityRevocation counts a complaint-driven revocation.
func (m *Metrics) IncrementEligibilityRevocation() {
	if m != nil {
		m.EligibilityRevocations.Inc()
	}
}
