package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the remittance engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	transfersTotal     *prometheus.CounterVec
	transferDuration   *prometheus.HistogramVec
	feeTimersArmed     prometheus.Gauge
	feeAttemptsTotal   *prometheus.CounterVec
	contributionsTotal *prometheus.CounterVec
	statusTransitions  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remit_transfers_total",
				Help: "Total number of provider transfers by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		transferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remit_transfer_duration_seconds",
				Help:    "Duration of provider transfers in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
			},
			[]string{"kind"},
		),
		feeTimersArmed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remit_fee_timers_armed",
				Help: "Number of fee collection timers currently armed",
			},
		),
		feeAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remit_fee_attempts_total",
				Help: "Total number of fee collection attempts by outcome",
			},
			[]string{"outcome"},
		),
		contributionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remit_contributions_total",
				Help: "Total number of contributions by outcome",
			},
			[]string{"outcome"},
		),
		statusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remit_wallet_status_transitions_total",
				Help: "Total number of wallet status transitions",
			},
			[]string{"from", "to"},
		),
	}
}

// RecordTransfer records a provider transfer and its latency.
func (m *Metrics) RecordTransfer(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(kind, outcome).Inc()
	m.transferDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetFeeTimersArmed sets the number of armed fee timers.
func (m *Metrics) SetFeeTimersArmed(n int) {
	if m == nil {
		return
	}
	m.feeTimersArmed.Set(float64(n))
}

// RecordFeeAttempt records one fee collection attempt.
func (m *Metrics) RecordFeeAttempt(outcome string) {
	if m == nil {
		return
	}
	m.feeAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordContribution records a contribution outcome.
func (m *Metrics) RecordContribution(outcome string) {
	if m == nil {
		return
	}
	m.contributionsTotal.WithLabelValues(outcome).Inc()
}

// RecordStatusTransition records a wallet status change.
func (m *Metrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}
