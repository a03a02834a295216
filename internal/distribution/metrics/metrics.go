package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration flows.
type Metrics struct {
	Registered   *prometheus.CounterVec
	Rejected     *prometheus.CounterVec
	TxDuration   *prometheus.HistogramVec
	TxRetries    *prometheus.CounterVec
	QRValidation *prometheus.CounterVec
}

// New registers the distribution metrics on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Registered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidtrack_distributions_registered_total",
			Help: "Committed distributions by programme (general, nutrition)",
		}, []string{"programme"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidtrack_distributions_rejected_total",
			Help: "Rejected distribution attempts by programme and reason",
		}, []string{"programme", "reason"}),
		TxDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aidtrack_distribution_tx_duration_seconds",
			Help:    "Duration of registration transactions including retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"programme"}),
		TxRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidtrack_distribution_tx_retries_total",
			Help: "Registration transactions retried after a unique-constraint conflict",
		}, []string{"programme"}),
		QRValidation: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidtrack_qr_validations_total",
			Help: "QR validations by outcome (eligible, already_distributed, unknown)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncRegistered(programme string) {
	if m != nil {
		m.Registered.WithLabelValues(programme).Inc()
	}
}

func (m *Metrics) IncRejected(programme, reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(programme, reason).Inc()
	}
}

// ObserveTx records the duration of a registration. Call with time.Now() at the
// start of the operation.
func (m *Metrics) ObserveTx(programme string, start time.Time) {
	if m != nil {
		m.TxDuration.WithLabelValues(programme).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) IncRetry(programme string) {
	if m != nil {
		m.TxRetries.WithLabelValues(programme).Inc()
	}
}

func (m *Metrics) IncQRValidation(outcome string) {
	if m != nil {
		m.QRValidation.WithLabelValues(outcome).Inc()
	}
}
