package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published prometheus.Counter
	Failed    prometheus.Counter
}

// NewMetrics registers the outbox metrics on reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidtrack_outbox_published_total",
			Help: "Outbox entries published to Kafka",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidtrack_outbox_publish_failures_total",
			Help: "Failed outbox publish attempts",
		}),
	}
}

func (m *Metrics) published(n int) {
	if m != nil && n > 0 {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.Failed.Inc()
	}
}
