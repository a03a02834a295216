package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts resolver outcomes.
type Metrics struct {
	Resolutions *prometheus.CounterVec
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewMetrics registers the resolver metrics on reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidtrack_identity_resolutions_total",
			Help: "Identifier resolutions by target and outcome (exact, prefix, numeric, not_found, error)",
		}, []string{"target", "outcome"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidtrack_identity_cache_hits_total",
			Help: "Resolver cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidtrack_identity_cache_misses_total",
			Help: "Resolver cache misses",
		}),
	}
}

func (m *Metrics) observe(target, outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(target, outcome).Inc()
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}
