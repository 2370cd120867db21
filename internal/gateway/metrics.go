package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records contributor endpoint traffic. A nil *Metrics is a no-op.
type Metrics struct {
	requests    *prometheus.CounterVec
	waits       *prometheus.CounterVec
	waitSeconds *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contributor_stats_contributor_requests_total",
			Help: "Contributor list requests by outcome.",
		}, []string{"outcome"}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contributor_stats_rate_limit_waits_total",
			Help: "Rate-limit waits by reason.",
		}, []string{"reason"}),
		waitSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contributor_stats_rate_limit_wait_seconds_total",
			Help: "Seconds spent waiting on rate limits by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.waits, m.waitSeconds)
	}
	return m
}

func (m *Metrics) observeRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeWait(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.waits.WithLabelValues(reason).Inc()
	m.waitSeconds.WithLabelValues(reason).Add(d.Seconds())
}
