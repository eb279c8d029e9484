package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/h2linker/sendqueue/internal/enum"
)

const namespace = "sendqueue"

type Metrics struct {
	SendAttempts        *prometheus.CounterVec
	CircuitBreakerTrips prometheus.Counter
	DrainRuns           *prometheus.CounterVec
	DrainDuration       *prometheus.HistogramVec
	RadarMatches        *prometheus.CounterVec
	DomainChecks        *prometheus.CounterVec
}

// NewMetrics registers every collector on reg, or on the default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SendAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drain",
			Name:      "send_attempts_total",
			Help:      "Send attempts by outcome and error category",
		}, []string{"outcome", "category"}),
		CircuitBreakerTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drain",
			Name:      "circuit_breaker_trips_total",
			Help:      "Runs stopped because a structural failure paused the queue",
		}),
		DrainRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drain",
			Name:      "runs_total",
			Help:      "Drain runs by trigger and result",
		}, []string{"trigger", "result"}),
		DrainDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "drain",
			Name:      "duration_seconds",
			Help:      "Wall time of one drain run, pacing delays included",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"trigger"}),
		RadarMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radar",
			Name:      "matches_total",
			Help:      "Jobs matched by radar profiles",
		}, []string{"auto_queued"}),
		DomainChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dns",
			Name:      "domain_checks_total",
			Help:      "Recipient domain checks by result",
		}, []string{"valid"}),
	}
}

func (m *Metrics) ObserveAttempt(outcome enum.SendStatus, category enum.SmtpErrorCategory) {
	if m == nil {
		return
	}
	m.SendAttempts.WithLabelValues(string(outcome), string(category)).Inc()
}

func (m *Metrics) ObserveRun(trigger enum.DrainTrigger, result string, seconds float64) {
	if m == nil {
		return
	}
	m.DrainRuns.WithLabelValues(string(trigger), result).Inc()
	m.DrainDuration.WithLabelValues(string(trigger)).Observe(seconds)
}

func (m *Metrics) TripCircuitBreaker() {
	if m == nil {
		return
	}
	m.CircuitBreakerTrips.Inc()
}

func (m *Metrics) ObserveRadarMatches(autoQueued bool, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RadarMatches.WithLabelValues(strconv.FormatBool(autoQueued)).Add(float64(n))
}

func (m *Metrics) ObserveDomainCheck(valid bool) {
	if m == nil {
		return
	}
	m.DomainChecks.WithLabelValues(strconv.FormatBool(valid)).Inc()
}
