package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/h2linker/sendqueue/internal/enum"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAttempt(enum.SendStatusSuccess, "")
	m.ObserveAttempt(enum.SendStatusFailed, enum.SmtpErrorAuthFailed)
	m.ObserveAttempt(enum.SendStatusFailed, enum.SmtpErrorAuthFailed)
	m.TripCircuitBreaker()
	m.ObserveRun(enum.DrainTriggerCron, "ok", 1.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendAttempts.WithLabelValues("success", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SendAttempts.WithLabelValues("failed", "auth_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerTrips))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DrainRuns.WithLabelValues("cron", "ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt(enum.SendStatusSuccess, "")
		m.ObserveRun(enum.DrainTriggerUser, "ok", 0)
		m.TripCircuitBreaker()
	})
}
