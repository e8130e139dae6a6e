// Package metrics records pipeline stage timings and failures in
// prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
)

// Metrics implements ports.StageObserver
type Metrics struct {
	StageDuration  *prometheus.HistogramVec
	StageFailures  *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Sessions       prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stemlab_stage_duration_seconds",
			Help:    "Wall time of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7 minutes
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stemlab_stage_failures_total",
			Help: "Total number of failed pipeline stages",
		}, []string{"stage", "kind"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stemlab_active_sessions",
			Help: "Current number of running sessions",
		}),
		Sessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "stemlab_sessions_total",
			Help: "Total number of sessions started",
		}),
	}
}

// ObserveStage records one stage execution
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(stage, string(pkgerrors.KindOf(err))).Inc()
	}
}

// SessionStarted increments the active sessions gauge
func (m *Metrics) SessionStarted() {
	m.Sessions.Inc()
	m.ActiveSessions.Inc()
}

// SessionFinished decrements the active sessions gauge
func (m *Metrics) SessionFinished() {
	m.ActiveSessions.Dec()
}
