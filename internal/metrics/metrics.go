// Package metrics exposes prometheus collectors for check-in cycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Metrics groups the check-in collectors. A nil *Metrics records nothing.
type Metrics struct {
	// Runs counts finished target runs per status.
	Runs *prometheus.CounterVec
	// Attempts counts coordinator attempts per target.
	Attempts *prometheus.CounterVec
	// Refreshes counts external credential refreshes per target.
	Refreshes *prometheus.CounterVec
	// Skipped counts targets filtered out of a cycle per reason.
	Skipped *prometheus.CounterVec
	// CycleDuration observes whole scheduling cycles.
	CycleDuration prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkin_runs_total",
				Help: "Total number of finished target runs",
			},
			[]string{"target", "status"},
		),
		Attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkin_attempts_total",
				Help: "Total number of check-in attempts",
			},
			[]string{"target"},
		),
		Refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkin_credential_refresh_total",
				Help: "Total number of credential refreshes from an external source",
			},
			[]string{"target"},
		),
		Skipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkin_skipped_total",
				Help: "Total number of targets skipped by the scheduler",
			},
			[]string{"reason"},
		),
		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkin_cycle_duration_seconds",
				Help:    "Duration of scheduling cycles in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}
}

func (m *Metrics) RunFinished(target string, ok bool) {
	if m == nil {
		return
	}
	status := StatusFailed
	if ok {
		status = StatusSuccess
	}
	m.Runs.WithLabelValues(target, status).Inc()
}

func (m *Metrics) Attempt(target string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(target).Inc()
}

func (m *Metrics) Refresh(target string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(target).Inc()
}

func (m *Metrics) Skip(reason string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}
