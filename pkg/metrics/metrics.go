// Package metrics exposes Prometheus counters and histograms for one
// deployment run. Handler returns a scrape handler for them; no peleka
// command serves it over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peleka_deployments_total",
			Help: "Total number of deployment runs by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	DeploymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peleka_deployment_duration_seconds",
			Help:    "Deployment duration in seconds by strategy",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"strategy"},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peleka_rollbacks_total",
			Help: "Total number of rollbacks, manual or automatic, by reason",
		},
		[]string{"reason"},
	)

	HealthCheckPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peleka_health_check_polls_total",
			Help: "Total number of health check runs by outcome (healthy or unhealthy), one per run",
		},
		[]string{"classification"},
	)

	HealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peleka_health_check_duration_seconds",
			Help:    "Time from start_container to a healthy poll result",
			Buckets: prometheus.DefBuckets,
		},
	)

	OrphansRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peleka_orphans_removed_total",
			Help: "Total number of orphaned managed containers removed by the sweep",
		},
	)

	OrphanRemovalFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peleka_orphan_removal_failures_total",
			Help: "Total number of orphaned containers the sweep failed to remove",
		},
	)

	LockAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peleka_lock_acquisitions_total",
			Help: "Total number of deploy lock acquisition attempts by outcome",
		},
		[]string{"outcome"}, // acquired (stale takeovers included), forced, held
	)

	HookFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peleka_hook_failures_total",
			Help: "Total number of hook script failures by lifecycle point",
		},
		[]string{"point"},
	)

	ImagePullDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peleka_image_pull_duration_seconds",
			Help:    "Time taken to pull the target image",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		DeploymentsTotal,
		DeploymentDuration,
		RollbacksTotal,
		HealthCheckPollsTotal,
		HealthCheckDuration,
		OrphansRemovedTotal,
		OrphanRemovalFailuresTotal,
		LockAcquisitionsTotal,
		HookFailuresTotal,
		ImagePullDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one operation and reports its duration to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
