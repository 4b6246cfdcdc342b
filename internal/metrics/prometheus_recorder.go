//go:build prometheus

package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports run measurements to a Prometheus registry.
type PrometheusRecorder struct {
	runs        *prom.CounterVec
	partsMoved  prom.Counter
	runSeconds  prom.Histogram
	partSeconds prom.Histogram
}

// NewPrometheusRecorder registers the collectors on reg and returns the
// recorder.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		runs: prom.NewCounterVec(prom.CounterOpts{
			Name: "parts_runs_total",
			Help: "Detection runs by outcome.",
		}, []string{"outcome"}),
		partsMoved: prom.NewCounter(prom.CounterOpts{
			Name: "parts_classified_dirty_total",
			Help: "Parts classified changed, added or removed.",
		}),
		runSeconds: prom.NewHistogram(prom.HistogramOpts{
			Name:    "parts_run_duration_seconds",
			Help:    "Wall time of a full detection run.",
			Buckets: prom.DefBuckets,
		}),
		partSeconds: prom.NewHistogram(prom.HistogramOpts{
			Name:    "parts_fingerprint_duration_seconds",
			Help:    "Wall time of one part's fingerprint computation.",
			Buckets: prom.DefBuckets,
		}),
	}
	reg.MustRegister(r.runs, r.partsMoved, r.runSeconds, r.partSeconds)
	return r
}

func (r *PrometheusRecorder) RunCompleted(clean bool, changed, added, removed int, elapsed time.Duration) {
	outcome := "clean"
	if !clean {
		outcome = "dirty"
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.partsMoved.Add(float64(changed + added + removed))
	r.runSeconds.Observe(elapsed.Seconds())
}

func (r *PrometheusRecorder) PartFingerprinted(part string, files int, elapsed time.Duration) {
	r.partSeconds.Observe(elapsed.Seconds())
}
