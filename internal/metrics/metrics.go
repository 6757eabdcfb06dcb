// Package metrics records calculation and sweep statistics with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "leapcalc"

	// Labels
	outcomeLabel = "outcome"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
)

// Recorder holds the collectors. A nil *Recorder is valid and records
// nothing, so components can take one unconditionally.
type Recorder struct {
	calculations *prometheus.CounterVec
	duration     prometheus.Histogram
	sweepCases   *prometheus.CounterVec
	sweepsActive prometheus.Gauge
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Number of engine calculations partitioned by outcome.",
		}, []string{outcomeLabel}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "Duration of single engine calculations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		sweepCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_cases_total",
			Help:      "Number of case-study combinations partitioned by outcome.",
		}, []string{outcomeLabel}),
		sweepsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweeps_active",
			Help:      "Number of case studies currently running.",
		}),
	}
	for _, c := range []prometheus.Collector{r.calculations, r.duration, r.sweepCases, r.sweepsActive} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveCalculation records one engine call.
func (r *Recorder) ObserveCalculation(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.calculations.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
	r.duration.Observe(d.Seconds())
}

// ObserveSweepCase records one case-study combination.
func (r *Recorder) ObserveSweepCase(outcome string) {
	if r == nil {
		return
	}
	r.sweepCases.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// SweepStarted increments the active sweep gauge.
func (r *Recorder) SweepStarted() {
	if r == nil {
		return
	}
	r.sweepsActive.Inc()
}

// SweepEnded decrements the active sweep gauge.
func (r *Recorder) SweepEnded() {
	if r == nil {
		return
	}
	r.sweepsActive.Dec()
}
