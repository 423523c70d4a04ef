package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	spotPrice      *prometheus.GaugeVec
	evalLatency    prometheus.Histogram
	activeSessions prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scalppulse_signals_total",
				Help: "Total number of emitted trading signals",
			},
			[]string{"direction", "tier"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scalppulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		spotPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scalppulse_spot_price",
				Help: "Last observed spot price for an instrument",
			},
			[]string{"instrument"},
		),
		evalLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scalppulse_candle_eval_seconds",
				Help:    "Duration of one candle-close evaluation in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scalppulse_active_sessions",
				Help: "Number of live trading sessions",
			},
		),
	}
}

// RecordSignal records one emitted signal.
func (r *Recorder) RecordSignal(direction, tier string) {
	r.signalsTotal.WithLabelValues(direction, tier).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSpot records the last spot price for an instrument.
func (r *Recorder) RecordSpot(instrument string, price float64) {
	r.spotPrice.WithLabelValues(instrument).Set(price)
}

// RecordEvalLatency records one candle evaluation duration in seconds.
func (r *Recorder) RecordEvalLatency(seconds float64) {
	r.evalLatency.Observe(seconds)
}

// SetActiveSessions records the live session count.
func (r *Recorder) SetActiveSessions(n int) {
	r.activeSessions.Set(float64(n))
}
