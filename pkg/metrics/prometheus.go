package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions    *prometheus.CounterVec
	tradesClosed *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_decisions_total",
				Help: "Total decisions emitted per asset and action",
			},
			[]string{"asset", "action"},
		),
		tradesClosed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_trades_closed_total",
				Help: "Total closed trades per pattern and outcome",
			},
			[]string{"pattern", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepilot_last_price",
				Help: "Last recorded price for an asset",
			},
			[]string{"asset"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepilot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordDecision records one emitted decision.
func (r *Recorder) RecordDecision(asset, action string) {
	r.decisions.WithLabelValues(asset, action).Inc()
}

// RecordTradeClosed records a closed trade outcome.
func (r *Recorder) RecordTradeClosed(pattern string, win bool) {
	outcome := "loss"
	if win {
		outcome = "win"
	}
	r.tradesClosed.WithLabelValues(pattern, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for an asset.
func (r *Recorder) RecordLastPrice(asset string, price float64) {
	r.lastPrice.WithLabelValues(asset).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
