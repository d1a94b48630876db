// Package metrics holds the process-wide Prometheus collectors for the
// inference service and the trainer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kt_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kt_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kt_predictions_total",
			Help: "Predictions served, by the variant that produced them.",
		},
		[]string{"variant"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kt_fallbacks_total",
			Help: "Requests that fell back to the baseline model, by reason.",
		},
		[]string{"reason"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kt_inference_duration_seconds",
			Help:    "Model forward pass latency by variant and outcome.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
		[]string{"variant", "outcome"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kt_cache_lookups_total",
			Help: "Prediction cache lookups by backend and result.",
		},
		[]string{"backend", "result"},
	)

	TrainEpochAUC = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kt_train_epoch_auc",
			Help: "Evaluation AUC of the most recent epoch.",
		},
		[]string{"model_key"},
	)

	TrainEpochLoss = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kt_train_epoch_loss",
			Help: "Mean training loss of the most recent epoch.",
		},
		[]string{"model_key"},
	)

	SnapshotsPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kt_snapshots_persisted_total",
			Help: "Checkpoints written because evaluation AUC improved.",
		},
		[]string{"model_key"},
	)
)

func ObserveHTTP(method, route, status string, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func ObserveInference(variant string, ok bool, d time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	InferenceDuration.WithLabelValues(variant, outcome).Observe(d.Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
