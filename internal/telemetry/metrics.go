package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued    = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_jobs_enqueued_total", Help: "Total jobs enqueued"})
	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_jobs_completed_total", Help: "Jobs completed successfully"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_jobs_failed_total", Help: "Jobs that failed an attempt"})
	RateLimitWaits  = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_rate_limit_rejects_total", Help: "Third-party calls rejected by the rate limiter"})
	QueueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "pipeline_queue_depth", Help: "Eligible PENDING jobs"})
	FraudScoreHist  = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "pipeline_fraud_score", Help: "Fraud scores per check", Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsFailed,
			RateLimitWaits,
			QueueDepthGauge,
			FraudScoreHist,
		)
	})
	return promhttp.Handler()
}
