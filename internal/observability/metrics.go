package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claymore_http_requests_total",
		Help: "HTTP requests by path and status.",
	}, []string{"path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claymore_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claymore_queue_deliveries_total",
		Help: "Queue deliveries by queue and outcome.",
	}, []string{"queue", "outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claymore_queue_retries_total",
		Help: "Deliveries republished with an incremented attempt header.",
	}, []string{"queue"})

	dropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claymore_queue_drops_total",
		Help: "Deliveries dropped after exhausting the retry ceiling.",
	}, []string{"queue"})

	credentialWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claymore_credential_checkout_seconds",
		Help:    "Time spent acquiring an LLM credential.",
		Buckets: []float64{.005, .01, .05, .1, .5, 1, 5},
	})

	llmCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claymore_llm_calls_total",
		Help: "LLM chat completions by model and result.",
	}, []string{"model", "result"})
)

// ObserveDelivery records one consumed delivery and its outcome.
func ObserveDelivery(queue, outcome string) {
	deliveriesTotal.WithLabelValues(queue, outcome).Inc()
}

// ObserveRetry records a republish with incremented attempts.
func ObserveRetry(queue string) { retriesTotal.WithLabelValues(queue).Inc() }

// ObserveDrop records a delivery dropped at the retry ceiling.
func ObserveDrop(queue string) { dropsTotal.WithLabelValues(queue).Inc() }

// ObserveCredentialWait records how long a checkout took.
func ObserveCredentialWait(d time.Duration) { credentialWait.Observe(d.Seconds()) }

// ObserveLLMCall records one chat completion attempt.
func ObserveLLMCall(model, result string) {
	llmCallsTotal.WithLabelValues(model, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware records request counts and latency per route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
