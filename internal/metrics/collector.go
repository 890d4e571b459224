// Package metrics provides internal prometheus collectors for the HTTP
// surface and the completion path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates SubLLM metrics.
type Collector struct {
	// HTTP surface
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Completion path
	completionsTotal   *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	tokensUsed         *prometheus.CounterVec
	usageEstimated     *prometheus.CounterVec
	streamChunks       *prometheus.CounterVec

	// Batch executor
	batchItemsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates and registers all collectors under the namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.completionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Total number of completion requests",
		},
		[]string{"backend", "model", "status"},
	)

	c.completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend", "model"},
	)

	c.tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"backend", "model", "type"}, // type: prompt, completion
	)

	c.usageEstimated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_estimated_total",
			Help:      "Completions whose token usage was estimated, not backend-reported",
		},
		[]string{"backend", "model"},
	)

	c.streamChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Total number of stream chunks delivered",
		},
		[]string{"backend", "model"},
	)

	c.batchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Total number of batch items executed",
		},
		[]string{"status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCompletion records one completion outcome with its token usage.
func (c *Collector) RecordCompletion(backend, model, status string, duration time.Duration, promptTokens, completionTokens int, estimated bool) {
	c.completionsTotal.WithLabelValues(backend, model, status).Inc()
	c.completionDuration.WithLabelValues(backend, model).Observe(duration.Seconds())
	c.tokensUsed.WithLabelValues(backend, model, "prompt").Add(float64(promptTokens))
	c.tokensUsed.WithLabelValues(backend, model, "completion").Add(float64(completionTokens))
	if estimated {
		c.usageEstimated.WithLabelValues(backend, model).Inc()
	}
}

// RecordStreamChunks records delivered chunks for one stream.
func (c *Collector) RecordStreamChunks(backend, model string, chunks int) {
	c.streamChunks.WithLabelValues(backend, model).Add(float64(chunks))
}

// RecordBatch records the per-item outcomes of one batch run.
func (c *Collector) RecordBatch(succeeded, failed int) {
	c.batchItemsTotal.WithLabelValues("ok").Add(float64(succeeded))
	c.batchItemsTotal.WithLabelValues("error").Add(float64(failed))
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
