// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GRPCServerHandlingSeconds is a histogram for gRPC server request latencies
	GRPCServerHandlingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_server_handling_seconds",
			Help:    "Histogram of response latency (seconds) of gRPC that had been application-level handled by the server.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "code"},
	)

	// HTTPRequestSeconds is a histogram for HTTP handler latencies
	HTTPRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latency (seconds).",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"route", "code"},
	)

	// InferenceBatchSize tracks submitted batch sizes per task
	InferenceBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_batch_size",
			Help:    "Histogram of batch sizes submitted to the engine.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
		[]string{"task"},
	)

	// InferenceLatencySeconds is engine-only latency per model
	InferenceLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Histogram of engine run latency (seconds).",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"model"},
	)

	// TaskOperations counts task operations by outcome
	TaskOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_operations_total",
			Help: "Count of task operations by task, operation and outcome.",
		},
		[]string{"task", "op", "outcome"},
	)

	// DecodeSkipped counts slots dropped during decode
	DecodeSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decode_skipped_total",
			Help: "Count of batch slots whose output could not be decoded.",
		},
		[]string{"task"},
	)

	// ResultsFetched counts records produced by fetch
	ResultsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "results_fetched_total",
			Help: "Count of result records produced by fetch.",
		},
		[]string{"task"},
	)

	// HealthStatus is a gauge indicating the health status of the service
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordGRPCLatency records the latency of a gRPC method call
func RecordGRPCLatency(method, code string, seconds float64) {
	GRPCServerHandlingSeconds.WithLabelValues(method, code).Observe(seconds)
}

// RecordHTTPLatency records the latency of an HTTP route
func RecordHTTPLatency(route, code string, seconds float64) {
	HTTPRequestSeconds.WithLabelValues(route, code).Observe(seconds)
}

// RecordInferenceBatch records the batch size for a submit
func RecordInferenceBatch(task string, size int) {
	InferenceBatchSize.WithLabelValues(task).Observe(float64(size))
}

// NewInferenceTimer starts a timer observed into InferenceLatencySeconds
func NewInferenceTimer(model string) *prometheus.Timer {
	return prometheus.NewTimer(InferenceLatencySeconds.WithLabelValues(model))
}

// RecordTaskOp counts one task operation; err == nil is "ok"
func RecordTaskOp(task, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	TaskOperations.WithLabelValues(task, op, outcome).Inc()
}

// RecordFetch records one successful fetch
func RecordFetch(task string, results, skipped int) {
	ResultsFetched.WithLabelValues(task).Add(float64(results))
	DecodeSkipped.WithLabelValues(task).Add(float64(skipped))
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
