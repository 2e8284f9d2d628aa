package observability

import (
	"errors"
	"net/http"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// MetricsCollector holds the gRPC server metrics and the verification
// counters, all registered on one registry.
type MetricsCollector struct {
	registry      *prometheus.Registry
	serverMetrics *grpcprom.ServerMetrics

	uploads     *prometheus.CounterVec
	uploadBytes prometheus.Histogram
	submissions *prometheus.CounterVec
	jobs        *prometheus.CounterVec
}

// InitMetrics creates the collectors on a fresh registry.
func InitMetrics() (*MetricsCollector, error) {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		serverMetrics: grpcprom.NewServerMetrics(
			grpcprom.WithServerHandlingTimeHistogram(
				grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}),
			),
		),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_uploads_total",
			Help: "Evidence uploads by evidence type and result.",
		}, []string{"type", "result"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verification_upload_bytes",
			Help:    "Size of stored evidence objects.",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_submissions_total",
			Help: "Verification records created, by result.",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_processing_jobs_total",
			Help: "Evidence processing jobs finished, by result.",
		}, []string{"result"}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		mc.serverMetrics,
		mc.uploads,
		mc.uploadBytes,
		mc.submissions,
		mc.jobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		errs = append(errs, mc.registry.Register(c))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return mc, nil
}

// GetServerMetrics returns the gRPC server metrics
func (mc *MetricsCollector) GetServerMetrics() *grpcprom.ServerMetrics {
	return mc.serverMetrics
}

// GetHandler returns the HTTP handler for the /metrics endpoint
func (mc *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}

// ObserveUpload counts one upload attempt; size is recorded on success.
func (mc *MetricsCollector) ObserveUpload(evidenceType, result string, size int64) {
	if evidenceType == "" {
		evidenceType = "unknown"
	}
	mc.uploads.WithLabelValues(evidenceType, result).Inc()
	if result == ResultSuccess {
		mc.uploadBytes.Observe(float64(size))
	}
}

func (mc *MetricsCollector) ObserveSubmission(result string) {
	mc.submissions.WithLabelValues(result).Inc()
}

func (mc *MetricsCollector) ObserveJob(result string) {
	mc.jobs.WithLabelValues(result).Inc()
}
