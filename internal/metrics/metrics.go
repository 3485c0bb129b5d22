package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "cramwell"

// Metrics owns a private registry with every pipeline collector.
type Metrics struct {
	registry *prometheus.Registry

	ingestions       *prometheus.CounterVec
	extractions      *prometheus.CounterVec
	chunksPerDoc     prometheus.Histogram
	cacheRequests    *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	backendFailures  *prometheus.CounterVec
	heapBytes        prometheus.Gauge
	forcedCollection prometheus.Counter
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ingestions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Document ingestions by outcome.",
		}, []string{"outcome"}),
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_attempts_total",
			Help:      "Extraction strategy attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		chunksPerDoc: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunks_per_document",
			Help:      "Number of chunks produced per ingested document.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_cache_requests_total",
			Help:      "Artifact cache lookups by feature type and result.",
		}, []string{"feature", "result"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Question answering latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		backendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Failed calls to external backends by operation.",
		}, []string{"operation"}),
		heapBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_alloc_bytes",
			Help:      "Heap bytes sampled by the memory monitor.",
		}),
		forcedCollection: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_gc_total",
			Help:      "Garbage collections forced by the memory monitor.",
		}),
	}
}

// Registry exposes the registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveIngestion(outcome string, chunks int) {
	m.ingestions.WithLabelValues(outcome).Inc()
	if chunks > 0 {
		m.chunksPerDoc.Observe(float64(chunks))
	}
}

func (m *Metrics) ObserveExtraction(strategy, outcome string) {
	m.extractions.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) ObserveCache(feature string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(feature, result).Inc()
}

func (m *Metrics) ObserveQuery(outcome string, elapsed time.Duration) {
	m.queryDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveBackendFailure(operation string) {
	m.backendFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveHeap(bytes uint64, forced bool) {
	m.heapBytes.Set(float64(bytes))
	if forced {
		m.forcedCollection.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
