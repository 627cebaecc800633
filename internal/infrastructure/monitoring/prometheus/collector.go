package prometheus

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
)

// maxScrapesInFlight bounds concurrent /metrics requests.
const maxScrapesInFlight = 4

// MetricsCollector registers metric vectors against a private registry and
// exposes them over HTTP.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	// Register adds a collector that gathers its own metrics, such as a
	// connection pool exporter.
	Register(collector prometheus.Collector) error
	Handler() http.Handler
	// Gatherer exposes the registry to tests and custom exporters.
	Gatherer() prometheus.Gatherer
}

type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

type Counter interface {
	Inc()
	Add(delta float64)
}

type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

type Histogram interface {
	Observe(value float64)
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Namespace            string
	EnableProcessMetrics bool
	EnableGoMetrics      bool
	// Version, when set, is published as <namespace>_build_info.
	Version     string
	ConstLabels map[string]string
}

type prometheusCollector struct {
	registry   *prometheus.Registry
	namespace  string
	constant   prometheus.Labels
	registered map[string]prometheus.Collector
	mu         sync.Mutex
	logger     logging.Logger
}

// NewMetricsCollector creates a collector with its own registry, so several
// engines in one test binary never collide on the global one.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	c := &prometheusCollector{
		registry:   prometheus.NewRegistry(),
		namespace:  cfg.Namespace,
		constant:   cfg.ConstLabels,
		registered: make(map[string]prometheus.Collector),
		logger:     logger.Named("metrics"),
	}
	if cfg.EnableProcessMetrics {
		if err := c.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace})); err != nil {
			return nil, err
		}
	}
	if cfg.EnableGoMetrics {
		if err := c.registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
	}
	if cfg.Version != "" {
		c.RegisterGauge("build_info", "Build version of the running binary", "version", "goversion").
			WithLabelValues(cfg.Version, runtime.Version()).Set(1)
	}
	return c, nil
}

func (c *prometheusCollector) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(c.registry, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		ErrorLog:            scrapeLogger{c.logger},
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: maxScrapesInFlight,
	}))
}

func (c *prometheusCollector) Register(collector prometheus.Collector) error {
	if err := c.registry.Register(collector); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}

func (c *prometheusCollector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// registerVec registers fresh under name, or returns the vector already
// registered there.  ok is false when that vector has another type or the
// registry refused fresh.
func registerVec[V prometheus.Collector](c *prometheusCollector, kind, name string, fresh V) (vec V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fq := prometheus.BuildFQName(c.namespace, "", name)
	if existing, found := c.registered[fq]; found {
		if vec, ok = existing.(V); !ok {
			c.logger.Warn("metric type mismatch", logging.String("type", kind), logging.String("name", fq))
		}
		return vec, ok
	}
	if err := c.registry.Register(fresh); err != nil {
		c.logger.Error("failed to register metric", logging.String("type", kind), logging.String("name", fq), logging.Err(err))
		return vec, false
	}
	c.registered[fq] = fresh
	return fresh, true
}

func (c *prometheusCollector) RegisterCounter(name, help string, labels ...string) CounterVec {
	vec, ok := registerVec(c, "counter", name, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   c.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.constant,
	}, labels))
	if !ok {
		return noopCounterVec{}
	}
	return counterVec{vec}
}

func (c *prometheusCollector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	vec, ok := registerVec(c, "gauge", name, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   c.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.constant,
	}, labels))
	if !ok {
		return noopGaugeVec{}
	}
	return gaugeVec{vec}
}

// RegisterHistogram uses prometheus.DefBuckets when buckets is nil.
func (c *prometheusCollector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	vec, ok := registerVec(c, "histogram", name, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   c.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.constant,
		Buckets:     buckets,
	}, labels))
	if !ok {
		return noopHistogramVec{}
	}
	return histogramVec{vec}
}

// scrapeLogger routes promhttp's encoding errors to the service logger.
type scrapeLogger struct{ logger logging.Logger }

func (l scrapeLogger) Println(v ...interface{}) {
	l.logger.Error("metrics scrape failed", logging.String("error", fmt.Sprint(v...)))
}

type counterVec struct{ vec *prometheus.CounterVec }

func (v counterVec) WithLabelValues(lvs ...string) Counter { return v.vec.WithLabelValues(lvs...) }

type gaugeVec struct{ vec *prometheus.GaugeVec }

func (v gaugeVec) WithLabelValues(lvs ...string) Gauge { return v.vec.WithLabelValues(lvs...) }

type histogramVec struct{ vec *prometheus.HistogramVec }

func (v histogramVec) WithLabelValues(lvs ...string) Histogram { return v.vec.WithLabelValues(lvs...) }

// The noop vectors stand in when registration fails or metrics are disabled.
type (
	noopCounterVec   struct{}
	noopGaugeVec     struct{}
	noopHistogramVec struct{}
)

func (noopCounterVec) WithLabelValues(...string) Counter     { return noopMetric{} }
func (noopGaugeVec) WithLabelValues(...string) Gauge         { return noopMetric{} }
func (noopHistogramVec) WithLabelValues(...string) Histogram { return noopMetric{} }

type noopMetric struct{}

func (noopMetric) Inc()            {}
func (noopMetric) Dec()            {}
func (noopMetric) Add(float64)     {}
func (noopMetric) Set(float64)     {}
func (noopMetric) Observe(float64) {}

//Personal.AI order the ending
