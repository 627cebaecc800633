package prometheus

import (
	"strconv"
	"time"
)

// Label values shared by callers.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// EngineMetrics holds every metric the combinator records.
type EngineMetrics struct {
	VariantsTotal   CounterVec
	RunsTotal       CounterVec
	RunDuration     HistogramVec
	SitesCount      HistogramVec
	SinkWritesTotal CounterVec
	CacheHitsTotal  CounterVec
	CacheMisses     CounterVec

	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	MessagesConsumedTotal CounterVec
}

var (
	DefaultRunDurationBuckets  = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120, 600}
	DefaultSitesBuckets        = []float64{0, 1, 2, 4, 8, 16, 32, 64, 128}
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
)

// NewEngineMetrics registers the combinator metrics on collector.  A nil
// collector yields metrics that record nothing.
func NewEngineMetrics(collector MetricsCollector) *EngineMetrics {
	if collector == nil {
		return &EngineMetrics{
			VariantsTotal:         noopCounterVec{},
			RunsTotal:             noopCounterVec{},
			RunDuration:           noopHistogramVec{},
			SitesCount:            noopHistogramVec{},
			SinkWritesTotal:       noopCounterVec{},
			CacheHitsTotal:        noopCounterVec{},
			CacheMisses:           noopCounterVec{},
			HTTPRequestsTotal:     noopCounterVec{},
			HTTPRequestDuration:   noopHistogramVec{},
			HTTPActiveRequests:    noopGaugeVec{},
			MessagesConsumedTotal: noopCounterVec{},
		}
	}

	m := &EngineMetrics{}
	m.VariantsTotal = collector.RegisterCounter("variants_total", "Composite variants produced", "mode")
	m.RunsTotal = collector.RegisterCounter("runs_total", "Enumeration runs", "mode", "status")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Enumeration run duration", DefaultRunDurationBuckets, "mode")
	m.SitesCount = collector.RegisterHistogram("sites_count", "Eligible substitution sites per run", DefaultSitesBuckets)
	m.SinkWritesTotal = collector.RegisterCounter("sink_writes_total", "Variant batches written to sinks", "sink", "status")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Result cache hits")
	m.CacheMisses = collector.RegisterCounter("cache_misses_total", "Result cache misses")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	m.MessagesConsumedTotal = collector.RegisterCounter("messages_consumed_total", "Enumeration requests consumed", "topic", "status")
	return m
}

func status(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusFailure
}

// RecordRun records one finished enumeration run.
func RecordRun(m *EngineMetrics, mode string, sites int, variants uint64, duration time.Duration, err error) {
	m.RunsTotal.WithLabelValues(mode, status(err == nil)).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.SitesCount.WithLabelValues().Observe(float64(sites))
	if variants > 0 {
		m.VariantsTotal.WithLabelValues(mode).Add(float64(variants))
	}
}

func RecordSinkWrite(m *EngineMetrics, sink string, err error) {
	m.SinkWritesTotal.WithLabelValues(sink, status(err == nil)).Inc()
}

func RecordCacheAccess(m *EngineMetrics, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues().Inc()
		return
	}
	m.CacheMisses.WithLabelValues().Inc()
}

func RecordHTTPRequest(m *EngineMetrics, method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordMessageConsumed(m *EngineMetrics, topic string, err error) {
	m.MessagesConsumedTotal.WithLabelValues(topic, status(err == nil)).Inc()
}

//Personal.AI order the ending
