package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineMetrics_Registers(t *testing.T) {
	c := newTestCollector(t)
	m := NewEngineMetrics(c)
	require.NotNil(t, m)
	assert.NotNil(t, m.VariantsTotal)
	assert.NotNil(t, m.SinkWritesTotal)
	assert.NotNil(t, m.HTTPActiveRequests)
}

func TestNewEngineMetrics_NilCollectorIsNoop(t *testing.T) {
	m := NewEngineMetrics(nil)
	assert.NotPanics(t, func() {
		RecordRun(m, "single", 3, 6, time.Second, nil)
		RecordSinkWrite(m, "kafka", errors.New("down"))
		RecordCacheAccess(m, true)
		RecordHTTPRequest(m, "GET", "/healthz", 200, time.Millisecond)
		RecordMessageConsumed(m, "combinator.requests", nil)
		m.HTTPActiveRequests.WithLabelValues("GET").Inc()
	})
}

func TestRecordRun(t *testing.T) {
	c := newTestCollector(t)
	m := NewEngineMetrics(c)

	RecordRun(m, "general", 6, 135, 20*time.Millisecond, nil)
	RecordRun(m, "general", 6, 0, time.Millisecond, errors.New("cancelled"))

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_variants_total{mode="general"} 135`)
	assert.Contains(t, out, `test_runs_total{mode="general",status="success"} 1`)
	assert.Contains(t, out, `test_runs_total{mode="general",status="failure"} 1`)
	assert.Contains(t, out, `test_run_duration_seconds_count{mode="general"} 2`)
	assert.Contains(t, out, "test_sites_count_count 2")
}

func TestRecordSinkWriteAndCache(t *testing.T) {
	c := newTestCollector(t)
	m := NewEngineMetrics(c)

	RecordSinkWrite(m, "postgres", nil)
	RecordSinkWrite(m, "minio", errors.New("boom"))
	RecordCacheAccess(m, true)
	RecordCacheAccess(m, false)
	RecordCacheAccess(m, false)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_sink_writes_total{sink="postgres",status="success"} 1`)
	assert.Contains(t, out, `test_sink_writes_total{sink="minio",status="failure"} 1`)
	assert.Contains(t, out, "test_cache_hits_total 1")
	assert.Contains(t, out, "test_cache_misses_total 2")
}

func TestRecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)
	m := NewEngineMetrics(c)

	RecordHTTPRequest(m, "POST", "/api/v1/substitutions", 201, 100*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_http_requests_total{method="POST",path="/api/v1/substitutions",status_code="201"} 1`)
	assert.Contains(t, out, `test_http_request_duration_seconds_count{method="POST",path="/api/v1/substitutions"} 1`)
}

//Personal.AI order the ending
