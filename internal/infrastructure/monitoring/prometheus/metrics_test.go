package prometheus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/intelligence/fallback"
)

func newTestMatchingMetrics(t *testing.T) (*MatchingMetrics, MetricsCollector) {
	c := newTestCollector(t)
	m := NewMatchingMetrics(c)
	require.NotNil(t, m)
	return m, c
}

func TestObserveScope_CountsMethods(t *testing.T) {
	m, c := newTestMatchingMetrics(t)

	m.ObserveScope(matching.ScopeResult{
		Scope:            matching.Scope{Kind: matching.ScopeComponent, ID: "C1"},
		TotalBOM:         10,
		MatchedBOMCount:  7,
		CodeMatchedCount: 4,
		SpecMatchedCount: 2,
		AIMatchedCount:   1,
		MatchingRate:     0.7,
	}, 20*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_scopes_total{kind="component",status="ok"}`))
	assert.Equal(t, 4.0, metricValue(t, out, `test_unit_matched_bom_total{kind="component",method="code"}`))
	assert.Equal(t, 2.0, metricValue(t, out, `test_unit_matched_bom_total{kind="component",method="spec"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_matched_bom_total{kind="component",method="ai"}`))
	assert.Equal(t, 3.0, metricValue(t, out, `test_unit_unmatched_bom_total{kind="component"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_scope_matching_rate_count{kind="component"}`))
}

func TestObserveScope_Skipped(t *testing.T) {
	m, c := newTestMatchingMetrics(t)

	m.ObserveScope(matching.NewSkippedResult(matching.Scope{Kind: matching.ScopeProduct, ID: "P"}, 0, 3, "no rows"), 0)

	out := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_scopes_total{kind="product",status="skipped"}`))
	assert.NotContains(t, out, "test_unit_scope_duration_seconds_count")
}

func TestObserveFallback(t *testing.T) {
	m, c := newTestMatchingMetrics(t)

	m.ObserveFallback(matching.ScopeComponent, fallback.OutcomeOK, 2*time.Second, 3)
	m.ObserveFallback(matching.ScopeComponent, fallback.OutcomeCacheHit, time.Millisecond, 2)
	m.ObserveFallback(matching.ScopeProduct, fallback.OutcomeSkipped, 0, 0)

	out := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_fallback_calls_total{kind="component",outcome="ok"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_fallback_calls_total{kind="product",outcome="skipped"}`))
	assert.Equal(t, 5.0, metricValue(t, out, `test_unit_fallback_proposals_total{kind="component"}`))
	assert.Equal(t, 2.0, metricValue(t, out, `test_unit_fallback_call_duration_seconds_count{kind="component"}`))
	assert.NotContains(t, out, `test_unit_fallback_call_duration_seconds_count{kind="product"}`)
}

func TestRunStarted(t *testing.T) {
	m, c := newTestMatchingMetrics(t)

	done := m.RunStarted()
	out := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, out, "test_unit_runs_in_flight"))

	done(nil)
	m.RunStarted()(errors.New("boom"))

	out = scrapeMetrics(t, c)
	assert.Equal(t, 0.0, metricValue(t, out, "test_unit_runs_in_flight"))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_runs_total{status="ok"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_runs_total{status="error"}`))
}

func TestObserveHTTPRequest(t *testing.T) {
	m, c := newTestMatchingMetrics(t)

	m.ObserveHTTPRequest("POST", "/api/v1/matching/runs", 201, 150*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_http_requests_total{method="POST",path="/api/v1/matching/runs",status_code="201"}`))
}

func TestRequestStarted_TracksInFlight(t *testing.T) {
	m, c := newTestMatchingMetrics(t)

	done1 := m.RequestStarted()
	done2 := m.RequestStarted()
	assert.Equal(t, 2.0, metricValue(t, scrapeMetrics(t, c), "test_unit_http_active_requests"))

	done1()
	done2()
	assert.Equal(t, 0.0, metricValue(t, scrapeMetrics(t, c), "test_unit_http_active_requests"))
}

func TestIncSinkError(t *testing.T) {
	m, c := newTestMatchingMetrics(t)
	m.IncSinkError("kafka")
	m.IncSinkError("kafka")

	assert.Equal(t, 2.0, metricValue(t, scrapeMetrics(t, c), `test_unit_sink_errors_total{sink="kafka"}`))
}

func TestConcurrentMetricRecording(t *testing.T) {
	m, c := newTestMatchingMetrics(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ObserveFallback(matching.ScopeComponent, fallback.OutcomeOK, time.Millisecond, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100.0, metricValue(t, scrapeMetrics(t, c), `test_unit_fallback_proposals_total{kind="component"}`))
}
