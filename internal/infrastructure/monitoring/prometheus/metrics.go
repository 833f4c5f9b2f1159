package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/intelligence/fallback"
)

// MatchingMetrics holds every metric BOMMesh exports.
type MatchingMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  *prometheus.GaugeVec

	// Run Layer
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	RunsInFlight *prometheus.GaugeVec

	// Scope Layer
	ScopesTotal       *prometheus.CounterVec
	ScopeDuration     *prometheus.HistogramVec
	ScopeMatchingRate *prometheus.HistogramVec
	MatchedBOMTotal   *prometheus.CounterVec
	UnmatchedBOMTotal *prometheus.CounterVec

	// Fallback Layer
	FallbackCallsTotal     *prometheus.CounterVec
	FallbackCallDuration   *prometheus.HistogramVec
	FallbackProposalsTotal *prometheus.CounterVec

	// Sinks
	SinkErrorsTotal *prometheus.CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	DefaultScopeDurationBuckets    = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 60, 180}
	DefaultFallbackDurationBuckets = []float64{.5, 1, 2, 5, 10, 30, 60, 120, 180}
	DefaultRateBuckets             = []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, .95, 1}
)

// NewMatchingMetrics registers all metrics on collector.
func NewMatchingMetrics(collector MetricsCollector) *MatchingMetrics {
	return &MatchingMetrics{
		HTTPRequestsTotal:   collector.Counter("http_requests_total", "Total HTTP requests", "method", "path", "status_code"),
		HTTPRequestDuration: collector.Histogram("http_request_duration_seconds", "HTTP request latency", DefaultHTTPDurationBuckets, "method", "path"),
		HTTPActiveRequests:  collector.Gauge("http_active_requests", "Requests currently being served"),

		RunsTotal:    collector.Counter("runs_total", "Hierarchical matching runs", "status"),
		RunDuration:  collector.Histogram("run_duration_seconds", "Wall time of one hierarchical run", DefaultFallbackDurationBuckets),
		RunsInFlight: collector.Gauge("runs_in_flight", "Runs currently executing"),

		ScopesTotal:       collector.Counter("scopes_total", "Matching scopes processed", "kind", "status"),
		ScopeDuration:     collector.Histogram("scope_duration_seconds", "Wall time of one scope", DefaultScopeDurationBuckets, "kind"),
		ScopeMatchingRate: collector.Histogram("scope_matching_rate", "Share of scope BOM rows that received a mesh", DefaultRateBuckets, "kind"),
		MatchedBOMTotal:   collector.Counter("matched_bom_total", "Mesh assignments by method", "kind", "method"),
		UnmatchedBOMTotal: collector.Counter("unmatched_bom_total", "BOM rows left without a mesh", "kind"),

		FallbackCallsTotal:     collector.Counter("fallback_calls_total", "Fallback matcher invocations", "kind", "outcome"),
		FallbackCallDuration:   collector.Histogram("fallback_call_duration_seconds", "Fallback matcher latency", DefaultFallbackDurationBuckets, "kind"),
		FallbackProposalsTotal: collector.Counter("fallback_proposals_total", "Proposals accepted from the fallback matcher", "kind"),

		SinkErrorsTotal: collector.Counter("sink_errors_total", "Failed writes to optional sinks", "sink"),
	}
}

// RequestStarted bumps the in-flight gauge; call the returned func when the
// request is done.
func (m *MatchingMetrics) RequestStarted() func() {
	g := m.HTTPActiveRequests.WithLabelValues()
	g.Inc()
	return g.Dec
}

// ObserveHTTPRequest records one served request.
func (m *MatchingMetrics) ObserveHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveScope records a finished scope.
func (m *MatchingMetrics) ObserveScope(res matching.ScopeResult, elapsed time.Duration) {
	kind := string(res.Scope.Kind)
	if res.Skipped {
		m.ScopesTotal.WithLabelValues(kind, "skipped").Inc()
		return
	}
	m.ScopesTotal.WithLabelValues(kind, "ok").Inc()
	m.ScopeDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	m.ScopeMatchingRate.WithLabelValues(kind).Observe(res.MatchingRate)

	m.MatchedBOMTotal.WithLabelValues(kind, string(matching.MethodCode)).Add(float64(res.CodeMatchedCount))
	m.MatchedBOMTotal.WithLabelValues(kind, string(matching.MethodSpec)).Add(float64(res.SpecMatchedCount))
	m.MatchedBOMTotal.WithLabelValues(kind, string(matching.MethodAI)).Add(float64(res.AIMatchedCount))
	if unmatched := res.TotalBOM - res.MatchedBOMCount; unmatched > 0 {
		m.UnmatchedBOMTotal.WithLabelValues(kind).Add(float64(unmatched))
	}
}

// ObserveFallback implements fallback.Recorder.
func (m *MatchingMetrics) ObserveFallback(scope matching.ScopeKind, outcome fallback.Outcome, elapsed time.Duration, proposals int) {
	kind := string(scope)
	m.FallbackCallsTotal.WithLabelValues(kind, string(outcome)).Inc()
	if outcome == fallback.OutcomeSkipped {
		return
	}
	m.FallbackCallDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if proposals > 0 {
		m.FallbackProposalsTotal.WithLabelValues(kind).Add(float64(proposals))
	}
}

// RunStarted marks a run in flight and returns the func that completes it.
func (m *MatchingMetrics) RunStarted() func(err error) {
	start := time.Now()
	m.RunsInFlight.WithLabelValues().Inc()
	return func(err error) {
		m.RunsInFlight.WithLabelValues().Dec()
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.RunsTotal.WithLabelValues(status).Inc()
		m.RunDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	}
}

// IncSinkError counts a failed report, repository or event write.
func (m *MatchingMetrics) IncSinkError(sink string) {
	m.SinkErrorsTotal.WithLabelValues(sink).Inc()
}

var _ fallback.Recorder = (*MatchingMetrics)(nil)
