package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BOMMesh/internal/testutil"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", Subsystem: "unit"}, nil)
	require.NoError(t, err)
	return c
}

func scrapeMetrics(t *testing.T, collector MetricsCollector) string {
	t.Helper()
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

// metricValue returns the sample value of the first line starting with series.
func metricValue(t *testing.T, output, series string) float64 {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "#") || !strings.HasPrefix(line, series+" ") {
			continue
		}
		fields := strings.Fields(line)
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		require.NoError(t, err)
		return v
	}
	t.Fatalf("series %s not found", series)
	return 0
}

func TestNewMetricsCollector_RequiresNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewMetricsCollector_RuntimeCollectors(t *testing.T) {
	c, err := NewMetricsCollector(CollectorConfig{
		Namespace:            "bommesh",
		EnableGoMetrics:      true,
		EnableProcessMetrics: true,
	}, nil)
	require.NoError(t, err)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, "go_goroutines")
}

func TestCounter_FullyQualifiedName(t *testing.T) {
	c := newTestCollector(t)
	c.Counter("scopes_total", "scopes", "kind").WithLabelValues("product").Add(2)

	assert.Equal(t, 2.0, metricValue(t, scrapeMetrics(t, c), `test_unit_scopes_total{kind="product"}`))
}

func TestCounter_SameNameSharesVec(t *testing.T) {
	c := newTestCollector(t)
	a := c.Counter("runs_total", "runs", "status")
	b := c.Counter("runs_total", "runs", "status")
	assert.Same(t, a, b)

	a.WithLabelValues("ok").Inc()
	b.WithLabelValues("ok").Inc()
	assert.Equal(t, 2.0, metricValue(t, scrapeMetrics(t, c), `test_unit_runs_total{status="ok"}`))
}

func TestTypeMismatch_ReturnsDetachedVec(t *testing.T) {
	log := testutil.NewMockLogger()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test"}, log)
	require.NoError(t, err)

	c.Counter("dual", "as counter")
	g := c.Gauge("dual", "as gauge")
	require.NotNil(t, g)
	g.WithLabelValues().Set(5)

	assert.True(t, log.HasMessage("warn", "Metric type mismatch"))
	assert.NotContains(t, scrapeMetrics(t, c), "test_dual 5")
}

func TestGauge_NoLabels(t *testing.T) {
	c := newTestCollector(t)
	g := c.Gauge("in_flight", "in flight").WithLabelValues()
	g.Inc()
	g.Inc()
	g.Dec()
	assert.Equal(t, 1.0, metricValue(t, scrapeMetrics(t, c), "test_unit_in_flight"))
}

func TestHistogram_DefaultBuckets(t *testing.T) {
	c := newTestCollector(t)
	c.Histogram("latency_seconds", "latency", nil, "kind").WithLabelValues("component").Observe(0.2)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_latency_seconds_bucket{kind="component",le="0.25"} 1`)
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_latency_seconds_count{kind="component"}`))
}

func TestConcurrentRegistration(t *testing.T) {
	c := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Counter("shared_total", "shared").WithLabelValues().Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20.0, metricValue(t, scrapeMetrics(t, c), "test_unit_shared_total"))
}

func TestMustRegister_CustomCollector(t *testing.T) {
	c := newTestCollector(t)
	c.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "custom_gauge", Help: "custom"}, func() float64 { return 42 }))

	assert.Equal(t, 42.0, metricValue(t, scrapeMetrics(t, c), "custom_gauge"))
}
