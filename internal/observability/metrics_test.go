package observability

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveRunRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveRun("connectivity", "ok", 20*time.Millisecond)
	collector.ObserveRun("connectivity", "error", time.Millisecond)

	if got := testutil.ToFloat64(collector.Runs.WithLabelValues("connectivity", "ok")); got != 1 {
		t.Fatalf("fiber_runs_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "fiber_run_duration_seconds", map[string]string{
		"operation": "connectivity",
	}); count != 2 {
		t.Fatalf("fiber_run_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestCountersIgnoreNonPositive(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.AddFeatures("duplicates", "searched", 7)
	collector.AddFeatures("duplicates", "searched", 0)
	collector.AddVertices("fixed", 3)
	collector.AddVertices("fixed", -1)

	if got := testutil.ToFloat64(collector.Features.WithLabelValues("duplicates", "searched")); got != 7 {
		t.Fatalf("fiber_features_total = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.Vertices.WithLabelValues("fixed")); got != 3 {
		t.Fatalf("fiber_vertices_total = %v, want 3", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *EngineCollector
	c.ObserveRun("usage", "ok", time.Second)
	c.AddFeatures("usage", "changed", 1)
	c.AddVertices("fixed", 1)
	c.SetVertexSetSize("splice", 1)
	if err := c.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("WriteTextfile on nil collector: %v", err)
	}
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}
	second.AddFeatures("invalid", "invalid", 2)
	if got := testutil.ToFloat64(first.Features.WithLabelValues("invalid", "invalid")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestMetricsHandlerAndTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.SetVertexSetSize("infrastructure", 1234)
	collector.ObserveRun("usage", "ok", time.Millisecond)
	collector.AddFeatures("usage", "changed", 1)
	collector.AddVertices("coincident", 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"fiber_runs_total",
		"fiber_run_duration_seconds",
		"fiber_features_total",
		"fiber_vertices_total",
		"fiber_vertex_set_points",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, "1234") {
		t.Fatalf("/metrics output missing vertex set gauge value: %s", body)
	}

	path := filepath.Join(t.TempDir(), "fiber.prom")
	if err := collector.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(raw), `fiber_vertex_set_points{role="infrastructure"} 1234`) {
		t.Fatalf("textfile missing gauge: %s", raw)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
