package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles Prometheus metrics for the connectivity engine. It
// satisfies core.MetricsRecorder.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Runs          *prometheus.CounterVec
	RunDurations  *prometheus.HistogramVec
	Features      *prometheus.CounterVec
	Vertices      *prometheus.CounterVec
	VertexSetSize *prometheus.GaugeVec
}

// NewEngineCollector registers engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiber_runs_total",
		Help: "Total number of engine runs, labeled by operation and outcome.",
	}, []string{"operation", "outcome"}), "fiber_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiber_run_duration_seconds",
		Help:    "Engine run latency in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"operation"}), "fiber_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	features, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiber_features_total",
		Help: "Features handled by engine runs, labeled by operation and result.",
	}, []string{"operation", "result"}), "fiber_features_total")
	if err != nil {
		return nil, err
	}

	vertices, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiber_vertices_total",
		Help: "Vertices examined by connectivity runs, labeled by result.",
	}, []string{"result"}), "fiber_vertices_total")
	if err != nil {
		return nil, err
	}

	setSize, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fiber_vertex_set_points",
		Help: "Size of the reference vertex sets built by the last connectivity run.",
	}, []string{"role"}), "fiber_vertex_set_points")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:      gatherer,
		Runs:          runs,
		RunDurations:  durations,
		Features:      features,
		Vertices:      vertices,
		VertexSetSize: setSize,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRun records one finished run.
func (c *EngineCollector) ObserveRun(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Runs != nil {
		c.Runs.WithLabelValues(operation, outcome).Inc()
	}
	if c.RunDurations != nil {
		c.RunDurations.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// AddFeatures adds n features to the given operation/result counter.
func (c *EngineCollector) AddFeatures(operation, result string, n int) {
	if c == nil || c.Features == nil || n <= 0 {
		return
	}
	c.Features.WithLabelValues(operation, result).Add(float64(n))
}

// AddVertices adds n vertices to the given result counter.
func (c *EngineCollector) AddVertices(result string, n int) {
	if c == nil || c.Vertices == nil || n <= 0 {
		return
	}
	c.Vertices.WithLabelValues(result).Add(float64(n))
}

// SetVertexSetSize updates the vertex set gauge for role.
func (c *EngineCollector) SetVertexSetSize(role string, n int) {
	if c == nil || c.VertexSetSize == nil {
		return
	}
	c.VertexSetSize.WithLabelValues(role).Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the collected metrics in the node_exporter textfile
// format, for batch runs that finish before anything could scrape them.
func (c *EngineCollector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
