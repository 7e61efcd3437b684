package core

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/fiber-connectivity/internal/logging"
	"github.com/signalsfoundry/fiber-connectivity/internal/spatial"
)

const tracerName = "github.com/signalsfoundry/fiber-connectivity/core"

// MetricsRecorder receives engine counters. observability.EngineCollector
// satisfies it; a nil recorder disables metrics.
type MetricsRecorder interface {
	ObserveRun(operation, outcome string, d time.Duration)
	AddFeatures(operation, result string, n int)
	AddVertices(result string, n int)
	SetVertexSetSize(role string, n int)
}

// Env bundles the external capabilities and sinks shared by every engine
// service. It carries no per-run state.
type Env struct {
	projector *Projector
	index     IndexBuilder
	log       logging.Logger
	metrics   MetricsRecorder
	tracer    trace.Tracer
}

// EnvOption customises an Env.
type EnvOption func(*Env)

// WithLogger sets the reporting sink.
func WithLogger(l logging.Logger) EnvOption {
	return func(e *Env) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder wires a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EnvOption {
	return func(e *Env) { e.metrics = m }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) EnvOption {
	return func(e *Env) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithIndexBuilder overrides the spatial index implementation.
func WithIndexBuilder(b IndexBuilder) EnvOption {
	return func(e *Env) {
		if b != nil {
			e.index = b
		}
	}
}

// NewEnv builds an Env around the given transform capability.
func NewEnv(t Transformer, opts ...EnvOption) *Env {
	e := &Env{
		projector: NewProjector(t),
		index:     quadtreeIndex,
		log:       logging.Noop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Projector exposes the Env's coordinate projector.
func (e *Env) Projector() *Projector { return e.projector }

func (e *Env) observeRun(operation string, started time.Time, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.ObserveRun(operation, outcome, time.Since(started))
}

func (e *Env) addFeatures(operation, result string, n int) {
	if e.metrics != nil && n > 0 {
		e.metrics.AddFeatures(operation, result, n)
	}
}

func (e *Env) addVertices(result string, n int) {
	if e.metrics != nil && n > 0 {
		e.metrics.AddVertices(result, n)
	}
}

func quadtreeIndex(items []IndexItem) SpatialIndex {
	converted := make([]spatial.Item, len(items))
	for i, it := range items {
		converted[i] = spatial.Item{ID: it.ID, Bound: it.Bound}
	}
	return spatial.New(converted)
}
