package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/fiber-connectivity/core"
	"github.com/signalsfoundry/fiber-connectivity/internal/config"
	"github.com/signalsfoundry/fiber-connectivity/internal/crs"
	"github.com/signalsfoundry/fiber-connectivity/internal/logging"
	"github.com/signalsfoundry/fiber-connectivity/internal/observability"
	"github.com/signalsfoundry/fiber-connectivity/kb"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

var errScopeRequired = errors.New("a scope is required: pass --scope NAME or --all")

// app holds the state shared by every subcommand of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	logLevel   string
	logFormat  string
	metricsOut string
	write      bool

	cfg       config.Config
	log       logging.Logger
	registry  *crs.Registry
	store     *kb.KnowledgeBase
	collector *observability.EngineCollector

	mu    sync.Mutex
	dirty map[string]bool
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut}
}

// run loads configuration and layers, executes fn with a run-scoped
// logger and engine Env, then persists committed layers when --write is set.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, env *core.Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	base := logging.New(logging.Config{Level: a.logLevel, Format: a.logFormat, Output: a.errOut})
	ctx, log := logging.WithRunLogger(ctx, base)
	ctx = logging.ContextWithLogger(ctx, log)
	a.log = log.With(logging.String("command", cmd.Name()))

	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.Output = a.errOut
	tracingCfg.Command = cmd.Name()
	tracingCfg.RunID = logging.RunIDFromContext(ctx)
	shutdown, err := observability.InitTracing(ctx, tracingCfg, a.log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdown, a.log)

	a.collector, err = observability.NewEngineCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if a.metricsOut == "" {
			return
		}
		if werr := a.collector.WriteTextfile(a.metricsOut); werr != nil {
			a.log.Warn(ctx, "metrics not written", logging.String("path", a.metricsOut), logging.Err(werr))
		}
	}()

	if err := a.load(ctx); err != nil {
		a.log.Error(ctx, "load failed", logging.Err(err))
		return err
	}

	env := core.NewEnv(a.registry,
		core.WithLogger(a.log),
		core.WithMetricsRecorder(a.collector),
	)
	if err := fn(ctx, env); err != nil {
		a.log.Error(ctx, "command failed", logging.Err(err))
		return err
	}
	if a.write {
		return a.flush(ctx)
	}
	return nil
}

// load reads the configuration, every configured layer and the scopes.
func (a *app) load(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.registry = crs.NewRegistry()
	a.store = kb.NewKnowledgeBase()
	a.dirty = make(map[string]bool)
	a.store.Subscribe(func(e kb.Event) {
		if e.Type != kb.EventLayerCommitted {
			return
		}
		a.mu.Lock()
		a.dirty[e.Layer] = true
		a.mu.Unlock()
	})

	names := make([]string, 0, len(cfg.Layers))
	for name := range cfg.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src := cfg.Layers[name]
		l, err := kb.LoadGeoJSONFile(src.Path, name, src.CRS)
		if err != nil {
			return err
		}
		if err := a.store.AddLayer(l); err != nil {
			return err
		}
		a.log.Debug(ctx, "layer loaded",
			logging.String("layer", name),
			logging.Int("features", l.Len()),
			logging.String("crs", src.CRS),
		)
	}

	if cfg.Scopes.Path != "" {
		f, err := os.Open(cfg.Scopes.Path)
		if err != nil {
			return fmt.Errorf("open scopes: %w", err)
		}
		defer f.Close()
		scopes, err := kb.LoadScopes(f, cfg.Scopes.NameField, cfg.Scopes.CRS)
		if err != nil {
			return err
		}
		for _, s := range scopes {
			a.store.AddScope(s)
		}
	}

	if missing := a.cfg.MissingEssential(a.store.LayerNames()); len(missing) > 0 {
		a.log.Warn(ctx, "essential layers missing", logging.Strings("layers", missing))
	}
	return nil
}

// flush writes every committed layer back to its GeoJSON file.
func (a *app) flush(ctx context.Context) error {
	a.mu.Lock()
	names := make([]string, 0, len(a.dirty))
	for n := range a.dirty {
		names = append(names, n)
	}
	a.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		l, err := a.store.Layer(name)
		if err != nil {
			return err
		}
		path := a.cfg.Layers[name].Path
		if err := writeLayerFile(ctx, path, l); err != nil {
			return err
		}
		a.log.Info(ctx, "layer written", logging.String("layer", name), logging.String("path", path))
	}
	return nil
}

func writeLayerFile(ctx context.Context, path string, l *kb.Layer) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".fiberctl-*.geojson")
	if err != nil {
		return fmt.Errorf("write layer %q: %w", l.Info().Name, err)
	}
	defer os.Remove(tmp.Name())

	if err := kb.WriteGeoJSON(ctx, tmp, l); err != nil {
		tmp.Close()
		return fmt.Errorf("write layer %q: %w", l.Info().Name, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("write layer %q: %w", l.Info().Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write layer %q: %w", l.Info().Name, err)
	}
	return os.Rename(tmp.Name(), path)
}

func (a *app) editable(name string) (*kb.Layer, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no layer named", core.ErrMissingLayer)
	}
	l, err := a.store.Layer(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMissingLayer, err)
	}
	return l, nil
}

func (a *app) layers(names []string) ([]core.Layer, error) {
	out := make([]core.Layer, 0, len(names))
	for _, n := range names {
		l, err := a.editable(n)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// scope resolves the --scope/--all pair. all selects unscoped processing.
func (a *app) scope(name string, all bool) (model.Scope, bool, error) {
	if all {
		return model.Scope{}, true, nil
	}
	if name == "" {
		return model.Scope{}, false, errScopeRequired
	}
	s, err := a.store.Scope(name)
	if err != nil {
		return model.Scope{}, false, fmt.Errorf("%w: %v", core.ErrInvalidScope, err)
	}
	return s, false, nil
}
