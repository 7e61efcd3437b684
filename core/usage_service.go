package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/fiber-connectivity/internal/logging"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

// UsageRole tells how a usage layer's vertices count towards marking
// infrastructure as used.
type UsageRole int

const (
	UsageOther UsageRole = iota
	UsageCable
	UsageSplice
)

// Default usage marking values.
const (
	DefaultUsageField  = "X_wykorzystanie"
	DefaultMRField     = "X_MR"
	DefaultUsedValue   = "TAK"
	DefaultUnusedValue = "NIE"
)

// UsageLayer is a layer whose features make infrastructure used.
type UsageLayer struct {
	Layer Layer
	Role  UsageRole
}

// UsageRequest describes one infrastructure usage marking run.
type UsageRequest struct {
	Infrastructure []Editable
	Usage          []UsageLayer

	Scope model.Scope
	Rule  ScopeRule

	WorkingCRS string
	Precision  int
	// Overwrite replaces existing usage and MR values. Without it only
	// empty values are filled in.
	Overwrite bool

	UsageField  string
	MRField     string
	MRValue     any
	UsedValue   string
	UnusedValue string
}

func (r *UsageRequest) applyDefaults() {
	if r.Precision == 0 {
		r.Precision = DefaultVertexPrecision
	}
	if r.UsageField == "" {
		r.UsageField = DefaultUsageField
	}
	if r.MRField == "" {
		r.MRField = DefaultMRField
	}
	if r.UsedValue == "" {
		r.UsedValue = DefaultUsedValue
	}
	if r.UnusedValue == "" {
		r.UnusedValue = DefaultUnusedValue
	}
}

// UsageLayerStats reports what happened to one infrastructure layer.
type UsageLayerStats struct {
	Layer             string
	Processed         int
	TouchingCable     int
	// OnlySplice counts features touching a splice point but no cable,
	// whether or not other usage layers touch them too.
	OnlySplice        int
	TouchingOther     int
	MarkedUsed        int
	MarkedUnused      int
	MRStamped         int
	SkippedExisting   int
	SkippedMR         int
	SkippedNoGeometry int
}

// UsageReport is the outcome of a usage run.
type UsageReport struct {
	Layers          []UsageLayerStats
	UsageVertices   int
	CableVertices   int
	SpliceVertices  int
	ChangedFeatures int
	Committed       bool
}

type attrChange struct {
	id    model.FeatureID
	field string
	value any
}

type layerPlan struct {
	layer   Editable
	info    model.LayerInfo
	changes []attrChange
}

// UsageService marks infrastructure features as used when any of their
// vertices coincides with a vertex of a usage layer.
type UsageService struct {
	env *Env
}

// NewUsageService returns a service bound to env.
func NewUsageService(env *Env) *UsageService {
	return &UsageService{env: env}
}

// Run classifies every in-scope infrastructure feature, then writes the
// changes through one edit session per layer. Sessions are all opened and
// filled before the first commit; a failure before that point rolls every
// session back.
func (us *UsageService) Run(ctx context.Context, req UsageRequest) (rep *UsageReport, err error) {
	started := time.Now()
	ctx, span := us.env.tracer.Start(ctx, "usage.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		us.env.observeRun("usage", started, err)
	}()

	req.applyDefaults()
	if err := us.validate(req); err != nil {
		return nil, err
	}
	working := req.WorkingCRS
	if working == "" {
		working = req.Infrastructure[0].Info().CRS
	}

	scope, err := us.env.projector.Transform(req.Scope.Geometry, req.Scope.CRS, working)
	if err != nil {
		return nil, fmt.Errorf("scope %q: %w", req.Scope.Name, err)
	}
	region := NewQueryRegion(0, scope)

	rep = &UsageReport{}
	all := NewVertexSet(req.Precision)
	cables := NewVertexSet(req.Precision)
	splices := NewVertexSet(req.Precision)
	for _, u := range req.Usage {
		set, err := us.env.BuildVertexSet(ctx, []Layer{u.Layer}, region, req.Precision, working)
		if err != nil {
			return nil, err
		}
		for _, p := range set.Points() {
			all.Add(p)
			switch u.Role {
			case UsageCable:
				cables.Add(p)
			case UsageSplice:
				splices.Add(p)
			}
		}
	}
	rep.UsageVertices = all.Len()
	rep.CableVertices = cables.Len()
	rep.SpliceVertices = splices.Len()
	span.SetAttributes(attribute.Int("usage.vertices", rep.UsageVertices))

	filter := ScopeFilter{Scope: scope, Rule: req.Rule}
	var plans []layerPlan
	for _, layer := range req.Infrastructure {
		plan, stats, err := us.classify(ctx, layer, req, filter, working, all, cables, splices)
		if err != nil {
			return nil, err
		}
		rep.Layers = append(rep.Layers, stats)
		plans = append(plans, plan)
	}
	sort.Slice(rep.Layers, func(i, j int) bool { return rep.Layers[i].Layer < rep.Layers[j].Layer })

	for _, p := range plans {
		ids := make(map[model.FeatureID]bool)
		for _, c := range p.changes {
			ids[c.id] = true
		}
		rep.ChangedFeatures += len(ids)
	}
	if rep.ChangedFeatures == 0 {
		return rep, nil
	}

	if err := us.apply(ctx, plans); err != nil {
		return nil, err
	}
	rep.Committed = true
	us.env.addFeatures("usage", "changed", rep.ChangedFeatures)
	us.env.log.Info(ctx, "infrastructure usage marked",
		logging.Int("layers", len(plans)),
		logging.Int("changed", rep.ChangedFeatures),
	)
	return rep, nil
}

func (us *UsageService) validate(req UsageRequest) error {
	if len(req.Infrastructure) == 0 || len(req.Usage) == 0 {
		return ErrNothingToProcess
	}
	if req.Scope.IsEmpty() {
		return fmt.Errorf("%w: %q", ErrInvalidScope, req.Scope.Name)
	}
	for _, l := range req.Infrastructure {
		if l == nil {
			return fmt.Errorf("%w: infrastructure", ErrMissingLayer)
		}
		info := l.Info()
		if l.IsEditing() {
			return fmt.Errorf("%w: %q", ErrLayerEditing, info.Name)
		}
		if len(info.Fields) > 0 && !info.HasField(req.UsageField) {
			return fmt.Errorf("%w: %q on layer %q", ErrMissingField, req.UsageField, info.Name)
		}
	}
	for _, u := range req.Usage {
		if u.Layer == nil {
			return fmt.Errorf("%w: usage", ErrMissingLayer)
		}
		if u.Layer.IsEditing() {
			return fmt.Errorf("%w: %q", ErrLayerEditing, u.Layer.Info().Name)
		}
	}
	return nil
}

func (us *UsageService) classify(ctx context.Context, layer Editable, req UsageRequest, filter ScopeFilter, working string, all, cables, splices *VertexSet) (layerPlan, UsageLayerStats, error) {
	info := layer.Info()
	plan := layerPlan{layer: layer, info: info}
	stats := UsageLayerStats{Layer: info.Name}

	var selection Filter
	if filter.Scope != nil {
		b, err := us.env.projector.TransformBound(filter.Scope.Bound(), working, info.CRS)
		if err != nil {
			return plan, stats, fmt.Errorf("layer %q: %w", info.Name, err)
		}
		selection.Bound = &b
	}
	features, err := layer.Features(ctx, selection)
	if err != nil {
		return plan, stats, fmt.Errorf("read layer %q: %w", info.Name, err)
	}
	stampMR := req.MRValue != nil && (len(info.Fields) == 0 || info.HasField(req.MRField))

	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return plan, stats, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		if IsEmptyGeometry(f.Geometry) {
			stats.SkippedNoGeometry++
			continue
		}
		g, err := us.env.projector.Transform(f.Geometry, info.CRS, working)
		if err != nil {
			return plan, stats, fmt.Errorf("layer %q feature %d: %w", info.Name, f.ID, err)
		}
		if !filter.InScope(g) {
			continue
		}
		stats.Processed++

		var onCable, onSplice, onOther bool
		walkVertices(g, func(p orb.Point) {
			if !all.Contains(p) {
				return
			}
			switch {
			case cables.Contains(p):
				onCable = true
			case splices.Contains(p):
				onSplice = true
			default:
				onOther = true
			}
		})
		used := onCable || onSplice || onOther
		switch {
		case onCable:
			stats.TouchingCable++
		case onSplice:
			stats.OnlySplice++
		case onOther:
			stats.TouchingOther++
		}

		old := f.StringAttr(req.UsageField)
		if !req.Overwrite && old != "" {
			stats.SkippedExisting++
			continue
		}

		if used && stampMR {
			if req.Overwrite || f.StringAttr(req.MRField) == "" {
				plan.changes = append(plan.changes, attrChange{id: f.ID, field: req.MRField, value: req.MRValue})
				stats.MRStamped++
			} else {
				stats.SkippedMR++
			}
		}

		value := req.UnusedValue
		if used {
			value = req.UsedValue
		}
		if old == value {
			continue
		}
		plan.changes = append(plan.changes, attrChange{id: f.ID, field: req.UsageField, value: value})
		if used {
			stats.MarkedUsed++
		} else {
			stats.MarkedUnused++
		}
	}
	return plan, stats, nil
}

// apply opens a session per layer with pending changes and fills them all
// before committing any. Once the first commit succeeds the remaining
// commits are attempted in order; a later failure is reported but cannot
// undo earlier layers.
func (us *UsageService) apply(ctx context.Context, plans []layerPlan) (err error) {
	type open struct {
		plan    layerPlan
		session EditSession
		done    bool
	}
	var sessions []*open
	defer func() {
		if err == nil {
			return
		}
		for _, o := range sessions {
			if o.done {
				continue
			}
			if rbErr := o.session.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback %q: %w", o.plan.info.Name, rbErr))
			}
		}
	}()

	for _, p := range plans {
		if len(p.changes) == 0 {
			continue
		}
		session, err := p.layer.BeginEdit(ctx)
		if err != nil {
			return fmt.Errorf("begin edit %q: %w", p.info.Name, err)
		}
		o := &open{plan: p, session: session}
		sessions = append(sessions, o)
		for _, c := range p.changes {
			if err := session.ChangeAttribute(c.id, c.field, c.value); err != nil {
				return fmt.Errorf("layer %q feature %d: %w", p.info.Name, c.id, err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	for _, o := range sessions {
		if err := o.session.Commit(ctx); err != nil {
			return fmt.Errorf("commit %q: %w", o.plan.info.Name, err)
		}
		o.done = true
	}
	return nil
}
