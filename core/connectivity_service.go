package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/fiber-connectivity/internal/logging"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

// ConnectivityRequest describes one connectivity check run.
type ConnectivityRequest struct {
	Check  CheckKind
	Target Editable

	Infrastructure []Layer
	SplicePoints   []Layer
	AccessPoints   []Layer

	Scope    model.Scope
	Unscoped bool
	Rule     ScopeRule

	// Categories overrides DefaultCategoryTable(Check).
	Categories *CategoryTable

	// WorkingCRS defaults to the target layer's frame.
	WorkingCRS string
	// Precision defaults to DefaultVertexPrecision.
	Precision int
	// QueryBuffer defaults to DefaultQueryBuffer.
	QueryBuffer float64

	Fix FixPolicy
}

// ConnectivityReport is the outcome of a run.
type ConnectivityReport struct {
	Check   CheckKind
	Layer   string
	Summary Summary
	// Results holds every feature that was examined, in processing order.
	Results []FeatureResult
	// Changed counts features whose geometry was written back.
	Changed   int
	Committed bool

	InfrastructureVertices int
	SpliceVertices         int
	AccessVertices         int
}

// ConnectivityService checks that the vertices of a target layer coincide
// with reference infrastructure and optionally snaps those that do not.
type ConnectivityService struct {
	env *Env
}

// NewConnectivityService returns a service bound to env.
func NewConnectivityService(env *Env) *ConnectivityService {
	return &ConnectivityService{env: env}
}

type pendingChange struct {
	id   model.FeatureID
	geom orb.Geometry
}

// Run executes the check. Changes are committed through a single edit
// session on the target; any failure after the session opens rolls it back
// so the target is either fully updated or untouched.
func (cs *ConnectivityService) Run(ctx context.Context, req ConnectivityRequest) (rep *ConnectivityReport, err error) {
	started := time.Now()
	ctx, span := cs.env.tracer.Start(ctx, "connectivity.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		cs.env.observeRun("connectivity", started, err)
	}()

	if err := cs.validate(req); err != nil {
		return nil, err
	}
	table := DefaultCategoryTable(req.Check)
	if req.Categories != nil {
		table = *req.Categories
	}
	info := req.Target.Info()
	working := req.WorkingCRS
	if working == "" {
		working = info.CRS
	}
	precision := req.Precision
	if precision == 0 {
		precision = DefaultVertexPrecision
	}
	buffer := req.QueryBuffer
	if buffer == 0 {
		buffer = DefaultQueryBuffer
	}

	log := cs.env.log.With(
		logging.String("check", string(req.Check)),
		logging.String("layer", info.Name),
	)
	span.SetAttributes(
		attribute.String("check", string(req.Check)),
		attribute.String("layer", info.Name),
		attribute.Bool("autofix", req.Fix.Enabled),
	)

	filter := ScopeFilter{Rule: req.Rule}
	if !req.Unscoped {
		scope, err := cs.env.projector.Transform(req.Scope.Geometry, req.Scope.CRS, working)
		if err != nil {
			return nil, fmt.Errorf("scope %q: %w", req.Scope.Name, err)
		}
		filter.Scope = scope
	}

	features, err := req.Target.Features(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("read layer %q: %w", info.Name, err)
	}

	stats := NewStats()
	rep = &ConnectivityReport{Check: req.Check, Layer: info.Name}

	type candidate struct {
		feature *model.Feature
		geom    orb.Geometry
	}
	var inScope []candidate
	for _, f := range features {
		if !supportedTarget(f.Geometry) {
			stats.Record(cs.describe(FeatureResult{Skip: SkipBadGeometry, Category: table.Label(f)}, f, table))
			continue
		}
		g, err := cs.env.projector.Transform(f.Geometry, info.CRS, working)
		if err != nil {
			return nil, fmt.Errorf("layer %q feature %d: %w", info.Name, f.ID, err)
		}
		if !filter.InScope(g) {
			stats.Record(FeatureResult{ID: f.ID, Skip: SkipOutOfScope})
			continue
		}
		inScope = append(inScope, candidate{feature: f, geom: g})
	}

	region := UnboundedRegion()
	if !req.Unscoped {
		region = NewQueryRegion(buffer, filter.Scope)
		for _, c := range inScope {
			region.Add(c.geom)
		}
	}

	refs := &ReferenceSets{}
	if refs.Infrastructure, err = cs.env.BuildVertexSet(ctx, req.Infrastructure, region, precision, working); err != nil {
		return nil, err
	}
	if table.NeedsSubscriberSets() {
		if refs.SplicePoints, err = cs.env.BuildVertexSet(ctx, req.SplicePoints, region, precision, working); err != nil {
			return nil, err
		}
		if refs.AccessPoints, err = cs.env.BuildVertexSet(ctx, req.AccessPoints, region, precision, working); err != nil {
			return nil, err
		}
	}
	rep.InfrastructureVertices = refs.Infrastructure.Len()
	rep.SpliceVertices = refs.SplicePoints.Len()
	rep.AccessVertices = refs.AccessPoints.Len()
	if cs.env.metrics != nil {
		cs.env.metrics.SetVertexSetSize("infrastructure", rep.InfrastructureVertices)
		cs.env.metrics.SetVertexSetSize("splice", rep.SpliceVertices)
		cs.env.metrics.SetVertexSetSize("access", rep.AccessVertices)
	}
	log.Info(ctx, "reference vertices collected",
		logging.Int("infrastructure", rep.InfrastructureVertices),
		logging.Int("splice", rep.SpliceVertices),
		logging.Int("access", rep.AccessVertices),
		logging.Int("in_scope", len(inScope)),
	)

	var changes []pendingChange
	for _, c := range inScope {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		cat := table.Classify(c.feature)
		res, fixed := resolveVertices(c.geom, cat, refs, req.Fix)
		res = cs.describe(res, c.feature, table)
		if !res.HasLength && IsLinear(c.geom) {
			res.Length, res.HasLength = planar.Length(c.geom), true
		}
		stats.Record(res)
		rep.Results = append(rep.Results, res)

		if res.NonCoincident > 0 {
			log.Warn(ctx, "non-coincident vertices", logging.String("feature", res.Describe()))
		}
		if fixed != nil {
			changes = append(changes, pendingChange{id: c.feature.ID, geom: fixed})
		}
	}

	rep.Summary = stats.Summary()
	cs.recordMetrics(rep)

	if len(changes) == 0 {
		log.Info(ctx, "connectivity check finished", logging.Int("changed", 0))
		return rep, nil
	}
	if err := cs.commit(ctx, req.Target, info, working, changes); err != nil {
		return nil, err
	}
	rep.Changed = len(changes)
	rep.Committed = true
	log.Info(ctx, "connectivity check finished", logging.Int("changed", rep.Changed))
	return rep, nil
}

func (cs *ConnectivityService) validate(req ConnectivityRequest) error {
	if req.Target == nil {
		return fmt.Errorf("%w: target", ErrMissingLayer)
	}
	info := req.Target.Info()
	if req.Target.IsEditing() {
		return fmt.Errorf("%w: %q", ErrLayerEditing, info.Name)
	}
	if _, err := ParseCheckKind(string(req.Check)); err != nil && req.Categories == nil {
		return err
	}
	if !req.Unscoped && req.Scope.IsEmpty() {
		return fmt.Errorf("%w: %q", ErrInvalidScope, req.Scope.Name)
	}
	table := DefaultCategoryTable(req.Check)
	if req.Categories != nil {
		table = *req.Categories
	}
	if table.GroupField != "" && len(info.Fields) > 0 && !info.HasField(table.GroupField) {
		return fmt.Errorf("%w: %q on layer %q", ErrMissingField, table.GroupField, info.Name)
	}
	if req.Fix.LimitDistance && req.Fix.MaxDistance < 0 {
		return fmt.Errorf("negative auto-fix distance %v", req.Fix.MaxDistance)
	}
	return nil
}

func (cs *ConnectivityService) describe(res FeatureResult, f *model.Feature, table CategoryTable) FeatureResult {
	res.ID = f.ID
	res.DisplayID = f.DisplayID()
	if table.NameField != "" {
		res.Name = f.StringAttr(table.NameField)
	}
	if table.LengthField != "" {
		res.Length, res.HasLength = f.FloatAttr(table.LengthField)
	}
	return res
}

// commit writes changes back in the layer's native frame inside one edit
// session. Cancellation observed before Commit rolls the session back.
func (cs *ConnectivityService) commit(ctx context.Context, layer Editable, info model.LayerInfo, working string, changes []pendingChange) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	session, err := layer.BeginEdit(ctx)
	if err != nil {
		return fmt.Errorf("begin edit %q: %w", info.Name, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := session.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback %q: %w", info.Name, rbErr))
		}
	}()

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}
		native, err := cs.env.projector.Transform(c.geom, working, info.CRS)
		if err != nil {
			return fmt.Errorf("feature %d: %w", c.id, err)
		}
		if err := session.ReplaceGeometry(c.id, native); err != nil {
			return fmt.Errorf("replace feature %d: %w", c.id, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	if err := session.Commit(ctx); err != nil {
		return fmt.Errorf("commit %q: %w", info.Name, err)
	}
	return nil
}

func (cs *ConnectivityService) recordMetrics(rep *ConnectivityReport) {
	t := rep.Summary.Totals
	cs.env.addFeatures("connectivity", "processed", t.Processed)
	cs.env.addFeatures("connectivity", "skipped_scope", rep.Summary.SkippedOutOfScope)
	cs.env.addFeatures("connectivity", "skipped_geometry", rep.Summary.SkippedBadGeometry)
	cs.env.addVertices("coincident", t.Coincident)
	cs.env.addVertices("non_coincident", t.NonCoincident)
	cs.env.addVertices("fixed", t.Fixed)
	cs.env.addVertices("unfixable", t.Unfixable)
}

// supportedTarget reports whether g can be checked: a non-empty point or
// line geometry.
func supportedTarget(g orb.Geometry) bool {
	if IsEmptyGeometry(g) {
		return false
	}
	switch g.(type) {
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString:
		return finite(g)
	}
	return false
}
