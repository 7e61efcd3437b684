package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/fiber-connectivity/internal/logging"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

// InvalidReason classifies a problem geometry.
type InvalidReason string

const (
	ReasonNull        InvalidReason = "null geometry"
	ReasonEmpty       InvalidReason = "empty geometry"
	ReasonInvalid     InvalidReason = "invalid geometry"
	ReasonZeroLength  InvalidReason = "zero length"
	ReasonPointOrigin InvalidReason = "point at origin"
)

// Bridge detection and zero-length defaults.
const (
	DefaultBridgeEpsilon   = 1e-4
	DefaultLengthPrecision = 3
)

// InvalidOptions tunes ClassifyGeometry.
type InvalidOptions struct {
	// AllowBridges exempts bridge markers: two-vertex lines whose raw
	// endpoints are closer than BridgeEpsilon.
	AllowBridges    bool
	BridgeEpsilon   float64
	LengthPrecision int
}

func (o InvalidOptions) withDefaults() InvalidOptions {
	if o.BridgeEpsilon == 0 {
		o.BridgeEpsilon = DefaultBridgeEpsilon
	}
	if o.LengthPrecision == 0 {
		o.LengthPrecision = DefaultLengthPrecision
	}
	return o
}

// IsBridge reports whether g is a linear geometry with exactly two vertices
// in total whose endpoints lie closer than eps. Such lines mark cable bridges
// and are not errors.
func IsBridge(g orb.Geometry, eps float64) bool {
	if !IsLinear(g) {
		return false
	}
	pts := Vertices(g)
	if len(pts) != 2 {
		return false
	}
	return math.Hypot(pts[1][0]-pts[0][0], pts[1][1]-pts[0][1]) < eps
}

// ClassifyGeometry returns the first problem found in g, checked in order:
// null, empty, store validity, zero length after rounding (lines only) and
// a point at exactly (0, 0). ok is false when g has no problem. validate may
// be nil.
func ClassifyGeometry(g orb.Geometry, validate func(orb.Geometry) error, opts InvalidOptions) (reason InvalidReason, detail string, ok bool) {
	opts = opts.withDefaults()
	switch {
	case g == nil:
		return ReasonNull, "", true
	case IsEmptyGeometry(g):
		return ReasonEmpty, "", true
	}
	if validate != nil {
		if err := validate(g); err != nil {
			return ReasonInvalid, err.Error(), true
		}
	}
	if IsLinear(g) {
		rounded := MapVertices(g, func(_ int, p orb.Point) orb.Point { return RoundPoint(p, opts.LengthPrecision) })
		if planar.Length(rounded) == 0 {
			return ReasonZeroLength, "", true
		}
	}
	if hasOriginPoint(g) {
		return ReasonPointOrigin, "", true
	}
	return "", "", false
}

func hasOriginPoint(g orb.Geometry) bool {
	switch t := g.(type) {
	case orb.Point:
		return t[0] == 0 && t[1] == 0
	case orb.MultiPoint:
		for _, p := range t {
			if p[0] == 0 && p[1] == 0 {
				return true
			}
		}
	}
	return false
}

// InvalidFeature is one reported problem.
type InvalidFeature struct {
	ID        model.FeatureID
	DisplayID string
	Reason    InvalidReason
	Detail    string
}

// InvalidRequest describes one invalid-geometry search.
type InvalidRequest struct {
	Layer      Layer
	Scope      model.Scope
	Unscoped   bool
	WorkingCRS string
	Options    InvalidOptions
}

// InvalidReport lists the problems found in one layer.
type InvalidReport struct {
	Layer    string
	Searched int
	Bridges  int
	Invalid  []InvalidFeature
}

// Count returns the number of problems per reason.
func (r InvalidReport) Count() map[InvalidReason]int {
	out := make(map[InvalidReason]int)
	for _, f := range r.Invalid {
		out[f.Reason]++
	}
	return out
}

// InvalidGeometryService finds features with unusable geometry.
type InvalidGeometryService struct {
	env *Env
}

// NewInvalidGeometryService returns a service bound to env.
func NewInvalidGeometryService(env *Env) *InvalidGeometryService {
	return &InvalidGeometryService{env: env}
}

// Find scans req.Layer. Null and empty geometries cannot be placed relative
// to the scope and are always reported; other features are examined when
// they intersect the scope.
func (s *InvalidGeometryService) Find(ctx context.Context, req InvalidRequest) (rep *InvalidReport, err error) {
	started := time.Now()
	ctx, span := s.env.tracer.Start(ctx, "invalid.find")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.env.observeRun("invalid", started, err)
	}()

	if req.Layer == nil {
		return nil, fmt.Errorf("%w: layer", ErrMissingLayer)
	}
	if !req.Unscoped && req.Scope.IsEmpty() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, req.Scope.Name)
	}
	info := req.Layer.Info()
	working := req.WorkingCRS
	if working == "" {
		working = info.CRS
	}
	span.SetAttributes(attribute.String("layer", info.Name))

	filter := ScopeFilter{Rule: ScopeRuleIntersects}
	if !req.Unscoped {
		if filter.Scope, err = s.env.projector.Transform(req.Scope.Geometry, req.Scope.CRS, working); err != nil {
			return nil, fmt.Errorf("scope %q: %w", req.Scope.Name, err)
		}
	}

	features, err := req.Layer.Features(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("read layer %q: %w", info.Name, err)
	}

	opts := req.Options.withDefaults()
	rep = &InvalidReport{Layer: info.Name}
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		if !IsEmptyGeometry(f.Geometry) && finite(f.Geometry) {
			g, err := s.env.projector.Transform(f.Geometry, info.CRS, working)
			if err != nil {
				return nil, fmt.Errorf("layer %q feature %d: %w", info.Name, f.ID, err)
			}
			if !filter.InScope(g) {
				continue
			}
		}
		rep.Searched++

		if opts.AllowBridges && IsBridge(f.Geometry, opts.BridgeEpsilon) {
			rep.Bridges++
			continue
		}
		reason, detail, bad := ClassifyGeometry(f.Geometry, req.Layer.Validate, opts)
		if !bad {
			continue
		}
		rep.Invalid = append(rep.Invalid, InvalidFeature{
			ID:        f.ID,
			DisplayID: f.DisplayID(),
			Reason:    reason,
			Detail:    detail,
		})
		s.env.log.Warn(ctx, "invalid geometry",
			logging.String("layer", info.Name),
			logging.String("id", f.DisplayID()),
			logging.String("reason", string(reason)),
		)
	}

	s.env.addFeatures("invalid", "searched", rep.Searched)
	s.env.addFeatures("invalid", "invalid", len(rep.Invalid))
	s.env.log.Info(ctx, "invalid geometry search finished",
		logging.String("layer", info.Name),
		logging.Int("searched", rep.Searched),
		logging.Int("invalid", len(rep.Invalid)),
		logging.Int("bridges", rep.Bridges),
	)
	return rep, nil
}
