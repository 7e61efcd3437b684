package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/fiber-connectivity/internal/logging"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

// DefaultIgnoredFields are never compared when refining duplicates by
// attributes.
var DefaultIgnoredFields = []string{"id", "fid"}

// Canonicalize rounds every coordinate of g to precision decimal places.
// With directionInsensitive set, a line whose first vertex sorts after its
// last (by x, then y) is reversed so both directions share one form. A
// single-part multi-line is treated as the line it wraps.
func Canonicalize(g orb.Geometry, precision int, directionInsensitive bool) orb.Geometry {
	if g == nil {
		return nil
	}
	out := MapVertices(g, func(_ int, p orb.Point) orb.Point { return RoundPoint(p, precision) })
	if !directionInsensitive {
		return out
	}
	switch t := out.(type) {
	case orb.LineString:
		if len(t) > 1 && pointLess(t[len(t)-1], t[0]) {
			return Reverse(t)
		}
	case orb.MultiLineString:
		if len(t) == 1 && len(t[0]) > 1 && pointLess(t[0][len(t[0])-1], t[0][0]) {
			return orb.MultiLineString{Reverse(t[0]).(orb.LineString)}
		}
	}
	return out
}

func pointLess(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

// CanonicalKey returns the hex-encoded WKB of the canonical form of g.
func CanonicalKey(g orb.Geometry, precision int, directionInsensitive bool) (string, error) {
	data, err := wkb.Marshal(Canonicalize(g, precision, directionInsensitive))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

// GroupByGeometry buckets features by canonical key and keeps buckets of at
// least two. Bucket members and bucket order follow the input order.
func GroupByGeometry(features []*model.Feature, precision int, directionInsensitive bool) ([][]*model.Feature, error) {
	index := make(map[string]int)
	var buckets [][]*model.Feature
	for _, f := range features {
		if IsEmptyGeometry(f.Geometry) {
			continue
		}
		key, err := CanonicalKey(f.Geometry, precision, directionInsensitive)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.ID, err)
		}
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, nil)
		}
		buckets[i] = append(buckets[i], f)
	}

	out := buckets[:0]
	for _, b := range buckets {
		if len(b) > 1 {
			out = append(out, b)
		}
	}
	return out, nil
}

// RefineByAttributes splits a geometry cluster by the values of fields,
// skipping any field named in ignored (case-insensitive). It returns every
// sub-cluster in first-seen order.
func RefineByAttributes(cluster []*model.Feature, fields []string, ignored []string) [][]*model.Feature {
	skip := make(map[string]bool, len(ignored))
	for _, f := range ignored {
		skip[strings.ToLower(f)] = true
	}
	var compared []string
	for _, f := range fields {
		if !skip[strings.ToLower(f)] {
			compared = append(compared, f)
		}
	}

	var groups [][]*model.Feature
	for _, f := range cluster {
		placed := false
		for i, g := range groups {
			if sameAttributes(g[0], f, compared) {
				groups[i] = append(g, f)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*model.Feature{f})
		}
	}
	return groups
}

func sameAttributes(a, b *model.Feature, fields []string) bool {
	for _, name := range fields {
		av, _ := a.Attr(name)
		bv, _ := b.Attr(name)
		if !attrEqual(av, bv) {
			return false
		}
	}
	return true
}

func attrEqual(a, b any) bool {
	if af, ok := model.Number(a); ok {
		if bf, ok := model.Number(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// DuplicateGroup is a set of features sharing a canonical geometry (and,
// when refined, identical attributes). The first member is the one kept on
// deletion.
type DuplicateGroup struct {
	Label    string
	Features []*model.Feature
}

// DivergentCluster is a geometry cluster whose members disagree on
// attributes.
type DivergentCluster struct {
	Subclusters [][]*model.Feature
}

// Excess is the number of features not in the largest sub-cluster.
func (d DivergentCluster) Excess() int {
	total, largest := 0, 0
	for _, s := range d.Subclusters {
		total += len(s)
		if len(s) > largest {
			largest = len(s)
		}
	}
	return total - largest
}

// DuplicateRequest describes one duplicate search.
type DuplicateRequest struct {
	Layer    Layer
	Scope    model.Scope
	Unscoped bool
	// Rule defaults to ScopeRuleIntersects for duplicate searches.
	Rule *ScopeRule

	WorkingCRS           string
	Precision            int
	DirectionInsensitive bool
	CompareAttributes    bool
	IgnoredFields        []string
}

// DuplicateReport lists the duplicates found in one layer.
type DuplicateReport struct {
	Layer          string
	Searched       int
	SkippedInvalid int
	Groups         []DuplicateGroup
	Divergent      []DivergentCluster
}

// Duplicates is the number of features that would be removed by keeping
// one feature per group.
func (r DuplicateReport) Duplicates() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Features) - 1
	}
	return n
}

// DivergentCount sums Excess over divergent clusters.
func (r DuplicateReport) DivergentCount() int {
	n := 0
	for _, d := range r.Divergent {
		n += d.Excess()
	}
	return n
}

// DuplicateService finds and removes duplicate geometries.
type DuplicateService struct {
	env *Env
}

// NewDuplicateService returns a service bound to env.
func NewDuplicateService(env *Env) *DuplicateService {
	return &DuplicateService{env: env}
}

// Find searches req.Layer for duplicates. Geometries failing the store's
// validity predicate are left out of grouping.
func (ds *DuplicateService) Find(ctx context.Context, req DuplicateRequest) (rep *DuplicateReport, err error) {
	started := time.Now()
	ctx, span := ds.env.tracer.Start(ctx, "duplicates.find")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		ds.env.observeRun("duplicates", started, err)
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
	precision := req.Precision
	if precision == 0 {
		precision = DefaultDuplicatePrecision
	}
	rule := ScopeRuleIntersects
	if req.Rule != nil {
		rule = *req.Rule
	}
	span.SetAttributes(attribute.String("layer", info.Name))

	filter := ScopeFilter{Rule: rule}
	if !req.Unscoped {
		if filter.Scope, err = ds.env.projector.Transform(req.Scope.Geometry, req.Scope.CRS, working); err != nil {
			return nil, fmt.Errorf("scope %q: %w", req.Scope.Name, err)
		}
	}

	features, err := req.Layer.Features(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("read layer %q: %w", info.Name, err)
	}

	rep = &DuplicateReport{Layer: info.Name}
	var candidates []*model.Feature
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		if IsEmptyGeometry(f.Geometry) {
			continue
		}
		g, err := ds.env.projector.Transform(f.Geometry, info.CRS, working)
		if err != nil {
			return nil, fmt.Errorf("layer %q feature %d: %w", info.Name, f.ID, err)
		}
		if !filter.InScope(g) {
			continue
		}
		rep.Searched++
		if err := req.Layer.Validate(f.Geometry); err != nil {
			rep.SkippedInvalid++
			continue
		}
		candidates = append(candidates, f)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	clusters, err := GroupByGeometry(candidates, precision, req.DirectionInsensitive)
	if err != nil {
		return nil, err
	}

	ignored := req.IgnoredFields
	if ignored == nil {
		ignored = DefaultIgnoredFields
	}
	for _, cluster := range clusters {
		if !req.CompareAttributes {
			rep.Groups = append(rep.Groups, DuplicateGroup{Features: cluster})
			continue
		}
		subs := RefineByAttributes(cluster, attributeFields(info, cluster), ignored)
		if len(subs) > 1 {
			rep.Divergent = append(rep.Divergent, DivergentCluster{Subclusters: subs})
		}
		for _, s := range subs {
			if len(s) > 1 {
				rep.Groups = append(rep.Groups, DuplicateGroup{Features: s})
			}
		}
	}
	for i := range rep.Groups {
		rep.Groups[i].Label = GroupLabel(i)
	}

	ds.env.addFeatures("duplicates", "searched", rep.Searched)
	ds.env.addFeatures("duplicates", "duplicate", rep.Duplicates())
	ds.env.log.Info(ctx, "duplicate search finished",
		logging.String("layer", info.Name),
		logging.Int("searched", rep.Searched),
		logging.Int("groups", len(rep.Groups)),
		logging.Int("duplicates", rep.Duplicates()),
		logging.Int("divergent", rep.DivergentCount()),
	)
	return rep, nil
}

// attributeFields returns the schema's field names, or the sorted union of
// attribute keys when the layer declares no schema.
func attributeFields(info model.LayerInfo, cluster []*model.Feature) []string {
	if len(info.Fields) > 0 {
		return info.FieldNames()
	}
	seen := make(map[string]bool)
	var names []string
	for _, f := range cluster {
		for k := range f.Attributes {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

// DeleteDuplicates removes every member of every group except the first, in
// one edit session. It returns the number of deleted features.
func (ds *DuplicateService) DeleteDuplicates(ctx context.Context, layer Editable, groups []DuplicateGroup) (n int, err error) {
	if layer == nil {
		return 0, fmt.Errorf("%w: layer", ErrMissingLayer)
	}
	info := layer.Info()
	if layer.IsEditing() {
		return 0, fmt.Errorf("%w: %q", ErrLayerEditing, info.Name)
	}

	var ids []model.FeatureID
	for _, g := range groups {
		for _, f := range g.Features[1:] {
			ids = append(ids, f.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	session, err := layer.BeginEdit(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin edit %q: %w", info.Name, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := session.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback %q: %w", info.Name, rbErr))
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAborted, err)
	}
	if err := session.DeleteFeatures(ids...); err != nil {
		return 0, fmt.Errorf("delete duplicates: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %q: %w", info.Name, err)
	}
	ds.env.addFeatures("duplicates", "deleted", len(ids))
	ds.env.log.Info(ctx, "duplicates deleted",
		logging.String("layer", info.Name),
		logging.Int("deleted", len(ids)),
	)
	return len(ids), nil
}

// GroupLabel returns the spreadsheet-style column name for a zero-based
// index: 0 is "A", 25 is "Z", 26 is "AA".
func GroupLabel(i int) string {
	var b []byte
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}
