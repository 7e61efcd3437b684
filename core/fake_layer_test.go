package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

var errInjected = errors.New("injected failure")

// fakeLayer is a minimal in-memory Editable with failure injection.
type fakeLayer struct {
	info     model.LayerInfo
	features map[model.FeatureID]*model.Feature
	editing  bool

	failReplaceOn model.FeatureID
	failAttrOn    model.FeatureID
	failCommit    bool

	commits   int
	rollbacks int
}

func newFakeLayer(name, crs string, fields ...string) *fakeLayer {
	info := model.LayerInfo{Name: name, CRS: crs}
	for _, f := range fields {
		info.Fields = append(info.Fields, model.Field{Name: f, Type: model.FieldString})
	}
	return &fakeLayer{info: info, features: make(map[model.FeatureID]*model.Feature)}
}

func (l *fakeLayer) add(id model.FeatureID, g orb.Geometry, attrs map[string]any) *fakeLayer {
	l.features[id] = &model.Feature{ID: id, Geometry: g, Attributes: attrs}
	return l
}

func (l *fakeLayer) geometry(id model.FeatureID) orb.Geometry {
	return l.features[id].Geometry
}

func (l *fakeLayer) Info() model.LayerInfo { return l.info }
func (l *fakeLayer) IsEditing() bool       { return l.editing }
func (l *fakeLayer) Validate(g orb.Geometry) error {
	if ls, ok := g.(orb.LineString); ok && len(ls) < 2 {
		return fmt.Errorf("line with %d vertices", len(ls))
	}
	return nil
}

func (l *fakeLayer) Features(_ context.Context, filter Filter) ([]*model.Feature, error) {
	ids := make([]model.FeatureID, 0, len(l.features))
	for id := range l.features {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var want map[model.FeatureID]bool
	if filter.IDs != nil {
		want = make(map[model.FeatureID]bool)
		for _, id := range filter.IDs {
			want[id] = true
		}
	}
	var out []*model.Feature
	for _, id := range ids {
		f := l.features[id]
		if want != nil && !want[id] {
			continue
		}
		if filter.Bound != nil && (f.Geometry == nil || !f.Geometry.Bound().Intersects(*filter.Bound)) {
			continue
		}
		out = append(out, f.Clone())
	}
	return out, nil
}

func (l *fakeLayer) BeginEdit(context.Context) (EditSession, error) {
	if l.editing {
		return nil, errors.New("locked")
	}
	l.editing = true
	return &fakeSession{
		layer: l,
		geoms: make(map[model.FeatureID]orb.Geometry),
		attrs: make(map[model.FeatureID]map[string]any),
		dels:  make(map[model.FeatureID]bool),
	}, nil
}

type fakeSession struct {
	layer *fakeLayer
	geoms map[model.FeatureID]orb.Geometry
	attrs map[model.FeatureID]map[string]any
	dels  map[model.FeatureID]bool
}

func (s *fakeSession) ReplaceGeometry(id model.FeatureID, g orb.Geometry) error {
	if id == s.layer.failReplaceOn {
		return errInjected
	}
	s.geoms[id] = g
	return nil
}

func (s *fakeSession) ChangeAttribute(id model.FeatureID, field string, value any) error {
	if id == s.layer.failAttrOn {
		return errInjected
	}
	if s.attrs[id] == nil {
		s.attrs[id] = make(map[string]any)
	}
	s.attrs[id][field] = value
	return nil
}

func (s *fakeSession) DeleteFeatures(ids ...model.FeatureID) error {
	for _, id := range ids {
		s.dels[id] = true
	}
	return nil
}

func (s *fakeSession) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.layer.failCommit {
		return errInjected
	}
	for id, g := range s.geoms {
		s.layer.features[id].Geometry = g
	}
	for id, attrs := range s.attrs {
		f := s.layer.features[id]
		if f.Attributes == nil {
			f.Attributes = make(map[string]any)
		}
		for k, v := range attrs {
			f.Attributes[k] = v
		}
	}
	for id := range s.dels {
		delete(s.layer.features, id)
	}
	s.layer.commits++
	s.layer.editing = false
	return nil
}

func (s *fakeSession) Rollback() error {
	s.layer.rollbacks++
	s.layer.editing = false
	return nil
}

// shiftTransformer maps "shift" frames to "base" by a fixed offset, so tests
// exercise frame conversion without real map projections.
type shiftTransformer struct {
	dx, dy float64
}

func (t shiftTransformer) Projection(src, dst string) (orb.Projection, error) {
	switch {
	case src == "shift" && dst == "base":
		return func(p orb.Point) orb.Point { return orb.Point{p[0] + t.dx, p[1] + t.dy} }, nil
	case src == "base" && dst == "shift":
		return func(p orb.Point) orb.Point { return orb.Point{p[0] - t.dx, p[1] - t.dy} }, nil
	}
	return nil, fmt.Errorf("no projection %s -> %s", src, dst)
}

func scopeSquare(x0, y0, x1, y1 float64) model.Scope {
	return model.Scope{Name: "test", CRS: "base", Geometry: square(x0, y0, x1, y1)}
}
