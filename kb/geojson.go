package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/signalsfoundry/fiber-connectivity/core"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

// LoadGeoJSON reads a FeatureCollection into a new layer. Feature IDs come
// from the GeoJSON id member when it is an integer, then from an integer
// "fid" property, otherwise they are assigned in file order. The schema is
// inferred from property values.
func LoadGeoJSON(r io.Reader, name, crs string) (*Layer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read layer %q: %w", name, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode layer %q: %w", name, err)
	}

	fields := make(map[string]model.FieldType)
	l := NewLayer(model.LayerInfo{Name: name, CRS: crs})
	for i, gf := range fc.Features {
		f := &model.Feature{
			ID:         featureID(gf),
			Geometry:   gf.Geometry,
			Attributes: map[string]any(gf.Properties),
		}
		for k, v := range gf.Properties {
			inferField(fields, k, v)
		}
		if _, err := l.Add(f); err != nil {
			return nil, fmt.Errorf("layer %q feature #%d: %w", name, i, err)
		}
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		t := fields[k]
		if t == "" {
			t = model.FieldString
		}
		l.info.Fields = append(l.info.Fields, model.Field{Name: k, Type: t})
	}
	return l, nil
}

// LoadGeoJSONFile opens path and loads it with LoadGeoJSON.
func LoadGeoJSONFile(path, name, crs string) (*Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layer %q: %w", name, err)
	}
	defer f.Close()
	return LoadGeoJSON(f, name, crs)
}

func featureID(gf *geojson.Feature) model.FeatureID {
	if id, ok := integer(gf.ID); ok {
		return model.FeatureID(id)
	}
	if id, ok := integer(gf.Properties["fid"]); ok {
		return model.FeatureID(id)
	}
	return 0
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n > 0 && n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		if id, err := strconv.ParseInt(n, 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// inferField widens the recorded type of name to cover v. Null values only
// register the field; a field that never holds a value ends up a string.
func inferField(fields map[string]model.FieldType, name string, v any) {
	var t model.FieldType
	switch n := v.(type) {
	case nil:
		if _, ok := fields[name]; !ok {
			fields[name] = ""
		}
		return
	case bool:
		t = model.FieldBool
	case float64:
		t = model.FieldNumber
		if n == float64(int64(n)) {
			t = model.FieldInteger
		}
	default:
		t = model.FieldString
	}
	prev := fields[name]
	switch {
	case prev == "" || prev == t:
		fields[name] = t
	case prev == model.FieldInteger && t == model.FieldNumber:
		fields[name] = t
	case prev == model.FieldNumber && t == model.FieldInteger:
	default:
		fields[name] = model.FieldString
	}
}

// WriteGeoJSON encodes every feature of l as a FeatureCollection, in
// ascending ID order. Feature IDs are written as the GeoJSON id member.
func WriteGeoJSON(ctx context.Context, w io.Writer, l *Layer) error {
	features, err := l.Features(ctx, core.Filter{})
	if err != nil {
		return err
	}
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = int64(f.ID)
		for k, v := range f.Attributes {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}

// LoadScopes reads polygon features as scopes named by nameField. Features
// without a polygon geometry or a name are skipped.
func LoadScopes(r io.Reader, nameField, crs string) ([]model.Scope, error) {
	l, err := LoadGeoJSON(r, "scopes", crs)
	if err != nil {
		return nil, err
	}
	features, err := l.Features(context.Background(), core.Filter{})
	if err != nil {
		return nil, err
	}
	var out []model.Scope
	for _, f := range features {
		s := model.Scope{
			Name:       f.StringAttr(nameField),
			CRS:        crs,
			Geometry:   f.Geometry,
			Attributes: f.Attributes,
		}
		if s.Name == "" || s.IsEmpty() {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
