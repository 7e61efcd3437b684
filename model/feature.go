package model

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// FeatureID identifies a feature within its source layer. IDs are stable for
// the lifetime of the layer but carry no meaning across layers.
type FeatureID int64

// Feature is a single geometry record owned by exactly one layer.
//
// The engine treats Geometry as read-only; any relocation happens on a clone
// and is written back through an edit session.
type Feature struct {
	ID         FeatureID
	Geometry   orb.Geometry
	Attributes map[string]any
}

// Attr returns the raw attribute value and whether the field was present.
func (f *Feature) Attr(name string) (any, bool) {
	if f == nil || f.Attributes == nil {
		return nil, false
	}
	v, ok := f.Attributes[name]
	return v, ok
}

// StringAttr returns the attribute rendered as a trimmed string. Missing and
// null values yield "".
func (f *Feature) StringAttr(name string) string {
	v, ok := f.Attr(name)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// FloatAttr returns the attribute as a float64 when it holds a number.
func (f *Feature) FloatAttr(name string) (float64, bool) {
	v, ok := f.Attr(name)
	if !ok {
		return 0, false
	}
	return Number(v)
}

// Number converts any Go numeric value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Clone returns a deep copy of the feature, including its geometry.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	out := &Feature{ID: f.ID}
	if f.Geometry != nil {
		out.Geometry = orb.Clone(f.Geometry)
	}
	if f.Attributes != nil {
		out.Attributes = make(map[string]any, len(f.Attributes))
		for k, v := range f.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// DisplayID renders the user-facing identifier of a feature: the "id"
// attribute when it is set and non-zero, otherwise "NULL".
func (f *Feature) DisplayID() string {
	v, ok := f.Attr("id")
	if !ok || v == nil {
		return "NULL"
	}
	if n, ok := f.FloatAttr("id"); ok && n == 0 {
		return "NULL"
	}
	if s := f.StringAttr("id"); s != "" {
		return s
	}
	return "NULL"
}
