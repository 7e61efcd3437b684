package model

import "github.com/paulmach/orb"

// Scope is the working area of one operation. Geometry is a Polygon or
// MultiPolygon expressed in CRS, which may differ from every layer's frame.
type Scope struct {
	Name       string
	CRS        string
	Geometry   orb.Geometry
	Attributes map[string]any
}

// IsEmpty reports whether the scope has no usable polygon.
func (s Scope) IsEmpty() bool {
	switch g := s.Geometry.(type) {
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) < 4
	case orb.MultiPolygon:
		for _, p := range g {
			if len(p) > 0 && len(p[0]) >= 4 {
				return false
			}
		}
		return true
	default:
		return true
	}
}
