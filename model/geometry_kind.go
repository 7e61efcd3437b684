package model

import "github.com/paulmach/orb"

// GeometryKind is the coarse dimension class of a geometry.
type GeometryKind int

const (
	KindUnknown GeometryKind = iota
	KindPoint
	KindLine
	KindPolygon
)

func (k GeometryKind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// KindOf classifies g. Collections are classified by their first member.
func KindOf(g orb.Geometry) GeometryKind {
	switch g := g.(type) {
	case orb.Point, orb.MultiPoint:
		return KindPoint
	case orb.LineString, orb.MultiLineString:
		return KindLine
	case orb.Polygon, orb.MultiPolygon, orb.Ring:
		return KindPolygon
	case orb.Collection:
		if len(g) == 0 {
			return KindUnknown
		}
		return KindOf(g[0])
	default:
		return KindUnknown
	}
}
