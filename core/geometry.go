package core

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// segment is a closed line segment. Isolated points are stored as
// zero-length segments so point/point and point/line tests share one path.
type segment struct {
	a, b orb.Point
}

// shape is a geometry decomposed into the pieces used by the planar
// predicates below.
type shape struct {
	vertices []orb.Point
	segments []segment
	areas    []orb.Polygon
}

func decompose(g orb.Geometry) shape {
	var s shape
	s.add(g)
	return s
}

func (s *shape) add(g orb.Geometry) {
	switch t := g.(type) {
	case nil:
	case orb.Point:
		s.vertices = append(s.vertices, t)
		s.segments = append(s.segments, segment{t, t})
	case orb.MultiPoint:
		for _, p := range t {
			s.add(p)
		}
	case orb.LineString:
		s.addPath(t)
	case orb.MultiLineString:
		for _, ls := range t {
			s.addPath(ls)
		}
	case orb.Ring:
		s.add(orb.Polygon{t})
	case orb.Polygon:
		if len(t) == 0 || len(t[0]) == 0 {
			return
		}
		s.areas = append(s.areas, t)
		for _, r := range t {
			s.addPath(orb.LineString(r))
		}
	case orb.MultiPolygon:
		for _, p := range t {
			s.add(p)
		}
	case orb.Collection:
		for _, c := range t {
			s.add(c)
		}
	case orb.Bound:
		s.add(t.ToPolygon())
	}
}

func (s *shape) addPath(ls orb.LineString) {
	switch len(ls) {
	case 0:
		return
	case 1:
		s.add(ls[0])
		return
	}
	s.vertices = append(s.vertices, ls...)
	for i := 1; i < len(ls); i++ {
		s.segments = append(s.segments, segment{ls[i-1], ls[i]})
	}
}

func (s shape) empty() bool {
	return len(s.vertices) == 0
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment reports whether p, already known to be collinear with s, lies
// within the segment's extent.
func onSegment(s segment, p orb.Point) bool {
	return math.Min(s.a[0], s.b[0]) <= p[0] && p[0] <= math.Max(s.a[0], s.b[0]) &&
		math.Min(s.a[1], s.b[1]) <= p[1] && p[1] <= math.Max(s.a[1], s.b[1])
}

func segmentsIntersect(s, o segment) bool {
	d1 := orient(o.a, o.b, s.a)
	d2 := orient(o.a, o.b, s.b)
	d3 := orient(s.a, s.b, o.a)
	d4 := orient(s.a, s.b, o.b)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(o, s.a):
		return true
	case d2 == 0 && onSegment(o, s.b):
		return true
	case d3 == 0 && onSegment(s, o.a):
		return true
	case d4 == 0 && onSegment(s, o.b):
		return true
	}
	return false
}

func pointSegmentDistanceSq(p orb.Point, s segment) float64 {
	dx, dy := s.b[0]-s.a[0], s.b[1]-s.a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return sq(p[0]-s.a[0]) + sq(p[1]-s.a[1])
	}
	t := ((p[0]-s.a[0])*dx + (p[1]-s.a[1])*dy) / l2
	t = math.Max(0, math.Min(1, t))
	cx, cy := s.a[0]+t*dx, s.a[1]+t*dy
	return sq(p[0]-cx) + sq(p[1]-cy)
}

func segmentDistanceSq(s, o segment) float64 {
	if segmentsIntersect(s, o) {
		return 0
	}
	return math.Min(
		math.Min(pointSegmentDistanceSq(s.a, o), pointSegmentDistanceSq(s.b, o)),
		math.Min(pointSegmentDistanceSq(o.a, s), pointSegmentDistanceSq(o.b, s)),
	)
}

func sq(v float64) float64 { return v * v }

// Intersects reports whether two geometries share at least one point.
// Boundaries count: a vertex lying on a polygon edge intersects it.
func Intersects(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	return shapesIntersect(decompose(a), decompose(b))
}

func shapesIntersect(sa, sb shape) bool {
	if sa.empty() || sb.empty() {
		return false
	}
	for _, v := range sa.vertices {
		for _, area := range sb.areas {
			if planar.PolygonContains(area, v) {
				return true
			}
		}
	}
	for _, v := range sb.vertices {
		for _, area := range sa.areas {
			if planar.PolygonContains(area, v) {
				return true
			}
		}
	}
	for _, s := range sa.segments {
		for _, o := range sb.segments {
			if segmentsIntersect(s, o) {
				return true
			}
		}
	}
	return false
}

// WithinDistance reports whether the planar distance between a and b is at
// most d. A non-positive d degrades to Intersects.
func WithinDistance(a, b orb.Geometry, d float64) bool {
	if a == nil || b == nil {
		return false
	}
	if d <= 0 {
		return Intersects(a, b)
	}
	if !a.Bound().Pad(d).Intersects(b.Bound()) {
		return false
	}
	sa, sb := decompose(a), decompose(b)
	if shapesIntersect(sa, sb) {
		return true
	}
	limit := d * d
	for _, s := range sa.segments {
		for _, o := range sb.segments {
			if segmentDistanceSq(s, o) <= limit {
				return true
			}
		}
	}
	return false
}

// Distance returns the planar distance between two geometries, or +Inf when
// either is nil or empty.
func Distance(a, b orb.Geometry) float64 {
	sa, sb := decompose(a), decompose(b)
	if sa.empty() || sb.empty() {
		return math.Inf(1)
	}
	if shapesIntersect(sa, sb) {
		return 0
	}
	best := math.Inf(1)
	for _, s := range sa.segments {
		for _, o := range sb.segments {
			if d := segmentDistanceSq(s, o); d < best {
				best = d
			}
		}
	}
	return math.Sqrt(best)
}

// IsEmptyGeometry reports whether g is nil or carries no coordinates.
func IsEmptyGeometry(g orb.Geometry) bool {
	return decompose(g).empty()
}

// Vertices flattens g's coordinates in storage order. Polygon rings are
// included with their closing vertex.
func Vertices(g orb.Geometry) []orb.Point {
	var out []orb.Point
	walkVertices(g, func(p orb.Point) { out = append(out, p) })
	return out
}

func walkVertices(g orb.Geometry, fn func(orb.Point)) {
	switch t := g.(type) {
	case orb.Point:
		fn(t)
	case orb.MultiPoint:
		for _, p := range t {
			fn(p)
		}
	case orb.LineString:
		for _, p := range t {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range t {
			walkVertices(ls, fn)
		}
	case orb.Ring:
		for _, p := range t {
			fn(p)
		}
	case orb.Polygon:
		for _, r := range t {
			walkVertices(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range t {
			walkVertices(p, fn)
		}
	case orb.Collection:
		for _, c := range t {
			walkVertices(c, fn)
		}
	}
}

// MapVertices returns a copy of g in which the i-th vertex (in Vertices
// order) is replaced by fn(i, p). g itself is left untouched.
func MapVertices(g orb.Geometry, fn func(i int, p orb.Point) orb.Point) orb.Geometry {
	if g == nil {
		return nil
	}
	i := 0
	next := func(p orb.Point) orb.Point {
		q := fn(i, p)
		i++
		return q
	}
	return mapVertices(orb.Clone(g), next)
}

func mapVertices(g orb.Geometry, next func(orb.Point) orb.Point) orb.Geometry {
	switch t := g.(type) {
	case orb.Point:
		return next(t)
	case orb.MultiPoint:
		for k := range t {
			t[k] = next(t[k])
		}
		return t
	case orb.LineString:
		for k := range t {
			t[k] = next(t[k])
		}
		return t
	case orb.MultiLineString:
		for k := range t {
			t[k] = mapVertices(t[k], next).(orb.LineString)
		}
		return t
	case orb.Ring:
		for k := range t {
			t[k] = next(t[k])
		}
		return t
	case orb.Polygon:
		for k := range t {
			t[k] = mapVertices(t[k], next).(orb.Ring)
		}
		return t
	case orb.MultiPolygon:
		for k := range t {
			t[k] = mapVertices(t[k], next).(orb.Polygon)
		}
		return t
	case orb.Collection:
		for k := range t {
			t[k] = mapVertices(t[k], next)
		}
		return t
	}
	return g
}

// Reverse returns a copy of a linear geometry with its vertex order reversed.
// For multi-lines both the part order and each part are reversed. Other
// geometry types are returned as copies unchanged.
func Reverse(g orb.Geometry) orb.Geometry {
	switch t := g.(type) {
	case orb.LineString:
		out := make(orb.LineString, len(t))
		for i, p := range t {
			out[len(t)-1-i] = p
		}
		return out
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(t))
		for i, ls := range t {
			out[len(t)-1-i] = Reverse(ls).(orb.LineString)
		}
		return out
	case nil:
		return nil
	}
	return orb.Clone(g)
}

// Endpoints returns the first and last vertex of a linear geometry. For
// multi-lines these come from the first and last non-empty part.
func Endpoints(g orb.Geometry) (first, last orb.Point, ok bool) {
	switch t := g.(type) {
	case orb.LineString:
		if len(t) == 0 {
			return first, last, false
		}
		return t[0], t[len(t)-1], true
	case orb.MultiLineString:
		var found bool
		for _, ls := range t {
			if len(ls) == 0 {
				continue
			}
			if !found {
				first = ls[0]
				found = true
			}
			last = ls[len(ls)-1]
		}
		return first, last, found
	}
	return first, last, false
}

// IsLinear reports whether g is a line or multi-line.
func IsLinear(g orb.Geometry) bool {
	switch g.(type) {
	case orb.LineString, orb.MultiLineString:
		return true
	}
	return false
}

// finite reports whether every coordinate of g is a finite number.
func finite(g orb.Geometry) bool {
	ok := true
	walkVertices(g, func(p orb.Point) {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			ok = false
		}
	})
	return ok
}

// densify returns the outline of b with n points per edge, used to carry a
// bounding box through a non-linear projection.
func densify(b orb.Bound, n int) orb.Ring {
	if n < 1 {
		n = 1
	}
	corners := []orb.Point{
		b.Min,
		{b.Max[0], b.Min[1]},
		b.Max,
		{b.Min[0], b.Max[1]},
	}
	ring := make(orb.Ring, 0, 4*n+1)
	for c := 0; c < 4; c++ {
		from, to := corners[c], corners[(c+1)%4]
		for k := 0; k < n; k++ {
			t := float64(k) / float64(n)
			ring = append(ring, orb.Point{
				from[0] + t*(to[0]-from[0]),
				from[1] + t*(to[1]-from[1]),
			})
		}
	}
	return append(ring, ring[0])
}
