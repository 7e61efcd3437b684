package core

import "github.com/paulmach/orb"

// DefaultQueryBuffer is the distance, in working-frame units, added around
// each region part when selecting reference features.
const DefaultQueryBuffer = 5.0

type regionPart struct {
	geom  orb.Geometry
	bound orb.Bound
}

// QueryRegion is the union of the scope and the in-scope target geometries,
// buffered by a fixed distance. A feature belongs to the region when it
// lies within Buffer of any part.
type QueryRegion struct {
	buffer    float64
	parts     []regionPart
	unbounded bool
}

// NewQueryRegion builds a region from working-frame geometries. Nil and
// empty parts are dropped.
func NewQueryRegion(buffer float64, parts ...orb.Geometry) *QueryRegion {
	q := &QueryRegion{buffer: buffer}
	for _, g := range parts {
		q.Add(g)
	}
	return q
}

// UnboundedRegion matches every non-empty geometry. It is used when scoping
// is disabled.
func UnboundedRegion() *QueryRegion {
	return &QueryRegion{unbounded: true}
}

// Add extends the region by g.
func (q *QueryRegion) Add(g orb.Geometry) {
	if IsEmptyGeometry(g) {
		return
	}
	q.parts = append(q.parts, regionPart{geom: g, bound: g.Bound().Pad(q.buffer)})
}

// Buffer returns the region's buffer distance.
func (q *QueryRegion) Buffer() float64 { return q.buffer }

// Unbounded reports whether the region matches everything.
func (q *QueryRegion) Unbounded() bool { return q.unbounded }

// Len returns the number of parts.
func (q *QueryRegion) Len() int { return len(q.parts) }

// Bound returns the buffered extent of the region. ok is false for an empty
// or unbounded region.
func (q *QueryRegion) Bound() (b orb.Bound, ok bool) {
	if q.unbounded || len(q.parts) == 0 {
		return orb.Bound{}, false
	}
	b = q.parts[0].bound
	for _, p := range q.parts[1:] {
		b = b.Union(p.bound)
	}
	return b, true
}

// Intersects reports whether g lies within the buffer distance of any part.
func (q *QueryRegion) Intersects(g orb.Geometry) bool {
	if IsEmptyGeometry(g) {
		return false
	}
	if q.unbounded {
		return true
	}
	gb := g.Bound()
	for _, p := range q.parts {
		if !p.bound.Intersects(gb) {
			continue
		}
		if WithinDistance(p.geom, g, q.buffer) {
			return true
		}
	}
	return false
}
