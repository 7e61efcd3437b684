package core

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Default rounding precisions (decimal places) used by the engine.
const (
	DefaultVertexPrecision    = 3
	DefaultDuplicatePrecision = 8
)

// VertexKey is a vertex rounded to a fixed number of decimal places and
// stored as scaled integers, so membership is exact equality.
type VertexKey struct {
	X, Y int64
}

// RoundPoint rounds both coordinates of p half away from zero to precision
// decimal places. Negative zero is normalised to zero.
func RoundPoint(p orb.Point, precision int) orb.Point {
	scale := math.Pow(10, float64(precision))
	return orb.Point{roundTo(p[0], scale), roundTo(p[1], scale)}
}

func roundTo(v, scale float64) float64 {
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}

// VertexSet is a set of rounded points in the working frame. Insertion
// order is kept so nearest-point ties resolve deterministically.
type VertexSet struct {
	precision int
	scale     float64
	index     map[VertexKey]int
	points    []orb.Point
}

// NewVertexSet returns an empty set rounding at precision decimal places.
func NewVertexSet(precision int) *VertexSet {
	return &VertexSet{
		precision: precision,
		scale:     math.Pow(10, float64(precision)),
		index:     make(map[VertexKey]int),
	}
}

// Precision returns the number of decimal places this set rounds to.
func (s *VertexSet) Precision() int { return s.precision }

// Len returns the number of distinct rounded points.
func (s *VertexSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

// Key rounds p to the set's precision.
func (s *VertexSet) Key(p orb.Point) VertexKey {
	return VertexKey{X: int64(math.Round(p[0] * s.scale)), Y: int64(math.Round(p[1] * s.scale))}
}

func (s *VertexSet) pointOf(k VertexKey) orb.Point {
	return orb.Point{float64(k.X) / s.scale, float64(k.Y) / s.scale}
}

// Add inserts the rounded form of p and reports whether it was new.
func (s *VertexSet) Add(p orb.Point) bool {
	k := s.Key(p)
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = len(s.points)
	s.points = append(s.points, s.pointOf(k))
	return true
}

// AddGeometry inserts every vertex of g.
func (s *VertexSet) AddGeometry(g orb.Geometry) {
	walkVertices(g, func(p orb.Point) { s.Add(p) })
}

// Contains reports whether the rounded form of p is in the set.
func (s *VertexSet) Contains(p orb.Point) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[s.Key(p)]
	return ok
}

// Points returns the set's rounded points in insertion order.
func (s *VertexSet) Points() []orb.Point {
	if s == nil {
		return nil
	}
	out := make([]orb.Point, len(s.points))
	copy(out, s.points)
	return out
}

// Nearest returns the set point closest to p by planar distance. On ties the
// point inserted first wins. ok is false for an empty set.
func (s *VertexSet) Nearest(p orb.Point) (nearest orb.Point, dist float64, ok bool) {
	if s.Len() == 0 {
		return orb.Point{}, math.Inf(1), false
	}
	best := math.Inf(1)
	for _, q := range s.points {
		d := sq(q[0]-p[0]) + sq(q[1]-p[1])
		if d < best {
			best = d
			nearest = q
		}
	}
	return nearest, math.Sqrt(best), true
}

// Union returns a new set holding the points of s followed by those of o.
// Both sets must share a precision.
func (s *VertexSet) Union(o *VertexSet) (*VertexSet, error) {
	if s.precision != o.precision {
		return nil, fmt.Errorf("%w: %d vs %d", ErrPrecisionMismatch, s.precision, o.precision)
	}
	out := NewVertexSet(s.precision)
	for _, p := range s.points {
		out.Add(p)
	}
	for _, p := range o.points {
		out.Add(p)
	}
	return out, nil
}
