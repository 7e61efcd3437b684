package kb

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrInvalidGeometry is returned by Validate.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Validate is the store's topological validity predicate: coordinates are
// finite, lines have at least two vertices, polygon rings are closed, have at
// least four vertices and do not cross themselves. Nil and empty geometries
// are not judged here.
func Validate(g orb.Geometry) error {
	switch t := g.(type) {
	case nil:
		return nil
	case orb.Point:
		return finitePoint(t)
	case orb.MultiPoint:
		for _, p := range t {
			if err := finitePoint(p); err != nil {
				return err
			}
		}
	case orb.LineString:
		return validLine(t)
	case orb.MultiLineString:
		for i, ls := range t {
			if err := validLine(ls); err != nil {
				return fmt.Errorf("part %d: %w", i, err)
			}
		}
	case orb.Ring:
		return validRing(t)
	case orb.Polygon:
		for i, r := range t {
			if err := validRing(r); err != nil {
				return fmt.Errorf("ring %d: %w", i, err)
			}
		}
	case orb.MultiPolygon:
		for i, p := range t {
			if err := Validate(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
	case orb.Collection:
		for i, c := range t {
			if err := Validate(c); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
		}
	}
	return nil
}

func finitePoint(p orb.Point) error {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidGeometry)
		}
	}
	return nil
}

func validLine(ls orb.LineString) error {
	if len(ls) == 0 {
		return nil
	}
	if len(ls) < 2 {
		return fmt.Errorf("%w: line with %d vertex", ErrInvalidGeometry, len(ls))
	}
	for _, p := range ls {
		if err := finitePoint(p); err != nil {
			return err
		}
	}
	return nil
}

func validRing(r orb.Ring) error {
	if len(r) == 0 {
		return nil
	}
	if len(r) < 4 {
		return fmt.Errorf("%w: ring with %d vertices", ErrInvalidGeometry, len(r))
	}
	for _, p := range r {
		if err := finitePoint(p); err != nil {
			return err
		}
	}
	if !r.Closed() {
		return fmt.Errorf("%w: ring not closed", ErrInvalidGeometry)
	}
	n := len(r) - 1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if crosses(r[i], r[i+1], r[j], r[j+1]) {
				return fmt.Errorf("%w: self-intersection at segments %d and %d", ErrInvalidGeometry, i, j)
			}
		}
	}
	return nil
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func within(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// crosses reports whether segments ab and cd share any point.
func crosses(a, b, c, d orb.Point) bool {
	d1, d2 := orient(c, d, a), orient(c, d, b)
	d3, d4 := orient(a, b, c), orient(a, b, d)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && within(c, d, a)) || (d2 == 0 && within(c, d, b)) ||
		(d3 == 0 && within(a, b, c)) || (d4 == 0 && within(a, b, d))
}
