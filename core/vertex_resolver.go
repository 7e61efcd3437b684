package core

import (
	"github.com/paulmach/orb"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

// Outcome is the terminal state of one feature after a connectivity check.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCoincident
	OutcomePartiallyFixed
	OutcomeUnfixable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCoincident:
		return "coincident"
	case OutcomePartiallyFixed:
		return "partially_fixed"
	case OutcomeUnfixable:
		return "unfixable"
	}
	return "unknown"
}

// SkipReason explains an OutcomeSkipped.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipOutOfScope  SkipReason = "out_of_scope"
	SkipBadGeometry SkipReason = "bad_geometry"
)

// EndpointRole names the reference a subscriber-line endpoint failed to meet.
type EndpointRole string

const (
	RoleSplice EndpointRole = "splice"
	RoleAccess EndpointRole = "access"
)

// ReferenceSets are the vertex sets a target is checked against. Nil sets
// behave as empty.
type ReferenceSets struct {
	Infrastructure *VertexSet
	SplicePoints   *VertexSet
	AccessPoints   *VertexSet

	infraOrAccess *VertexSet
}

// FixPolicy controls the auto-fix step.
type FixPolicy struct {
	Enabled bool
	// LimitDistance enables MaxDistance. When false any nearest point is
	// accepted.
	LimitDistance bool
	MaxDistance   float64
}

// DefaultMaxFixDistance is the default auto-fix bound in working units.
const DefaultMaxFixDistance = 1.0

// FeatureResult is the per-feature outcome of a connectivity check.
type FeatureResult struct {
	ID        model.FeatureID
	DisplayID string
	Name      string
	Category  string
	Outcome   Outcome
	Skip      SkipReason

	Length    float64
	HasLength bool

	Vertices         int
	Examined         int
	Coincident       int
	CoincidentAccess int
	NonCoincident    int
	Fixed            int
	FixedInfra       int
	FixedAccess      int
	Unfixable        int
	Reversed         bool

	// NonCoincidentVertices holds 1-based positions of examined vertices
	// that matched no reference point.
	NonCoincidentVertices []int
	// MissingEndpoints lists the subscriber roles that were not met.
	MissingEndpoints []EndpointRole
}

type vertexTarget int

const (
	targetInfra vertexTarget = iota
	targetSplice
	targetAccess
	targetInfraOrAccess
)

func (r *ReferenceSets) set(t vertexTarget) *VertexSet {
	switch t {
	case targetSplice:
		return r.SplicePoints
	case targetAccess:
		return r.AccessPoints
	case targetInfraOrAccess:
		if r.infraOrAccess == nil {
			r.infraOrAccess = unionOrEmpty(r.Infrastructure, r.AccessPoints)
		}
		return r.infraOrAccess
	}
	return r.Infrastructure
}

func unionOrEmpty(a, b *VertexSet) *VertexSet {
	switch {
	case a == nil && b == nil:
		return NewVertexSet(DefaultVertexPrecision)
	case a == nil:
		return b
	case b == nil:
		return a
	}
	u, err := a.Union(b)
	if err != nil {
		// Mixed precisions: match against infrastructure then access.
		out := NewVertexSet(a.Precision())
		for _, p := range a.Points() {
			out.Add(p)
		}
		for _, p := range b.Points() {
			out.Add(p)
		}
		return out
	}
	return u
}

// selectVertices returns the positions of the vertices to examine together
// with the reference each must meet.
func selectVertices(n int, c Category) ([]int, []vertexTarget) {
	if n == 0 {
		return nil, nil
	}
	var idx []int
	if c.Selection == SelectEndpoints {
		idx = []int{0}
		if n > 1 {
			idx = append(idx, n-1)
		}
	} else {
		idx = make([]int, n)
		for i := range idx {
			idx[i] = i
		}
	}

	targets := make([]vertexTarget, len(idx))
	for k, i := range idx {
		switch c.Target {
		case TargetSubscriber:
			switch {
			case i == 0:
				targets[k] = targetSplice
			case i == n-1:
				targets[k] = targetAccess
			default:
				targets[k] = targetInfra
			}
		case TargetInfrastructureOrAccess:
			targets[k] = targetInfraOrAccess
		default:
			targets[k] = targetInfra
		}
	}
	return idx, targets
}

// resolveVertices checks a working-frame geometry against refs and applies
// fix. It returns the result counters and, when the geometry should be
// written back, the corrected working-frame geometry.
func resolveVertices(g orb.Geometry, c Category, refs *ReferenceSets, fix FixPolicy) (FeatureResult, orb.Geometry) {
	res := FeatureResult{Category: c.Name}
	work := g
	pts := Vertices(work)

	if c.Target == TargetSubscriber && fix.Enabled && len(pts) > 1 {
		first, last := pts[0], pts[len(pts)-1]
		if refs.AccessPoints.Contains(first) && refs.SplicePoints.Contains(last) &&
			!(refs.SplicePoints.Contains(first) && refs.AccessPoints.Contains(last)) {
			work = Reverse(work)
			pts = Vertices(work)
			res.Reversed = true
		}
	}

	res.Vertices = len(pts)
	idx, targets := selectVertices(len(pts), c)
	replaced := make(map[int]orb.Point)

	for k, i := range idx {
		target := targets[k]
		set := refs.set(target)
		p := pts[i]
		res.Examined++

		if set.Contains(p) {
			res.Coincident++
			if target == targetInfraOrAccess && refs.AccessPoints.Contains(p) {
				res.CoincidentAccess++
			}
			continue
		}

		res.NonCoincident++
		res.NonCoincidentVertices = append(res.NonCoincidentVertices, i+1)
		switch target {
		case targetSplice:
			res.MissingEndpoints = append(res.MissingEndpoints, RoleSplice)
		case targetAccess:
			res.MissingEndpoints = append(res.MissingEndpoints, RoleAccess)
		}

		if !fix.Enabled {
			continue
		}
		nearest, dist, ok := set.Nearest(p)
		if !ok || (fix.LimitDistance && dist > fix.MaxDistance) {
			res.Unfixable++
			continue
		}
		replaced[i] = nearest
		res.Fixed++
		if target == targetInfraOrAccess {
			if refs.AccessPoints.Contains(nearest) {
				res.FixedAccess++
			} else {
				res.FixedInfra++
			}
		}
	}

	switch {
	case res.NonCoincident == 0:
		res.Outcome = OutcomeCoincident
	case res.Fixed > 0:
		res.Outcome = OutcomePartiallyFixed
	default:
		res.Outcome = OutcomeUnfixable
	}
	if !fix.Enabled {
		res.Unfixable = res.NonCoincident
	}

	if len(replaced) == 0 && !res.Reversed {
		return res, nil
	}
	if len(replaced) == 0 {
		return res, work
	}
	return res, MapVertices(work, func(i int, p orb.Point) orb.Point {
		if q, ok := replaced[i]; ok {
			return q
		}
		return p
	})
}
