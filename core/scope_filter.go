package core

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// ScopeRule selects how a linear feature is tested against a scope.
type ScopeRule int

const (
	// ScopeRuleLastVertex keeps a line whose last vertex lies inside the
	// scope. For multi-lines the last vertex of the last part is used.
	ScopeRuleLastVertex ScopeRule = iota
	// ScopeRuleAnyEndpoint keeps a line when either endpoint lies inside.
	ScopeRuleAnyEndpoint
	// ScopeRuleIntersects keeps any line sharing a point with the scope.
	ScopeRuleIntersects
)

func (r ScopeRule) String() string {
	switch r {
	case ScopeRuleLastVertex:
		return "last_vertex"
	case ScopeRuleAnyEndpoint:
		return "any_endpoint"
	case ScopeRuleIntersects:
		return "intersects"
	default:
		return fmt.Sprintf("ScopeRule(%d)", int(r))
	}
}

// ParseScopeRule maps a configuration string to a ScopeRule. The empty
// string selects ScopeRuleLastVertex.
func ParseScopeRule(s string) (ScopeRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last_vertex":
		return ScopeRuleLastVertex, nil
	case "any_endpoint":
		return ScopeRuleAnyEndpoint, nil
	case "intersects":
		return ScopeRuleIntersects, nil
	}
	return 0, fmt.Errorf("unknown scope rule %q", s)
}

// ScopeFilter decides whether a working-frame geometry is in scope. A nil
// Scope disables scoping: every non-empty geometry is in scope.
type ScopeFilter struct {
	Scope orb.Geometry
	Rule  ScopeRule
}

// InScope applies the filter. Empty geometries are never in scope.
// Non-linear geometries are in scope when they intersect the scope.
func (f ScopeFilter) InScope(g orb.Geometry) bool {
	if IsEmptyGeometry(g) {
		return false
	}
	if f.Scope == nil {
		return true
	}
	if !IsLinear(g) || f.Rule == ScopeRuleIntersects {
		return Intersects(f.Scope, g)
	}

	switch f.Rule {
	case ScopeRuleAnyEndpoint:
		first, last, ok := Endpoints(g)
		return ok && (Intersects(f.Scope, first) || Intersects(f.Scope, last))
	default:
		last, ok := lastVertex(g)
		return ok && Intersects(f.Scope, last)
	}
}

// IsInScope applies the default rule: a line is in scope when its last
// vertex lies inside or on the boundary of scope.
func IsInScope(g, scope orb.Geometry) bool {
	return ScopeFilter{Scope: scope}.InScope(g)
}

// lastVertex returns the final vertex of a line, or of the last part of a
// multi-line. An empty last part yields ok=false.
func lastVertex(g orb.Geometry) (orb.Point, bool) {
	switch t := g.(type) {
	case orb.LineString:
		if len(t) == 0 {
			return orb.Point{}, false
		}
		return t[len(t)-1], true
	case orb.MultiLineString:
		if len(t) == 0 {
			return orb.Point{}, false
		}
		return lastVertex(t[len(t)-1])
	}
	return orb.Point{}, false
}
