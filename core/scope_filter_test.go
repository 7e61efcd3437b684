package core

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestIsInScopeLastVertexRule(t *testing.T) {
	scope := square(0, 0, 10, 10)

	cases := []struct {
		name string
		g    orb.Geometry
		want bool
	}{
		{"ends inside", orb.LineString{{-5, 5}, {5, 5}}, true},
		{"ends on boundary", orb.LineString{{-5, 5}, {0, 5}}, true},
		{"starts inside ends outside", orb.LineString{{5, 5}, {15, 5}}, false},
		{"multi-line last part inside", orb.MultiLineString{{{20, 20}, {30, 30}}, {{-1, 1}, {1, 1}}}, true},
		{"multi-line last part outside", orb.MultiLineString{{{1, 1}, {2, 2}}, {{20, 20}, {30, 30}}}, false},
		{"multi-line empty last part", orb.MultiLineString{{{1, 1}, {2, 2}}, {}}, false},
		{"point inside", orb.Point{1, 1}, true},
		{"point outside", orb.Point{11, 1}, false},
		{"empty line", orb.LineString{}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsInScope(tc.g, scope), tc.name)
	}
}

func TestScopeFilterRules(t *testing.T) {
	scope := square(0, 0, 10, 10)
	outward := orb.LineString{{5, 5}, {15, 5}}
	crossing := orb.LineString{{-5, 5}, {15, 5}}

	require.False(t, ScopeFilter{Scope: scope}.InScope(outward))
	require.True(t, ScopeFilter{Scope: scope, Rule: ScopeRuleAnyEndpoint}.InScope(outward))
	require.False(t, ScopeFilter{Scope: scope, Rule: ScopeRuleAnyEndpoint}.InScope(crossing))
	require.True(t, ScopeFilter{Scope: scope, Rule: ScopeRuleIntersects}.InScope(crossing))

	require.True(t, ScopeFilter{}.InScope(outward), "nil scope keeps everything")
	require.False(t, ScopeFilter{}.InScope(orb.LineString{}))
}

func TestParseScopeRule(t *testing.T) {
	r, err := ParseScopeRule("")
	require.NoError(t, err)
	require.Equal(t, ScopeRuleLastVertex, r)

	r, err = ParseScopeRule("Intersects")
	require.NoError(t, err)
	require.Equal(t, ScopeRuleIntersects, r)

	_, err = ParseScopeRule("within")
	require.Error(t, err)
}

func TestQueryRegionBuffer(t *testing.T) {
	q := NewQueryRegion(5, square(0, 0, 10, 10), nil, orb.LineString{})
	require.Equal(t, 1, q.Len())

	b, ok := q.Bound()
	require.True(t, ok)
	require.Equal(t, orb.Bound{Min: orb.Point{-5, -5}, Max: orb.Point{15, 15}}, b)

	require.True(t, q.Intersects(orb.Point{14, 5}))
	require.False(t, q.Intersects(orb.Point{14, 14}), "corner is farther than the buffer")
	require.False(t, q.Intersects(nil))

	_, ok = NewQueryRegion(5).Bound()
	require.False(t, ok)
	require.True(t, UnboundedRegion().Intersects(orb.Point{1e9, 1e9}))
}
