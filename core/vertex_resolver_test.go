package core

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

func setOf(points ...orb.Point) *VertexSet {
	s := NewVertexSet(DefaultVertexPrecision)
	for _, p := range points {
		s.Add(p)
	}
	return s
}

var allInfra = Category{Name: "napowietrzny", Selection: SelectAll, Target: TargetInfrastructure}

func TestResolveAllCoincident(t *testing.T) {
	refs := &ReferenceSets{Infrastructure: setOf(orb.Point{0, 0}, orb.Point{10, 0})}
	res, fixed := resolveVertices(orb.LineString{{0.0004, 0}, {10, 0}}, allInfra, refs, FixPolicy{Enabled: true})

	require.Equal(t, OutcomeCoincident, res.Outcome)
	require.Equal(t, 2, res.Coincident)
	require.Zero(t, res.NonCoincident)
	require.Nil(t, fixed, "coincident features are not rewritten")
}

func TestResolveAutoFixDistanceBound(t *testing.T) {
	// Vertex 2 is 5 units from a reference point, vertex 3 is 10 units away.
	line := orb.LineString{{0, 0}, {100, 5}, {200, 10}}
	refs := &ReferenceSets{Infrastructure: setOf(orb.Point{0, 0}, orb.Point{100, 0}, orb.Point{200, 0})}

	t.Run("bound 7 fixes only the near vertex", func(t *testing.T) {
		res, fixed := resolveVertices(line, allInfra, refs, FixPolicy{Enabled: true, LimitDistance: true, MaxDistance: 7})
		require.Equal(t, OutcomePartiallyFixed, res.Outcome)
		require.Equal(t, 1, res.Fixed)
		require.Equal(t, 1, res.Unfixable)
		require.Equal(t, []int{2, 3}, res.NonCoincidentVertices)
		require.Equal(t, orb.LineString{{0, 0}, {100, 0}, {200, 10}}, fixed)
	})

	t.Run("bound 3 fixes nothing", func(t *testing.T) {
		res, fixed := resolveVertices(line, allInfra, refs, FixPolicy{Enabled: true, LimitDistance: true, MaxDistance: 3})
		require.Equal(t, OutcomeUnfixable, res.Outcome)
		require.Zero(t, res.Fixed)
		require.Equal(t, 2, res.Unfixable)
		require.Nil(t, fixed)
	})

	t.Run("unlimited fixes both", func(t *testing.T) {
		res, fixed := resolveVertices(line, allInfra, refs, FixPolicy{Enabled: true, MaxDistance: 3})
		require.Equal(t, 2, res.Fixed)
		require.Equal(t, orb.LineString{{0, 0}, {100, 0}, {200, 0}}, fixed)
	})

	t.Run("auto-fix off", func(t *testing.T) {
		res, fixed := resolveVertices(line, allInfra, refs, FixPolicy{})
		require.Equal(t, OutcomeUnfixable, res.Outcome)
		require.Equal(t, 2, res.Unfixable)
		require.Nil(t, fixed)
	})
}

func TestResolveEmptyReferenceIsUnfixable(t *testing.T) {
	res, fixed := resolveVertices(orb.LineString{{0, 0}, {1, 1}}, allInfra, &ReferenceSets{}, FixPolicy{Enabled: true})
	require.Equal(t, OutcomeUnfixable, res.Outcome)
	require.Equal(t, 2, res.Unfixable)
	require.Nil(t, fixed)
}

func TestResolveEndpointsOnly(t *testing.T) {
	cat := Category{Name: CategoryUnderground, Selection: SelectEndpoints, Target: TargetInfrastructure}
	refs := &ReferenceSets{Infrastructure: setOf(orb.Point{0, 0}, orb.Point{30, 0})}
	res, _ := resolveVertices(orb.LineString{{0, 0}, {10, 7}, {20, 7}, {30, 0}}, cat, refs, FixPolicy{})

	require.Equal(t, OutcomeCoincident, res.Outcome)
	require.Equal(t, 2, res.Examined)
	require.Equal(t, 4, res.Vertices)
}

func TestResolveSubscriberEndpoints(t *testing.T) {
	cat := Category{Name: CategorySubscriberAerial, Selection: SelectAll, Target: TargetSubscriber}
	refs := &ReferenceSets{
		Infrastructure: setOf(orb.Point{5, 0}),
		SplicePoints:   setOf(orb.Point{0, 0}),
		AccessPoints:   setOf(orb.Point{10, 0}),
	}

	res, _ := resolveVertices(orb.LineString{{0, 0}, {5, 0}, {10, 0}}, cat, refs, FixPolicy{})
	require.Equal(t, OutcomeCoincident, res.Outcome)

	res, _ = resolveVertices(orb.LineString{{1, 1}, {5, 0}, {11, 1}}, cat, refs, FixPolicy{})
	require.Equal(t, OutcomeUnfixable, res.Outcome)
	require.Equal(t, []EndpointRole{RoleSplice, RoleAccess}, res.MissingEndpoints)
	require.Equal(t, []int{1, 3}, res.NonCoincidentVertices)
}

func TestResolveSubscriberReversal(t *testing.T) {
	cat := Category{Name: CategorySubscriberAerial, Selection: SelectAll, Target: TargetSubscriber}
	refs := &ReferenceSets{
		Infrastructure: setOf(orb.Point{5, 0}),
		SplicePoints:   setOf(orb.Point{0, 0}),
		AccessPoints:   setOf(orb.Point{10, 0}),
	}
	drawnBackwards := orb.LineString{{10, 0}, {5, 0}, {0, 0}}

	res, fixed := resolveVertices(drawnBackwards, cat, refs, FixPolicy{Enabled: true})
	require.True(t, res.Reversed)
	require.Equal(t, OutcomeCoincident, res.Outcome)
	require.Equal(t, orb.LineString{{0, 0}, {5, 0}, {10, 0}}, fixed)

	res, fixed = resolveVertices(drawnBackwards, cat, refs, FixPolicy{})
	require.False(t, res.Reversed, "lines are only reversed when auto-fix is on")
	require.Nil(t, fixed)
}

func TestResolveSplicePointsCountAccessSeparately(t *testing.T) {
	cat := Category{Name: MissingCategory, Selection: SelectAll, Target: TargetInfrastructureOrAccess}
	refs := &ReferenceSets{
		Infrastructure: setOf(orb.Point{0, 0}),
		AccessPoints:   setOf(orb.Point{100, 0}),
	}

	res, _ := resolveVertices(orb.Point{100, 0}, cat, refs, FixPolicy{})
	require.Equal(t, 1, res.Coincident)
	require.Equal(t, 1, res.CoincidentAccess)

	res, fixed := resolveVertices(orb.Point{100.5, 0}, cat, refs, FixPolicy{Enabled: true, LimitDistance: true, MaxDistance: 1})
	require.Equal(t, 1, res.FixedAccess)
	require.Zero(t, res.FixedInfra)
	require.Equal(t, orb.Point{100, 0}, fixed)

	res, _ = resolveVertices(orb.Point{0.5, 0}, cat, refs, FixPolicy{Enabled: true, LimitDistance: true, MaxDistance: 1})
	require.Equal(t, 1, res.FixedInfra)
}

func TestCategoryTableClassify(t *testing.T) {
	table := DefaultCategoryTable(CheckCables)

	f := &model.Feature{Attributes: map[string]any{"rodzaj": " doziemny "}}
	c := table.Classify(f)
	require.Equal(t, CategoryUnderground, c.Name)
	require.Equal(t, SelectEndpoints, c.Selection)

	c = table.Classify(&model.Feature{Attributes: map[string]any{"rodzaj": nil}})
	require.Equal(t, MissingCategory, c.Name)
	require.Equal(t, SelectAll, c.Selection)
	require.Equal(t, TargetInfrastructure, c.Target)

	c = table.Classify(&model.Feature{Attributes: map[string]any{"rodzaj": CategorySubscriberPlanned}})
	require.Equal(t, TargetSubscriber, c.Target)

	require.True(t, table.NeedsSubscriberSets())
	require.False(t, DefaultCategoryTable(CheckDucts).NeedsSubscriberSets())
	require.True(t, DefaultCategoryTable(CheckSplicePoints).NeedsSubscriberSets())
}
