package core

import (
	"bytes"
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

type connectivityFixture struct {
	env     *Env
	cables  *fakeLayer
	infra   *fakeLayer
	splices *fakeLayer
	access  *fakeLayer
}

// newConnectivityFixture lays out a duct network along y=0 with a splice
// point at the origin and an access point at (100, 0).
func newConnectivityFixture() *connectivityFixture {
	fx := &connectivityFixture{
		env:     NewEnv(shiftTransformer{dx: 1000}),
		cables:  newFakeLayer("kable", "base", "rodzaj", "nazwa", "dl_tras"),
		infra:   newFakeLayer("trakty", "base"),
		splices: newFakeLayer("mufy", "base"),
		access:  newFakeLayer("pe", "base"),
	}
	fx.infra.
		add(1, orb.LineString{{0, 0}, {50, 0}}, nil).
		add(2, orb.LineString{{50, 0}, {100, 0}}, nil)
	fx.splices.add(1, orb.Point{0, 0}, nil)
	fx.access.add(1, orb.Point{100, 0}, nil)
	return fx
}

func (fx *connectivityFixture) request(scope model.Scope) ConnectivityRequest {
	return ConnectivityRequest{
		Check:          CheckCables,
		Target:         fx.cables,
		Infrastructure: []Layer{fx.infra},
		SplicePoints:   []Layer{fx.splices},
		AccessPoints:   []Layer{fx.access},
		Scope:          scope,
		Fix:            FixPolicy{Enabled: true, LimitDistance: true, MaxDistance: DefaultMaxFixDistance},
	}
}

func TestConnectivityFixesAndCommits(t *testing.T) {
	fx := newConnectivityFixture()
	fx.cables.
		add(1, orb.LineString{{0, 0}, {50, 0}}, map[string]any{"rodzaj": "napowietrzny", "id": 11}).
		add(2, orb.LineString{{0, 0}, {50.4, 0.3}, {100, 0}}, map[string]any{"rodzaj": "napowietrzny", "nazwa": "K-2", "dl_tras": 100.0}).
		add(3, orb.LineString{{0, 0}, {50, 9}}, map[string]any{"rodzaj": "napowietrzny"})

	rep, err := NewConnectivityService(fx.env).Run(context.Background(), fx.request(scopeSquare(-10, -10, 110, 20)))
	require.NoError(t, err)
	require.True(t, rep.Committed)
	require.Equal(t, 1, rep.Changed)
	require.Equal(t, 1, fx.cables.commits)

	require.Equal(t, orb.LineString{{0, 0}, {50, 0}, {100, 0}}, fx.cables.geometry(2))
	require.Equal(t, orb.LineString{{0, 0}, {50, 9}}, fx.cables.geometry(3), "vertex beyond the bound stays put")

	g, ok := rep.Summary.Group("napowietrzny")
	require.True(t, ok)
	require.Equal(t, 3, g.Processed)
	require.Equal(t, 7, g.Examined)
	require.Equal(t, 5, g.Coincident)
	require.Equal(t, 2, g.NonCoincident)
	require.Equal(t, 1, g.Fixed)
	require.Equal(t, 1, g.Unfixable)
	require.Len(t, g.Problems, 2)
	require.Equal(t, "K-2", g.Problems[0].Name)
	require.Equal(t, "NULL", g.Problems[1].DisplayID)
	require.Equal(t, 1, rep.Summary.SkippedNoCandidate)

	byID := map[model.FeatureID]FeatureResult{}
	for _, r := range rep.Results {
		byID[r.ID] = r
	}
	require.Equal(t, OutcomeCoincident, byID[1].Outcome)
	require.Equal(t, "11", byID[1].DisplayID)
	require.Equal(t, OutcomePartiallyFixed, byID[2].Outcome)
	require.Equal(t, OutcomeUnfixable, byID[3].Outcome)
}

func TestConnectivityScopeAndSkips(t *testing.T) {
	fx := newConnectivityFixture()
	fx.cables.
		add(1, orb.LineString{{0, 0}, {50, 0}}, map[string]any{"rodzaj": "doziemny"}).
		add(2, orb.LineString{{50, 0}, {500, 0}}, map[string]any{"rodzaj": "doziemny"}).
		add(3, nil, map[string]any{"rodzaj": "doziemny"}).
		add(4, orb.LineString{}, nil)

	rep, err := NewConnectivityService(fx.env).Run(context.Background(), fx.request(scopeSquare(-10, -10, 60, 10)))
	require.NoError(t, err)
	require.False(t, rep.Committed)
	require.Equal(t, 1, rep.Summary.SkippedOutOfScope)
	require.Equal(t, 2, rep.Summary.SkippedBadGeometry)
	require.Len(t, rep.Results, 1)

	_, ok := rep.Summary.Group(MissingCategory)
	require.True(t, ok, "feature without a group value lands in the missing category")
}

func TestConnectivityReprojectsBetweenFrames(t *testing.T) {
	fx := newConnectivityFixture()
	// The target lives in "shift", 1000 units west of the working frame.
	fx.cables.info.CRS = "shift"
	fx.cables.add(1, orb.LineString{{-1000, 0}, {-949.5, 0}}, map[string]any{"rodzaj": "napowietrzny"})

	req := fx.request(scopeSquare(-10, -10, 110, 10))
	req.WorkingCRS = "base"
	rep, err := NewConnectivityService(fx.env).Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Changed)
	require.Equal(t, orb.LineString{{-1000, 0}, {-950, 0}}, fx.cables.geometry(1), "written back in the layer's own frame")
}

func TestConnectivityIdempotent(t *testing.T) {
	fx := newConnectivityFixture()
	fx.cables.add(1, orb.LineString{{0.2, 0}, {49.7, 0.1}}, map[string]any{"rodzaj": "napowietrzny"})
	cs := NewConnectivityService(fx.env)
	req := fx.request(scopeSquare(-10, -10, 110, 10))

	first, err := cs.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, first.Changed)

	second, err := cs.Run(context.Background(), req)
	require.NoError(t, err)
	require.Zero(t, second.Changed)
	require.Zero(t, second.Summary.Totals.NonCoincident)
}

func TestConnectivityRollsBackOnWriteFailure(t *testing.T) {
	fx := newConnectivityFixture()
	fx.cables.
		add(1, orb.LineString{{0.3, 0}, {50, 0}}, map[string]any{"rodzaj": "napowietrzny"}).
		add(2, orb.LineString{{50.3, 0}, {100, 0}}, map[string]any{"rodzaj": "napowietrzny"})
	fx.cables.failReplaceOn = 2

	_, err := NewConnectivityService(fx.env).Run(context.Background(), fx.request(scopeSquare(-10, -10, 110, 10)))
	require.ErrorIs(t, err, errInjected)
	require.Equal(t, 1, fx.cables.rollbacks)
	require.Zero(t, fx.cables.commits)
	require.Equal(t, orb.LineString{{0.3, 0}, {50, 0}}, fx.cables.geometry(1), "no partial commit")
	require.False(t, fx.cables.editing)
}

func TestConnectivityRollsBackOnCommitFailure(t *testing.T) {
	fx := newConnectivityFixture()
	fx.cables.add(1, orb.LineString{{0.3, 0}, {50, 0}}, map[string]any{"rodzaj": "napowietrzny"})
	fx.cables.failCommit = true

	_, err := NewConnectivityService(fx.env).Run(context.Background(), fx.request(scopeSquare(-10, -10, 110, 10)))
	require.ErrorIs(t, err, errInjected)
	require.Equal(t, 1, fx.cables.rollbacks)
	require.Equal(t, orb.LineString{{0.3, 0}, {50, 0}}, fx.cables.geometry(1))
}

func TestConnectivityAbortsOnCancel(t *testing.T) {
	fx := newConnectivityFixture()
	fx.cables.add(1, orb.LineString{{0.3, 0}, {50, 0}}, map[string]any{"rodzaj": "napowietrzny"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewConnectivityService(fx.env).Run(ctx, fx.request(scopeSquare(-10, -10, 110, 10)))
	require.ErrorIs(t, err, ErrAborted)
	require.Zero(t, fx.cables.commits)
	require.Equal(t, orb.LineString{{0.3, 0}, {50, 0}}, fx.cables.geometry(1))
}

func TestConnectivityPreconditions(t *testing.T) {
	cs := NewConnectivityService(NewEnv(nil))
	scope := scopeSquare(0, 0, 10, 10)

	t.Run("missing target", func(t *testing.T) {
		_, err := cs.Run(context.Background(), ConnectivityRequest{Check: CheckCables, Scope: scope})
		require.ErrorIs(t, err, ErrMissingLayer)
	})

	t.Run("target being edited", func(t *testing.T) {
		fx := newConnectivityFixture()
		fx.cables.editing = true
		_, err := cs.Run(context.Background(), fx.request(scope))
		require.ErrorIs(t, err, ErrLayerEditing)
	})

	t.Run("missing group field", func(t *testing.T) {
		fx := newConnectivityFixture()
		fx.cables.info.Fields = []model.Field{{Name: "nazwa"}}
		_, err := cs.Run(context.Background(), fx.request(scope))
		require.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("empty scope", func(t *testing.T) {
		fx := newConnectivityFixture()
		_, err := cs.Run(context.Background(), fx.request(model.Scope{Name: "broken", Geometry: orb.Polygon{}}))
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("unknown scope frame", func(t *testing.T) {
		fx := newConnectivityFixture()
		s := scope
		s.CRS = "elsewhere"
		_, err := NewConnectivityService(fx.env).Run(context.Background(), fx.request(s))
		require.ErrorIs(t, err, ErrTransform)
	})
}

func TestConnectivityUnscoped(t *testing.T) {
	fx := newConnectivityFixture()
	fx.cables.add(1, orb.LineString{{0, 0}, {50, 0}, {100, 0}}, map[string]any{"rodzaj": "napowietrzny"})

	req := fx.request(model.Scope{})
	req.Unscoped = true
	rep, err := NewConnectivityService(fx.env).Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 3, rep.Summary.Totals.Coincident)

	var buf bytes.Buffer
	require.NoError(t, rep.Summary.Render(&buf, CheckCables))
	require.Contains(t, buf.String(), "category: napowietrzny")
}
