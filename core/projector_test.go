package core

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestProjectorUndeclaredFrame(t *testing.T) {
	p := NewProjector(nil)

	_, err := p.Transform(orb.Point{19, 52}, "", "EPSG:2180")
	require.ErrorIs(t, err, ErrTransform)
	_, err = p.Transform(orb.Point{19, 52}, "EPSG:2180", "")
	require.ErrorIs(t, err, ErrTransform)

	// A transformer cannot rescue a missing frame either.
	_, err = NewProjector(shiftTransformer{dx: 1000}).Transform(orb.Point{1, 1}, "", "base")
	require.ErrorIs(t, err, ErrTransform)

	g, err := p.Transform(orb.Point{19, 52}, "", "")
	require.NoError(t, err)
	require.Equal(t, orb.Point{19, 52}, g)
}

func TestProjectorCachesAndShifts(t *testing.T) {
	p := NewProjector(shiftTransformer{dx: 1000})

	g, err := p.Transform(orb.LineString{{-1000, 0}, {-990, 5}}, "shift", "base")
	require.NoError(t, err)
	require.Equal(t, orb.LineString{{0, 0}, {10, 5}}, g)

	b, err := p.TransformBound(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, "base", "shift")
	require.NoError(t, err)
	require.Equal(t, orb.Bound{Min: orb.Point{-1000, 0}, Max: orb.Point{-990, 10}}, b)

	_, err = NewProjector(nil).Transform(orb.Point{1, 1}, "shift", "base")
	require.ErrorIs(t, err, ErrTransform)
}
