package spatial

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

func box(x0, y0, x1, y1 float64) orb.Bound {
	return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}
}

func TestQueryFindsOverlappingExtents(t *testing.T) {
	ix := New([]Item{
		{ID: 1, Bound: box(0, 0, 1, 1)},
		{ID: 2, Bound: box(5, 5, 6, 6)},
		// long line whose centre is far from the query box
		{ID: 3, Bound: box(-100, 0.5, 100, 0.5)},
		{ID: 4, Bound: box(2, 2, 2, 2)},
	})
	require.Equal(t, 4, ix.Len())

	got := ix.Query(box(0.5, 0.4, 0.8, 0.6))
	require.Equal(t, []model.FeatureID{1, 3}, got)

	got = ix.Query(box(2, 2, 5, 5))
	require.Equal(t, []model.FeatureID{2, 4}, got)
}

func TestQueryEmptyIndex(t *testing.T) {
	ix := New(nil)
	require.Empty(t, ix.Query(box(0, 0, 10, 10)))

	var nilIx *Index
	require.Zero(t, nilIx.Len())
	require.Nil(t, nilIx.Query(box(0, 0, 1, 1)))
}

func TestDuplicateCentres(t *testing.T) {
	ix := New([]Item{
		{ID: 7, Bound: box(1, 1, 1, 1)},
		{ID: 8, Bound: box(1, 1, 1, 1)},
	})
	require.Equal(t, []model.FeatureID{7, 8}, ix.Query(box(0, 0, 2, 2)))
}
