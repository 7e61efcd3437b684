// Package spatial provides the bounding-box index used to avoid full layer
// scans when collecting reference vertices.
package spatial

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

// Item is one indexed feature extent.
type Item struct {
	ID    model.FeatureID
	Bound orb.Bound
}

// entry stores an item under the centre of its bound so the point quadtree
// can hold extents; queries are widened by the largest half-extent seen.
type entry struct {
	id     model.FeatureID
	bound  orb.Bound
	center orb.Point
}

func (e *entry) Point() orb.Point { return e.center }

// Index answers "which features may intersect this box" queries.
type Index struct {
	tree  *quadtree.Quadtree
	halfW float64
	halfH float64
	size  int
}

// New builds an index over items. Items with an empty bound are ignored.
func New(items []Item) *Index {
	entries := make([]*entry, 0, len(items))
	var total orb.Bound
	first := true
	ix := &Index{}
	for _, it := range items {
		b := it.Bound
		if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
			continue
		}
		e := &entry{id: it.ID, bound: b, center: b.Center()}
		entries = append(entries, e)
		if first {
			total = b
			first = false
		} else {
			total = total.Union(b)
		}
		if w := (b.Max[0] - b.Min[0]) / 2; w > ix.halfW {
			ix.halfW = w
		}
		if h := (b.Max[1] - b.Min[1]) / 2; h > ix.halfH {
			ix.halfH = h
		}
	}
	if len(entries) == 0 {
		return ix
	}

	ix.tree = quadtree.New(total.Pad(1))
	for _, e := range entries {
		if err := ix.tree.Add(e); err == nil {
			ix.size++
		}
	}
	return ix
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Query returns the IDs of items whose bound intersects b, in ascending order.
func (ix *Index) Query(b orb.Bound) []model.FeatureID {
	if ix == nil || ix.tree == nil {
		return nil
	}
	wide := orb.Bound{
		Min: orb.Point{b.Min[0] - ix.halfW, b.Min[1] - ix.halfH},
		Max: orb.Point{b.Max[0] + ix.halfW, b.Max[1] + ix.halfH},
	}

	var out []model.FeatureID
	for _, p := range ix.tree.InBound(nil, wide) {
		e := p.(*entry)
		if e.bound.Intersects(b) {
			out = append(out, e.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
