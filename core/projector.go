package core

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

type frameKey struct{ src, dst string }

// Projector moves geometries between coordinate frames. Resolved
// projections are cached per frame pair.
type Projector struct {
	t Transformer

	mu    sync.Mutex
	cache map[frameKey]orb.Projection
}

// NewProjector wraps a Transformer. A nil Transformer only supports
// identity transforms between identically named frames.
func NewProjector(t Transformer) *Projector {
	return &Projector{t: t, cache: make(map[frameKey]orb.Projection)}
}

func (p *Projector) projection(src, dst string) (orb.Projection, error) {
	if src == dst {
		return nil, nil
	}
	if src == "" || dst == "" {
		return nil, fmt.Errorf("%w: undeclared frame in %q -> %q", ErrTransform, src, dst)
	}
	key := frameKey{src, dst}

	p.mu.Lock()
	defer p.mu.Unlock()
	if proj, ok := p.cache[key]; ok {
		return proj, nil
	}
	if p.t == nil {
		return nil, fmt.Errorf("%w: no transformer for %s -> %s", ErrTransform, src, dst)
	}
	proj, err := p.t.Projection(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %s -> %s: %v", ErrTransform, src, dst, err)
	}
	p.cache[key] = proj
	return proj, nil
}

// Transform converts g from frame src to frame dst. When both name the same
// frame g is returned as is, so callers must not mutate the result in place.
// An unset frame on only one side fails with ErrTransform.
// A transform producing non-finite coordinates fails with ErrTransform.
func (p *Projector) Transform(g orb.Geometry, src, dst string) (orb.Geometry, error) {
	if g == nil {
		return nil, nil
	}
	proj, err := p.projection(src, dst)
	if err != nil {
		return nil, err
	}
	if proj == nil {
		return g, nil
	}
	out := project.Geometry(orb.Clone(g), proj)
	if !finite(out) {
		return nil, fmt.Errorf("%w: %s -> %s produced non-finite coordinates", ErrTransform, src, dst)
	}
	return out, nil
}

// TransformBound carries a bounding box into dst by projecting a densified
// outline, returning the bound of the result.
func (p *Projector) TransformBound(b orb.Bound, src, dst string) (orb.Bound, error) {
	g, err := p.Transform(densify(b, 8), src, dst)
	if err != nil {
		return orb.Bound{}, err
	}
	return g.Bound(), nil
}
