package core

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/fiber-connectivity/internal/logging"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

// BuildVertexSet collects the rounded working-frame vertices of every
// feature in layers that intersects region. Each layer is indexed by feature
// extent first so only bounding-box candidates are transformed and tested.
// Nil layers are skipped.
func (e *Env) BuildVertexSet(ctx context.Context, layers []Layer, region *QueryRegion, precision int, working string) (*VertexSet, error) {
	ctx, span := e.tracer.Start(ctx, "vertexset.build")
	defer span.End()

	set := NewVertexSet(precision)
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		n, err := e.collectLayer(ctx, layer, region, working, set)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		e.log.Debug(ctx, "collected reference vertices",
			logging.String("layer", layer.Info().Name),
			logging.Int("features", n),
			logging.Int("set_size", set.Len()),
		)
	}
	span.SetAttributes(attribute.Int("vertexset.size", set.Len()))
	return set, nil
}

func (e *Env) collectLayer(ctx context.Context, layer Layer, region *QueryRegion, working string, set *VertexSet) (int, error) {
	info := layer.Info()
	features, err := layer.Features(ctx, Filter{})
	if err != nil {
		return 0, fmt.Errorf("read layer %q: %w", info.Name, err)
	}

	candidates := features
	if bound, ok := region.Bound(); ok {
		layerBound, err := e.projector.TransformBound(bound, working, info.CRS)
		if err != nil {
			return 0, fmt.Errorf("layer %q: %w", info.Name, err)
		}
		candidates = e.candidates(features, layerBound)
	} else if !region.Unbounded() {
		return 0, nil
	}

	used := 0
	for _, f := range candidates {
		if IsEmptyGeometry(f.Geometry) {
			continue
		}
		g, err := e.projector.Transform(f.Geometry, info.CRS, working)
		if err != nil {
			return used, fmt.Errorf("layer %q feature %d: %w", info.Name, f.ID, err)
		}
		if !region.Intersects(g) {
			continue
		}
		set.AddGeometry(g)
		used++
	}
	return used, nil
}

func (e *Env) candidates(features []*model.Feature, b orb.Bound) []*model.Feature {
	byID := make(map[model.FeatureID]*model.Feature, len(features))
	items := make([]IndexItem, 0, len(features))
	for _, f := range features {
		if IsEmptyGeometry(f.Geometry) {
			continue
		}
		byID[f.ID] = f
		items = append(items, IndexItem{ID: f.ID, Bound: f.Geometry.Bound()})
	}

	ids := e.index(items).Query(b)
	out := make([]*model.Feature, 0, len(ids))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out
}
