package core

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

// Filter narrows a feature enumeration. A zero Filter selects every feature.
// When both are set a feature must match the bound and be listed in IDs.
type Filter struct {
	Bound *orb.Bound
	IDs   []model.FeatureID
}

// Layer is the read side of the feature store as consumed by the engine.
// Handles are passed in explicitly; the engine never resolves layers by name.
type Layer interface {
	Info() model.LayerInfo
	// Features returns snapshots; callers may not rely on mutating them.
	Features(ctx context.Context, filter Filter) ([]*model.Feature, error)
	// IsEditing reports whether another process holds the layer's edit session.
	IsEditing() bool
	// Validate is the store's own topological validity predicate.
	Validate(g orb.Geometry) error
}

// Editable is a layer the engine may write to through an edit session.
type Editable interface {
	Layer
	BeginEdit(ctx context.Context) (EditSession, error)
}

// EditSession buffers mutations of one layer. Nothing is visible to readers
// until Commit succeeds; Rollback discards every buffered change.
type EditSession interface {
	ReplaceGeometry(id model.FeatureID, g orb.Geometry) error
	ChangeAttribute(id model.FeatureID, field string, value any) error
	DeleteFeatures(ids ...model.FeatureID) error
	Commit(ctx context.Context) error
	Rollback() error
}

// Transformer is the coordinate transform capability. A nil projection with
// a nil error means both identifiers name the same frame.
type Transformer interface {
	Projection(src, dst string) (orb.Projection, error)
}

// SpatialIndex answers bounding-box candidate queries over one feature set.
type SpatialIndex interface {
	Query(b orb.Bound) []model.FeatureID
}

// IndexBuilder builds a SpatialIndex from feature extents.
type IndexBuilder func(items []IndexItem) SpatialIndex

// IndexItem is one feature extent handed to an IndexBuilder.
type IndexItem struct {
	ID    model.FeatureID
	Bound orb.Bound
}
