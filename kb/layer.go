package kb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/fiber-connectivity/core"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

// Layer is an in-memory feature layer. It satisfies core.Editable.
type Layer struct {
	mu sync.RWMutex

	info     model.LayerInfo
	features map[model.FeatureID]*model.Feature
	nextID   model.FeatureID
	editing  bool

	kb *KnowledgeBase
}

var _ core.Editable = (*Layer)(nil)

// NewLayer returns an empty layer.
func NewLayer(info model.LayerInfo) *Layer {
	return &Layer{
		info:     info,
		features: make(map[model.FeatureID]*model.Feature),
		nextID:   1,
	}
}

func (l *Layer) attach(kb *KnowledgeBase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kb = kb
}

// Info returns the layer description.
func (l *Layer) Info() model.LayerInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	info := l.info
	info.Fields = append([]model.Field(nil), l.info.Fields...)
	return info
}

// Add inserts a copy of f. A zero ID is replaced by the next free ID. The
// assigned ID is returned.
func (l *Layer) Add(f *model.Feature) (model.FeatureID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := f.Clone()
	if c.ID == 0 {
		c.ID = l.nextID
	}
	if _, exists := l.features[c.ID]; exists {
		return 0, fmt.Errorf("feature %d already exists in layer %q", c.ID, l.info.Name)
	}
	if c.ID >= l.nextID {
		l.nextID = c.ID + 1
	}
	l.features[c.ID] = c
	return c.ID, nil
}

// Len returns the number of features.
func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.features)
}

// Feature returns a copy of one feature.
func (l *Layer) Feature(id model.FeatureID) (*model.Feature, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.features[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d in %q", ErrFeatureNotFound, id, l.info.Name)
	}
	return f.Clone(), nil
}

// Features returns copies of the features matching filter in ascending ID
// order. A bound filter drops features without geometry.
func (l *Layer) Features(ctx context.Context, filter core.Filter) ([]*model.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var ids []model.FeatureID
	if filter.IDs != nil {
		for _, id := range filter.IDs {
			if _, ok := l.features[id]; ok {
				ids = append(ids, id)
			}
		}
	} else {
		ids = make([]model.FeatureID, 0, len(l.features))
		for id := range l.features {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*model.Feature, 0, len(ids))
	var last model.FeatureID
	for i, id := range ids {
		if i > 0 && id == last {
			continue
		}
		last = id
		f := l.features[id]
		if filter.Bound != nil {
			if core.IsEmptyGeometry(f.Geometry) || !f.Geometry.Bound().Intersects(*filter.Bound) {
				continue
			}
		}
		out = append(out, f.Clone())
	}
	return out, nil
}

// IsEditing reports whether an edit session is open.
func (l *Layer) IsEditing() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.editing
}

// Validate applies the store's validity predicate.
func (l *Layer) Validate(g orb.Geometry) error {
	return Validate(g)
}

// BeginEdit opens the layer's single edit session.
func (l *Layer) BeginEdit(ctx context.Context) (core.EditSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.editing {
		return nil, fmt.Errorf("%w: %q", ErrLayerLocked, l.info.Name)
	}
	l.editing = true
	return newSession(l), nil
}
