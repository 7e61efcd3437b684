package kb

import (
	"context"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

// Session buffers edits to one layer. Buffered edits are invisible to
// readers until Commit applies them all under the layer lock.
type Session struct {
	layer *Layer

	geometries map[model.FeatureID]orb.Geometry
	attributes map[model.FeatureID]map[string]any
	deleted    map[model.FeatureID]bool
	closed     bool
}

func newSession(l *Layer) *Session {
	return &Session{
		layer:      l,
		geometries: make(map[model.FeatureID]orb.Geometry),
		attributes: make(map[model.FeatureID]map[string]any),
		deleted:    make(map[model.FeatureID]bool),
	}
}

func (s *Session) check(id model.FeatureID) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.layer.mu.RLock()
	_, ok := s.layer.features[id]
	name := s.layer.info.Name
	s.layer.mu.RUnlock()
	if !ok || s.deleted[id] {
		return fmt.Errorf("%w: %d in %q", ErrFeatureNotFound, id, name)
	}
	return nil
}

// ReplaceGeometry stages a new geometry for id.
func (s *Session) ReplaceGeometry(id model.FeatureID, g orb.Geometry) error {
	if err := s.check(id); err != nil {
		return err
	}
	if g != nil {
		g = orb.Clone(g)
	}
	s.geometries[id] = g
	return nil
}

// ChangeAttribute stages one attribute value. Layers with a schema reject
// unknown fields.
func (s *Session) ChangeAttribute(id model.FeatureID, field string, value any) error {
	if err := s.check(id); err != nil {
		return err
	}
	info := s.layer.Info()
	if len(info.Fields) > 0 && !info.HasField(field) {
		return fmt.Errorf("%w: %q in %q", ErrUnknownField, field, info.Name)
	}
	attrs, ok := s.attributes[id]
	if !ok {
		attrs = make(map[string]any)
		s.attributes[id] = attrs
	}
	attrs[field] = value
	return nil
}

// DeleteFeatures stages the removal of ids.
func (s *Session) DeleteFeatures(ids ...model.FeatureID) error {
	for _, id := range ids {
		if err := s.check(id); err != nil {
			return err
		}
	}
	for _, id := range ids {
		s.deleted[id] = true
		delete(s.geometries, id)
		delete(s.attributes, id)
	}
	return nil
}

// Commit applies every staged edit and releases the layer. A cancelled
// context leaves the session open so the caller can roll back.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.layer
	l.mu.Lock()
	changed := make(map[model.FeatureID]bool)
	for id, g := range s.geometries {
		if f, ok := l.features[id]; ok {
			f.Geometry = g
			changed[id] = true
		}
	}
	for id, attrs := range s.attributes {
		f, ok := l.features[id]
		if !ok {
			continue
		}
		if f.Attributes == nil {
			f.Attributes = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			f.Attributes[k] = v
		}
		changed[id] = true
	}
	var deleted []model.FeatureID
	for id := range s.deleted {
		if _, ok := l.features[id]; ok {
			delete(l.features, id)
			deleted = append(deleted, id)
		}
	}
	l.editing = false
	s.closed = true
	kb := l.kb
	name := l.info.Name
	l.mu.Unlock()

	if kb != nil {
		kb.publish(Event{
			Type:    EventLayerCommitted,
			Layer:   name,
			Changed: sortedIDs(changed),
			Deleted: sortIDs(deleted),
		})
	}
	return nil
}

// Rollback discards staged edits and releases the layer. Rolling back a
// closed session is a no-op.
func (s *Session) Rollback() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.layer.mu.Lock()
	s.layer.editing = false
	s.layer.mu.Unlock()
	return nil
}

func sortedIDs(m map[model.FeatureID]bool) []model.FeatureID {
	ids := make([]model.FeatureID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return sortIDs(ids)
}

func sortIDs(ids []model.FeatureID) []model.FeatureID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
