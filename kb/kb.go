package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

// Store errors.
var (
	ErrLayerExists     = errors.New("layer already exists")
	ErrLayerNotFound   = errors.New("layer not found")
	ErrFeatureNotFound = errors.New("feature not found")
	ErrLayerLocked     = errors.New("layer is locked by another edit session")
	ErrSessionClosed   = errors.New("edit session already closed")
	ErrUnknownField    = errors.New("field not in layer schema")
	ErrScopeNotFound   = errors.New("scope not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventLayerCommitted EventType = iota
	EventLayerAdded
)

// Event is emitted to subscribers when a layer is added or an edit session
// commits.
type Event struct {
	Type  EventType
	Layer string
	// Changed lists feature IDs touched by a commit, ascending.
	Changed []model.FeatureID
	Deleted []model.FeatureID
}

// KnowledgeBase is an in-memory, thread-safe registry of layers and scopes.
type KnowledgeBase struct {
	mu sync.RWMutex

	layers map[string]*Layer
	scopes map[string]model.Scope

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		layers: make(map[string]*Layer),
		scopes: make(map[string]model.Scope),
		subs:   make(map[int]func(Event)),
	}
}

// AddLayer registers a layer. It returns an error if the name is taken.
func (kb *KnowledgeBase) AddLayer(l *Layer) error {
	kb.mu.Lock()
	name := l.Info().Name
	if _, exists := kb.layers[name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerExists, name)
	}
	kb.layers[name] = l
	l.attach(kb)
	kb.mu.Unlock()

	kb.publish(Event{Type: EventLayerAdded, Layer: name})
	return nil
}

// Layer returns the named layer.
func (kb *KnowledgeBase) Layer(name string) (*Layer, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	l, ok := kb.layers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	return l, nil
}

// LayerNames returns every registered layer name, sorted.
func (kb *KnowledgeBase) LayerNames() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	names := make([]string, 0, len(kb.layers))
	for n := range kb.layers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddScope registers or replaces a named scope.
func (kb *KnowledgeBase) AddScope(s model.Scope) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.scopes[s.Name] = s
}

// Scope returns the named scope.
func (kb *KnowledgeBase) Scope(name string) (model.Scope, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	s, ok := kb.scopes[name]
	if !ok {
		return model.Scope{}, fmt.Errorf("%w: %q", ErrScopeNotFound, name)
	}
	return s, nil
}

// ListScopes returns all scopes sorted by name.
func (kb *KnowledgeBase) ListScopes() []model.Scope {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]model.Scope, 0, len(kb.scopes))
	for _, s := range kb.scopes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// publish notifies subscribers outside the lock to avoid deadlocks.
func (kb *KnowledgeBase) publish(e Event) {
	kb.mu.RLock()
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	kb.mu.RUnlock()

	for _, sub := range subs {
		sub(e)
	}
}
