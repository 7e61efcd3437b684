// Package crs relates the reference frames used by network layers. Every
// supported frame is connected through geographic ETRS89/WGS84 coordinates,
// which are treated as identical at network-documentation accuracy.
package crs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

var (
	// ErrUnknownFrame is returned when a frame identifier is not registered.
	ErrUnknownFrame = errors.New("unknown reference frame")
)

// Frame converts between its own planar or geographic coordinates and
// geographic lon/lat degrees.
type Frame struct {
	ID             string
	Description    string
	ToGeographic   orb.Projection
	FromGeographic orb.Projection
}

// Registry is a concurrency-safe set of frames keyed by normalised
// identifier ("EPSG:2180").
type Registry struct {
	mu     sync.RWMutex
	frames map[string]Frame
}

// NewRegistry returns a registry holding the frames met in Polish fiber
// network documentation: WGS84, Web Mercator, CS92 and the four CS2000 zones.
func NewRegistry() *Registry {
	r := &Registry{frames: make(map[string]Frame)}

	identity := func(p orb.Point) orb.Point { return p }
	r.Register(Frame{
		ID:             "EPSG:4326",
		Description:    "WGS 84 geographic",
		ToGeographic:   identity,
		FromGeographic: identity,
	})
	r.Register(Frame{
		ID:             "EPSG:3857",
		Description:    "WGS 84 / Pseudo-Mercator",
		ToGeographic:   project.Mercator.ToWGS84,
		FromGeographic: project.WGS84.ToMercator,
	})

	cs92 := TransverseMercator{CentralMeridian: 19, ScaleFactor: 0.9993, FalseEasting: 500000, FalseNorthing: -5300000}
	r.Register(cs92.Frame("EPSG:2180", "ETRF2000-PL / CS92"))

	for zone, meridian := range map[int]float64{5: 15, 6: 18, 7: 21, 8: 24} {
		tm := TransverseMercator{
			CentralMeridian: meridian,
			ScaleFactor:     0.999923,
			FalseEasting:    float64(zone)*1000000 + 500000,
		}
		r.Register(tm.Frame(fmt.Sprintf("EPSG:%d", 2171+zone), fmt.Sprintf("ETRF2000-PL / CS2000/%d", int(meridian))))
	}
	return r
}

// Register adds or replaces a frame.
func (r *Registry) Register(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[Normalize(f.ID)] = f
}

// Lookup returns the frame registered under id.
func (r *Registry) Lookup(id string) (Frame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.frames[Normalize(id)]
	if !ok {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrame, id)
	}
	return f, nil
}

// IDs lists registered frame identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.frames))
	for id := range r.frames {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Projection returns a point projection from src to dst. Identical frames
// yield a nil projection and no error; callers treat nil as "no transform".
func (r *Registry) Projection(src, dst string) (orb.Projection, error) {
	if Same(src, dst) {
		return nil, nil
	}
	from, err := r.Lookup(src)
	if err != nil {
		return nil, err
	}
	to, err := r.Lookup(dst)
	if err != nil {
		return nil, err
	}
	return func(p orb.Point) orb.Point {
		return to.FromGeographic(from.ToGeographic(p))
	}, nil
}

// Same reports whether two identifiers name the same frame.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Normalize canonicalises identifiers such as "epsg:2180", "EPSG 2180" or
// "2180" to "EPSG:2180".
func Normalize(id string) string {
	s := strings.ToUpper(strings.TrimSpace(id))
	s = strings.ReplaceAll(s, " ", ":")
	if s == "" {
		return s
	}
	if !strings.Contains(s, ":") {
		return "EPSG:" + s
	}
	return s
}
