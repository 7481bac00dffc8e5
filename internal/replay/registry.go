package replay

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyArchetype     = errors.New("archetype tag is empty")
	ErrDuplicateArchetype = errors.New("archetype already registered")
)

// Factory constructs an entity of one archetype at (x, y) with the recorded id.
type Factory func(x, y float64, id int) error

// Registry maps archetype tags to factories. Populate it once at startup,
// before replay begins; it is not safe for concurrent mutation.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for archetype.
func (r *Registry) Register(archetype string, f Factory) error {
	if archetype == "" {
		return ErrEmptyArchetype
	}
	if f == nil {
		return fmt.Errorf("nil factory for %q", archetype)
	}
	if _, ok := r.factories[archetype]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateArchetype, archetype)
	}
	r.factories[archetype] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(archetype string, f Factory) {
	if err := r.Register(archetype, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for archetype.
func (r *Registry) Lookup(archetype string) (Factory, bool) {
	f, ok := r.factories[archetype]
	return f, ok
}

// Archetypes returns the registered tags, sorted.
func (r *Registry) Archetypes() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
